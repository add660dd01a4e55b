package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2Prefix starts every PHC string this package writes:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
const argon2Prefix = "$argon2id$"

var (
	// ErrMalformedHash is returned when a stored hash cannot be decoded.
	ErrMalformedHash = errors.New("password hash is malformed")
	errInvalidConfig = errors.New("argon2: invalid configuration")
)

var b64 = base64.RawStdEncoding

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory must be at least 8192 KiB", errInvalidConfig)
	case c.Iterations == 0:
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidConfig)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidConfig)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidConfig)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidConfig)
	}
	return nil
}

// Argon2Hasher hashes with its own parameters but verifies any hash whose
// embedded parameters pass validation, so cost can be raised without a
// migration.
type Argon2Hasher struct {
	cfg Argon2Config
}

func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version,
		h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	parsed, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}

	p := parsed.params
	key := argon2.IDKey([]byte(password), parsed.salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

type argon2Hash struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func parseArgon2(encoded string) (argon2Hash, error) {
	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return argon2Hash{}, fmt.Errorf("%w: not an argon2id hash", ErrMalformedHash)
	}

	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return argon2Hash{}, fmt.Errorf("%w: expected 4 fields after prefix, got %d", ErrMalformedHash, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Hash{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[0])
	}

	var out argon2Hash
	n, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &out.params.Memory, &out.params.Iterations, &out.params.Parallelism)
	if err != nil || n != 3 || fmt.Sprintf("m=%d,t=%d,p=%d", out.params.Memory, out.params.Iterations, out.params.Parallelism) != fields[1] {
		return argon2Hash{}, fmt.Errorf("%w: bad parameters %q", ErrMalformedHash, fields[1])
	}

	if out.salt, err = b64.DecodeString(fields[2]); err != nil {
		return argon2Hash{}, fmt.Errorf("%w: decode salt: %v", ErrMalformedHash, err)
	}
	if out.key, err = b64.DecodeString(fields[3]); err != nil {
		return argon2Hash{}, fmt.Errorf("%w: decode key: %v", ErrMalformedHash, err)
	}
	out.params.SaltLength = uint32(len(out.salt))
	out.params.KeyLength = uint32(len(out.key))

	if err := out.params.validate(); err != nil {
		return argon2Hash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return out, nil
}
