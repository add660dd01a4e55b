package security

import (
	"strings"

	"github.com/arklim/invoice-auth/internal/core/port"
)

// PasswordHasher hashes new passwords with Argon2id and verifies stored
// hashes of either supported scheme, chosen by the hash prefix.
type PasswordHasher struct {
	argon  *Argon2Hasher
	bcrypt *BcryptHasher
}

// NewPasswordHasher builds a hasher for the given Argon2id parameters.
func NewPasswordHasher(cfg Argon2Config) (*PasswordHasher, error) {
	argon, err := NewArgon2Hasher(cfg)
	if err != nil {
		return nil, err
	}
	return &PasswordHasher{argon: argon, bcrypt: NewBcryptHasher(0)}, nil
}

// Hash always produces an Argon2id hash.
func (h *PasswordHasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify reports whether password matches encoded. Unknown or corrupt
// hashes return an error wrapping ErrMalformedHash.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	switch {
	case isBcryptHash(encoded):
		return h.bcrypt.Verify(password, encoded)
	case strings.HasPrefix(encoded, argon2Prefix):
		return h.argon.Verify(password, encoded)
	default:
		return false, ErrMalformedHash
	}
}

var (
	_ port.PasswordHasher = (*PasswordHasher)(nil)
	_ port.PasswordHasher = (*Argon2Hasher)(nil)
	_ port.PasswordHasher = (*BcryptHasher)(nil)
)
