package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/arklim/invoice-auth/internal/core/domain"
)

var (
	// ErrTokenExpired indicates a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed, tampered or wrong-kind token.
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenCodecConfig carries one secret and lifetime per token kind.
type TokenCodecConfig struct {
	Issuer          string
	AccessSecret    []byte
	RefreshSecret   []byte
	ChallengeSecret []byte
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ChallengeTTL    time.Duration
}

type signingKey struct {
	secret []byte
	ttl    time.Duration
}

// TokenCodec signs and verifies HS256 tokens. It holds no mutable state
// after construction and is safe for concurrent use.
type TokenCodec struct {
	issuer string
	keys   map[domain.TokenKind]signingKey
	now    func() time.Time
}

type tokenClaims struct {
	Email string           `json:"email"`
	Kind  domain.TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// NewTokenCodec validates cfg and builds a codec.
func NewTokenCodec(cfg TokenCodecConfig) (*TokenCodec, error) {
	keys := map[domain.TokenKind]signingKey{
		domain.TokenKindAccess:       {secret: cfg.AccessSecret, ttl: cfg.AccessTTL},
		domain.TokenKindRefresh:      {secret: cfg.RefreshSecret, ttl: cfg.RefreshTTL},
		domain.TokenKindMfaChallenge: {secret: cfg.ChallengeSecret, ttl: cfg.ChallengeTTL},
	}
	for kind, key := range keys {
		if len(key.secret) == 0 {
			return nil, fmt.Errorf("jwt: %s secret is empty", kind)
		}
		if key.ttl <= 0 {
			return nil, fmt.Errorf("jwt: %s ttl must be positive", kind)
		}
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}

	return &TokenCodec{
		issuer: cfg.Issuer,
		keys:   keys,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the codec clock for deterministic tests.
func (c *TokenCodec) WithClock(clock func() time.Time) {
	if clock != nil {
		c.now = clock
	}
}

// TTL returns the lifetime of tokens of the given kind.
func (c *TokenCodec) TTL(kind domain.TokenKind) time.Duration {
	return c.keys[kind].ttl
}

// IssueAccess signs a short-lived access token.
func (c *TokenCodec) IssueAccess(subject, email string) (string, domain.Claims, error) {
	return c.Issue(domain.TokenKindAccess, subject, email)
}

// IssueRefresh signs a long-lived refresh token.
func (c *TokenCodec) IssueRefresh(subject, email string) (string, domain.Claims, error) {
	return c.Issue(domain.TokenKindRefresh, subject, email)
}

// IssueChallenge signs the token handed out between a correct password and
// a correct TOTP code.
func (c *TokenCodec) IssueChallenge(subject, email string) (string, domain.Claims, error) {
	return c.Issue(domain.TokenKindMfaChallenge, subject, email)
}

// Issue signs a token of the given kind.
func (c *TokenCodec) Issue(kind domain.TokenKind, subject, email string) (string, domain.Claims, error) {
	key, ok := c.keys[kind]
	if !ok {
		return "", domain.Claims{}, fmt.Errorf("jwt: unknown token kind %q", kind)
	}
	if strings.TrimSpace(subject) == "" {
		return "", domain.Claims{}, errors.New("jwt: subject is required")
	}

	issuedAt := c.now().UTC().Truncate(time.Second)
	claims := domain.Claims{
		Subject:   subject,
		Email:     email,
		Kind:      kind,
		ID:        uuid.NewString(),
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(key.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})

	signed, err := token.SignedString(key.secret)
	if err != nil {
		return "", domain.Claims{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return signed, claims, nil
}

// Verify checks signature, expiry and kind together. It returns
// ErrTokenExpired only for tokens that are otherwise valid.
func (c *TokenCodec) Verify(token string, kind domain.TokenKind) (*domain.Claims, error) {
	key, ok := c.keys[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrTokenInvalid, kind)
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	parsed := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	_, err := jwt.ParseWithClaims(token, parsed, func(*jwt.Token) (any, error) {
		return key.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if parsed.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrTokenInvalid, kind, parsed.Kind)
	}
	if parsed.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	claims := &domain.Claims{
		Subject: parsed.Subject,
		Email:   parsed.Email,
		Kind:    parsed.Kind,
		ID:      parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}

	return claims, nil
}
