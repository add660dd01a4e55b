package domain

import "time"

// TokenKind distinguishes the signing key and lifetime of a token.
type TokenKind string

const (
	TokenKindAccess       TokenKind = "access"
	TokenKindRefresh      TokenKind = "refresh"
	TokenKindMfaChallenge TokenKind = "mfa_challenge"
)

// Claims is the decoded payload of a token issued by this service.
type Claims struct {
	Subject   string
	Email     string
	Kind      TokenKind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Map returns the payload as a plain map keyed by claim name.
func (c Claims) Map() map[string]any {
	return map[string]any{
		"sub":   c.Subject,
		"email": c.Email,
		"typ":   string(c.Kind),
		"jti":   c.ID,
		"iat":   c.IssuedAt.Unix(),
		"exp":   c.ExpiresAt.Unix(),
	}
}

// TokenPair is returned to the caller on login and refresh. Only the hash of
// RefreshToken is persisted.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// MfaEnrollment is a freshly generated TOTP secret awaiting confirmation.
type MfaEnrollment struct {
	Secret          string
	ProvisioningURI string
	// QRCodePNG is a base64 data URL of the provisioning URI.
	QRCodePNG string
}
