package domain

import (
	"strings"
	"time"
)

// Account mirrors the security-relevant columns of the accounts table.
// Creation and deletion belong to account management; this service only
// reads accounts and updates their security fields.
type Account struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string
	IsActive         bool
	IsLocked         bool
	LockedUntil      *time.Time
	FailedAttempts   int
	LastAttemptAt    *time.Time
	RefreshTokenHash *string
	MfaSecret        *string
	MfaEnabled       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeEmail folds an e-mail address into its lookup form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasRefreshToken reports whether a refresh token hash is stored.
func (a Account) HasRefreshToken() bool {
	return a.RefreshTokenHash != nil && *a.RefreshTokenHash != ""
}

// HasMfa reports whether a second factor must be presented on login.
func (a Account) HasMfa() bool {
	return a.MfaEnabled && a.MfaSecret != nil && *a.MfaSecret != ""
}

// Clone returns a deep copy so callers never share pointer fields.
func (a Account) Clone() Account {
	out := a
	out.LockedUntil = clonePtr(a.LockedUntil)
	out.LastAttemptAt = clonePtr(a.LastAttemptAt)
	out.RefreshTokenHash = clonePtr(a.RefreshTokenHash)
	out.MfaSecret = clonePtr(a.MfaSecret)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
