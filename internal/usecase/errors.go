package usecase

import (
	"errors"
	"fmt"

	"github.com/arklim/invoice-auth/internal/infra/security"
	"github.com/arklim/invoice-auth/internal/repository"
)

var (
	// ErrUnauthorized is the only auth failure callers ever see.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInfrastructure marks store or timeout failures the caller may retry.
	ErrInfrastructure = errors.New("infrastructure error")

	// ErrInvalidCredentials indicates an unknown e-mail, a wrong password or a malformed stored hash.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates too many recent failures.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive indicates the account is disabled.
	ErrAccountInactive = errors.New("account is not active")
	// ErrTokenExpired indicates a correctly signed token past its expiry.
	ErrTokenExpired = security.ErrTokenExpired
	// ErrTokenInvalid indicates a malformed, tampered or wrong-kind token.
	ErrTokenInvalid = security.ErrTokenInvalid
	// ErrTokenMismatch indicates a refresh token that is not the one currently stored.
	ErrTokenMismatch = errors.New("refresh token does not match stored token")
	// ErrMfaRequired indicates the second login step was attempted without a code.
	ErrMfaRequired = errors.New("mfa code required")
	// ErrMfaInvalidCode indicates a wrong or stale TOTP code.
	ErrMfaInvalidCode = errors.New("invalid mfa code")
	// ErrLoginThrottled indicates too many failed logins from one client address.
	ErrLoginThrottled = errors.New("too many login attempts")

	// ErrMfaAlreadyEnabled is returned when enrollment would replace an enabled secret.
	ErrMfaAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMfaNotEnabled is returned when disabling MFA on an account without it.
	ErrMfaNotEnabled = errors.New("mfa not enabled")
)

var authFailures = []struct {
	err    error
	reason string
}{
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrAccountLocked, "account_locked"},
	{ErrAccountInactive, "account_inactive"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenInvalid, "token_invalid"},
	{ErrTokenMismatch, "token_mismatch"},
	{ErrMfaRequired, "mfa_required"},
	{ErrMfaInvalidCode, "mfa_invalid_code"},
	{ErrLoginThrottled, "throttled"},
}

// Reason names the internal failure category of err for logs and metrics.
func Reason(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, ErrInfrastructure) {
		return "infrastructure"
	}
	for _, f := range authFailures {
		if errors.Is(err, f.err) {
			return f.reason
		}
	}
	return "internal"
}

// IsRetryable reports whether err is an infrastructure failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// publicError collapses every credential and token failure into
// ErrUnauthorized. Anything else is surfaced as ErrInfrastructure.
func publicError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInfrastructure) {
		return err
	}
	for _, f := range authFailures {
		if errors.Is(err, f.err) {
			return ErrUnauthorized
		}
	}
	return fmt.Errorf("%w: %w", ErrInfrastructure, err)
}

// lookupError maps a store error for an account addressed by id. A missing
// account is an auth failure, never a distinct signal.
func lookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: unknown account", ErrInvalidCredentials)
	}
	return err
}
