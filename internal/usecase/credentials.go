package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/security"
	"github.com/arklim/invoice-auth/internal/repository"
)

// CredentialVerifier checks an e-mail and password against the stored hash.
// It has no side effects; recording the attempt is the caller's job.
type CredentialVerifier struct {
	accounts  port.AccountStore
	hasher    port.PasswordHasher
	dummyHash string
}

// NewCredentialVerifier hashes a random password once so lookups of unknown
// e-mails still pay for one hash comparison.
func NewCredentialVerifier(accounts port.AccountStore, hasher port.PasswordHasher) *CredentialVerifier {
	v := &CredentialVerifier{accounts: accounts, hasher: hasher}
	if seed, err := security.GenerateSecureToken(24); err == nil {
		if hash, err := hasher.Hash(seed); err == nil {
			v.dummyHash = hash
		}
	}
	return v
}

// Verify returns the account when email and password match.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*domain.Account, error) {
	acct, err := v.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			v.CompareDummy(password)
		}
		return nil, err
	}

	if err := v.Compare(*acct, password); err != nil {
		return nil, err
	}
	return acct, nil
}

// Lookup finds the account for email. An unknown address is reported as
// ErrInvalidCredentials, never as not-found.
func (v *CredentialVerifier) Lookup(ctx context.Context, email string) (*domain.Account, error) {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return nil, ErrInvalidCredentials
	}

	acct, err := v.accounts.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return acct, nil
}

// Compare checks password against the account's stored hash.
func (v *CredentialVerifier) Compare(acct domain.Account, password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(password, acct.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// CompareDummy burns one hash comparison and discards the result.
func (v *CredentialVerifier) CompareDummy(password string) {
	if v.dummyHash == "" {
		return
	}
	_, _ = v.hasher.Verify(password, v.dummyHash)
}
