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

// RefreshTokenStore keeps the SHA-256 of the single live refresh token on
// the account record.
type RefreshTokenStore struct {
	accounts port.AccountStore
}

func newRefreshTokenStore(accounts port.AccountStore) *RefreshTokenStore {
	return &RefreshTokenStore{accounts: accounts}
}

// Store overwrites whatever hash is stored with the hash of token.
func (s *RefreshTokenStore) Store(ctx context.Context, accountID, token string) error {
	update := domain.SecurityUpdate{
		RefreshTokenHash: domain.Some(security.HashToken(token)),
	}
	if _, err := s.accounts.UpdateSecurityFields(ctx, accountID, update); err != nil {
		return lookupError(err)
	}
	return nil
}

// Rotate replaces presented with next only if presented is still the stored
// token at write time. A concurrent rotation makes this call fail with
// ErrTokenMismatch.
func (s *RefreshTokenStore) Rotate(ctx context.Context, accountID, presented, next string) error {
	update := domain.SecurityUpdate{
		RefreshTokenHash:  domain.Some(security.HashToken(next)),
		ExpectRefreshHash: domain.Some(security.HashToken(presented)),
	}
	if _, err := s.accounts.UpdateSecurityFields(ctx, accountID, update); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: rotated concurrently", ErrTokenMismatch)
		}
		return lookupError(err)
	}
	return nil
}

// Verify reports whether token is the live refresh token of the account.
func (s *RefreshTokenStore) Verify(ctx context.Context, accountID, token string) (bool, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.Matches(*acct, token), nil
}

// Matches compares token against the hash already loaded on acct.
func (s *RefreshTokenStore) Matches(acct domain.Account, token string) bool {
	if !acct.HasRefreshToken() || token == "" {
		return false
	}
	return security.TokenHashesEqual(*acct.RefreshTokenHash, security.HashToken(token))
}

// Revoke clears the stored hash. Revoking an account without one, or an
// unknown account, is not an error.
func (s *RefreshTokenStore) Revoke(ctx context.Context, accountID string) error {
	update := domain.SecurityUpdate{RefreshTokenHash: domain.Null[string]()}
	if _, err := s.accounts.UpdateSecurityFields(ctx, accountID, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}
