package port

import (
	"context"

	"github.com/arklim/invoice-auth/internal/core/domain"
)

// AccountStore is the account record store owned by account management.
// FindByEmail receives an already normalized address. UpdateSecurityFields
// is atomic per account: it applies the update only when every expectation
// in it still holds and returns the account as persisted afterwards.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	UpdateSecurityFields(ctx context.Context, id string, update domain.SecurityUpdate) (*domain.Account, error)
}
