package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/repository"
)

const defaultStoreTimeout = 3 * time.Second

// guardedStore bounds every account store call with a timeout and wraps
// anything other than not-found or conflict in ErrInfrastructure.
type guardedStore struct {
	next    port.AccountStore
	timeout time.Duration
	metrics port.AuthMetrics
}

func newGuardedStore(next port.AccountStore, timeout time.Duration, metrics port.AuthMetrics) *guardedStore {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &guardedStore{next: next, timeout: timeout, metrics: metrics}
}

func (g *guardedStore) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return g.call(ctx, "find_by_email", func(ctx context.Context) (*domain.Account, error) {
		return g.next.FindByEmail(ctx, email)
	})
}

func (g *guardedStore) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return g.call(ctx, "find_by_id", func(ctx context.Context) (*domain.Account, error) {
		return g.next.FindByID(ctx, id)
	})
}

func (g *guardedStore) UpdateSecurityFields(ctx context.Context, id string, update domain.SecurityUpdate) (*domain.Account, error) {
	return g.call(ctx, "update_security_fields", func(ctx context.Context) (*domain.Account, error) {
		return g.next.UpdateSecurityFields(ctx, id, update)
	})
}

func (g *guardedStore) call(ctx context.Context, op string, fn func(context.Context) (*domain.Account, error)) (*domain.Account, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	acct, err := fn(callCtx)
	if err == nil {
		return acct, nil
	}
	if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
		return nil, err
	}

	g.metrics.StoreError(op)
	return nil, fmt.Errorf("%w: account store %s: %w", ErrInfrastructure, op, err)
}

var _ port.AccountStore = (*guardedStore)(nil)
