// Package memory holds an in-process AccountStore used by tests and by the
// memory store driver in development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/repository"
)

// AccountStore keeps accounts in a map guarded by a mutex. Conditional
// updates are checked and applied under the same lock.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	byEmail  map[string]string
	now      func() time.Time
}

// NewAccountStore seeds the store with the given accounts.
func NewAccountStore(accounts ...domain.Account) *AccountStore {
	s := &AccountStore{
		accounts: make(map[string]domain.Account, len(accounts)),
		byEmail:  make(map[string]string, len(accounts)),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, acct := range accounts {
		s.Put(acct)
	}
	return s
}

// Put inserts or replaces an account.
func (s *AccountStore) Put(acct domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct.Email = domain.NormalizeEmail(acct.Email)
	if prev, ok := s.accounts[acct.ID]; ok {
		delete(s.byEmail, prev.Email)
	}
	s.accounts[acct.ID] = acct.Clone()
	s.byEmail[acct.Email] = acct.ID
}

// FindByEmail looks up an account by normalized e-mail.
func (s *AccountStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	acct := s.accounts[id].Clone()
	return &acct, nil
}

// FindByID looks up an account by identifier.
func (s *AccountStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := acct.Clone()
	return &out, nil
}

// UpdateSecurityFields applies update if its expectations hold.
func (s *AccountStore) UpdateSecurityFields(ctx context.Context, id string, update domain.SecurityUpdate) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !update.Matches(acct) {
		return nil, repository.ErrConflict
	}

	update.Apply(&acct)
	acct.UpdatedAt = s.now()
	s.accounts[id] = acct

	out := acct.Clone()
	return &out, nil
}

var _ port.AccountStore = (*AccountStore)(nil)
