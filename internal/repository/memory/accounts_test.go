package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/repository"
)

func TestAccountStoreFindByEmailIsCaseInsensitive(t *testing.T) {
	store := NewAccountStore(domain.Account{ID: "acc-1", Email: "Ana@Example.com", IsActive: true})

	acct, err := store.FindByEmail(context.Background(), "  ANA@example.COM ")
	if err != nil {
		t.Fatalf("FindByEmail returned error: %v", err)
	}
	if acct.ID != "acc-1" {
		t.Fatalf("unexpected account: %s", acct.ID)
	}

	if _, err := store.FindByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountStoreConditionalRefreshHash(t *testing.T) {
	old := "old-hash"
	store := NewAccountStore(domain.Account{ID: "acc-1", Email: "ana@example.com", RefreshTokenHash: &old})
	ctx := context.Background()

	updated, err := store.UpdateSecurityFields(ctx, "acc-1", domain.SecurityUpdate{
		RefreshTokenHash:  domain.Some("new-hash"),
		ExpectRefreshHash: domain.Some("old-hash"),
	})
	if err != nil {
		t.Fatalf("UpdateSecurityFields returned error: %v", err)
	}
	if updated.RefreshTokenHash == nil || *updated.RefreshTokenHash != "new-hash" {
		t.Fatalf("unexpected hash after update: %v", updated.RefreshTokenHash)
	}

	_, err = store.UpdateSecurityFields(ctx, "acc-1", domain.SecurityUpdate{
		RefreshTokenHash:  domain.Some("other-hash"),
		ExpectRefreshHash: domain.Some("old-hash"),
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	current, _ := store.FindByID(ctx, "acc-1")
	if *current.RefreshTokenHash != "new-hash" {
		t.Fatalf("conflicting update must not be applied, got %s", *current.RefreshTokenHash)
	}
}

func TestAccountStoreReturnsCopies(t *testing.T) {
	secret := "SECRET"
	store := NewAccountStore(domain.Account{ID: "acc-1", Email: "ana@example.com", MfaSecret: &secret})

	acct, _ := store.FindByID(context.Background(), "acc-1")
	*acct.MfaSecret = "mutated"

	again, _ := store.FindByID(context.Background(), "acc-1")
	if *again.MfaSecret != "SECRET" {
		t.Fatalf("store state leaked through returned pointer")
	}
}
