package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/repository/memory"
)

func TestCredentialVerifier(t *testing.T) {
	hasher := newTestHasher(t)
	acct := newTestAccount(t, hasher)
	verifier := NewCredentialVerifier(memory.NewAccountStore(acct), hasher)
	ctx := context.Background()

	if verifier.dummyHash == "" {
		t.Fatal("expected a dummy hash for unknown e-mails")
	}

	got, err := verifier.Verify(ctx, "  Ana.Garcia@Example.COM ", testPassword)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got.ID != testAccountID {
		t.Fatalf("unexpected account %s", got.ID)
	}

	cases := map[string]struct {
		email    string
		password string
	}{
		"wrong password": {testEmail, "not it"},
		"empty password": {testEmail, ""},
		"unknown email":  {"nobody@example.com", testPassword},
		"blank email":    {"   ", testPassword},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := verifier.Verify(ctx, tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestCredentialVerifierHasNoSideEffects(t *testing.T) {
	hasher := newTestHasher(t)
	store := memory.NewAccountStore(newTestAccount(t, hasher))
	verifier := NewCredentialVerifier(store, hasher)

	for i := 0; i < domain.DefaultLockoutThreshold+1; i++ {
		_, _ = verifier.Verify(context.Background(), testEmail, "wrong")
	}

	acct, err := store.FindByID(context.Background(), testAccountID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if acct.FailedAttempts != 0 || acct.LastAttemptAt != nil {
		t.Fatalf("verification must not record attempts: %+v", acct)
	}
}
