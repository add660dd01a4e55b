package domain

import (
	"testing"
	"time"
)

var lockoutNow = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

func TestLockoutEvaluate(t *testing.T) {
	policy := DefaultLockoutPolicy()
	future := lockoutNow.Add(time.Minute)
	past := lockoutNow.Add(-time.Minute)

	cases := []struct {
		name    string
		acct    Account
		locked  bool
		expired bool
	}{
		{name: "open", acct: Account{FailedAttempts: 2}},
		{name: "locked", acct: Account{FailedAttempts: 5, IsLocked: true, LockedUntil: &future}, locked: true},
		{name: "expired", acct: Account{FailedAttempts: 5, IsLocked: true, LockedUntil: &past}, expired: true},
		{name: "expires now", acct: Account{FailedAttempts: 5, IsLocked: true, LockedUntil: &lockoutNow}, expired: true},
		{name: "flag without expiry", acct: Account{IsLocked: true}, expired: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.Evaluate(tc.acct, lockoutNow).Locked; got != tc.locked {
				t.Fatalf("Evaluate locked = %v, want %v", got, tc.locked)
			}
			if got := policy.Expired(tc.acct, lockoutNow); got != tc.expired {
				t.Fatalf("Expired = %v, want %v", got, tc.expired)
			}
		})
	}
}

func TestLockoutOnFailure(t *testing.T) {
	policy := DefaultLockoutPolicy()

	acct := Account{FailedAttempts: 3}
	update, locks := policy.OnFailure(acct, lockoutNow)
	if locks || *update.FailedAttempts != 4 || update.LockedUntil != nil {
		t.Fatalf("unexpected update below threshold: %+v locks=%v", update, locks)
	}
	if *update.ExpectFailedAttempts != 3 {
		t.Fatalf("expected CAS on 3, got %d", *update.ExpectFailedAttempts)
	}

	acct.FailedAttempts = 4
	update, locks = policy.OnFailure(acct, lockoutNow)
	if !locks || *update.FailedAttempts != 5 {
		t.Fatalf("expected fifth failure to lock: %+v", update)
	}
	update.Apply(&acct)
	if !acct.LockedUntil.Equal(lockoutNow.Add(30 * time.Minute)) {
		t.Fatalf("unexpected lock expiry %s", acct.LockedUntil)
	}
}

func TestLockoutOnFailureAfterExpiry(t *testing.T) {
	policy := DefaultLockoutPolicy()
	past := lockoutNow.Add(-time.Second)
	acct := Account{FailedAttempts: 5, IsLocked: true, LockedUntil: &past}

	update, locks := policy.OnFailure(acct, lockoutNow)
	if locks {
		t.Fatal("first failure after expiry must not lock again")
	}
	update.Apply(&acct)
	if acct.FailedAttempts != 1 || acct.IsLocked || acct.LockedUntil != nil {
		t.Fatalf("expected counter restart and cleared lock, got %+v", acct)
	}
}

func TestSecurityUpdateMatches(t *testing.T) {
	hash := "abc"
	acct := Account{FailedAttempts: 2, RefreshTokenHash: &hash}

	two, three := 2, 3
	if !(SecurityUpdate{ExpectFailedAttempts: &two}).Matches(acct) {
		t.Fatal("expected counter expectation to hold")
	}
	if (SecurityUpdate{ExpectFailedAttempts: &three}).Matches(acct) {
		t.Fatal("expected counter expectation to fail")
	}
	if !(SecurityUpdate{ExpectRefreshHash: Some("abc")}).Matches(acct) {
		t.Fatal("expected hash expectation to hold")
	}
	if (SecurityUpdate{ExpectRefreshHash: Null[string]()}).Matches(acct) {
		t.Fatal("expected absent-hash expectation to fail")
	}
	if (SecurityUpdate{ExpectRefreshHash: Some("abd")}).Matches(acct) {
		t.Fatal("expected different hash to fail")
	}
}
