package usecase

import (
	"time"

	"github.com/arklim/invoice-auth/internal/core/domain"
)

// AccountCheck decides whether an authenticated account may proceed.
type AccountCheck func(acct domain.Account, now time.Time) error

// RequireActive rejects disabled accounts.
func RequireActive() AccountCheck {
	return func(acct domain.Account, _ time.Time) error {
		if !acct.IsActive {
			return ErrAccountInactive
		}
		return nil
	}
}

// RequireUnlocked rejects accounts whose lock has not yet expired.
func RequireUnlocked(policy domain.LockoutPolicy) AccountCheck {
	return func(acct domain.Account, now time.Time) error {
		if policy.Evaluate(acct, now).Locked {
			return ErrAccountLocked
		}
		return nil
	}
}

func runChecks(acct domain.Account, now time.Time, checks ...AccountCheck) error {
	for _, check := range checks {
		if check == nil {
			continue
		}
		if err := check(acct, now); err != nil {
			return err
		}
	}
	return nil
}
