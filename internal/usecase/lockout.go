package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/logger"
	"github.com/arklim/invoice-auth/internal/repository"
)

const defaultLockoutRetries = 3

// LockoutTracker keeps the per-account failed-attempt counter and the timed
// lock. Every write is conditioned on the counter it was computed from;
// a lost race re-reads the account and recomputes.
type LockoutTracker struct {
	accounts   port.AccountStore
	policy     domain.LockoutPolicy
	maxRetries int
	metrics    port.AuthMetrics
	audit      *auditor
	logger     *zap.Logger
	now        func() time.Time
}

func newLockoutTracker(accounts port.AccountStore, policy domain.LockoutPolicy, maxRetries int, metrics port.AuthMetrics, audit *auditor, log *zap.Logger, now func() time.Time) *LockoutTracker {
	if maxRetries <= 0 {
		maxRetries = defaultLockoutRetries
	}
	return &LockoutTracker{
		accounts:   accounts,
		policy:     policy,
		maxRetries: maxRetries,
		metrics:    metrics,
		audit:      audit,
		logger:     log,
		now:        now,
	}
}

// Policy returns the threshold and duration in force.
func (t *LockoutTracker) Policy() domain.LockoutPolicy {
	return t.policy
}

// CheckLock reports the lock state of acct. A lock that has run out is
// cleared in the store before returning, so the caller always sees the
// counter reset to zero after expiry. The returned account is current.
func (t *LockoutTracker) CheckLock(ctx context.Context, acct *domain.Account) (domain.LockoutState, *domain.Account, error) {
	current := acct
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		now := t.now()
		if state := t.policy.Evaluate(*current, now); state.Locked {
			return state, current, nil
		}
		if !t.policy.Expired(*current, now) {
			return domain.LockoutState{}, current, nil
		}

		updated, err := t.accounts.UpdateSecurityFields(ctx, current.ID, t.policy.Unlock(*current))
		if err == nil {
			logger.WithContext(ctx, t.logger).Info("account lock expired",
				zap.String("account_id", current.ID),
			)
			t.audit.emit(ctx, domain.AuthEventAccountUnlocked, updated, "expired", nil)
			return domain.LockoutState{}, updated, nil
		}

		current, err = t.reload(ctx, current.ID, err)
		if err != nil {
			return domain.LockoutState{}, nil, err
		}
	}
	return domain.LockoutState{}, nil, t.exhausted(ctx, "check lock", acct.ID)
}

// RecordAttempt stores the outcome of a credential check. A failure that
// reaches the threshold locks the account. An account that is locked when
// the write lands is left untouched and ErrAccountLocked is returned.
func (t *LockoutTracker) RecordAttempt(ctx context.Context, acct *domain.Account, success bool) (*domain.Account, error) {
	current := acct
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		now := t.now()
		if t.policy.Evaluate(*current, now).Locked {
			return current, ErrAccountLocked
		}

		var (
			update domain.SecurityUpdate
			locks  bool
		)
		if success {
			update = t.policy.OnSuccess(*current, now)
		} else {
			update, locks = t.policy.OnFailure(*current, now)
		}

		updated, err := t.accounts.UpdateSecurityFields(ctx, current.ID, update)
		if err == nil {
			if locks {
				t.onLocked(ctx, updated)
			}
			return updated, nil
		}

		current, err = t.reload(ctx, current.ID, err)
		if err != nil {
			return nil, err
		}
	}
	return nil, t.exhausted(ctx, "record attempt", acct.ID)
}

// Unlock clears the lock and the counter regardless of expiry.
func (t *LockoutTracker) Unlock(ctx context.Context, accountID string) error {
	current, err := t.accounts.FindByID(ctx, accountID)
	if err != nil {
		return lookupError(err)
	}

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if current.FailedAttempts == 0 && !current.IsLocked && current.LockedUntil == nil {
			return nil
		}

		updated, err := t.accounts.UpdateSecurityFields(ctx, current.ID, t.policy.Unlock(*current))
		if err == nil {
			logger.WithContext(ctx, t.logger).Info("account unlocked",
				zap.String("account_id", current.ID),
			)
			t.audit.emit(ctx, domain.AuthEventAccountUnlocked, updated, "manual", nil)
			return nil
		}

		current, err = t.reload(ctx, current.ID, err)
		if err != nil {
			return err
		}
	}
	return t.exhausted(ctx, "unlock", accountID)
}

func (t *LockoutTracker) onLocked(ctx context.Context, acct *domain.Account) {
	t.metrics.AccountLocked()

	fields := []zap.Field{
		zap.String("account_id", acct.ID),
		zap.String("email", logger.MaskEmail(acct.Email)),
		zap.Int("failed_attempts", acct.FailedAttempts),
	}
	if acct.LockedUntil != nil {
		fields = append(fields, zap.Time("locked_until", *acct.LockedUntil))
	}
	logger.WithContext(ctx, t.logger).Warn("account locked after repeated failures", fields...)

	metadata := map[string]any{"failed_attempts": acct.FailedAttempts}
	if acct.LockedUntil != nil {
		metadata["locked_until"] = acct.LockedUntil.UTC().Format(time.RFC3339)
	}
	t.audit.emit(ctx, domain.AuthEventAccountLocked, acct, "threshold_reached", metadata)
}

// reload fetches a fresh copy after a conditional write lost a race.
// Any other write error is returned as is.
func (t *LockoutTracker) reload(ctx context.Context, accountID string, writeErr error) (*domain.Account, error) {
	if !errors.Is(writeErr, repository.ErrConflict) {
		return nil, lookupError(writeErr)
	}
	fresh, err := t.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, lookupError(err)
	}
	return fresh, nil
}

func (t *LockoutTracker) exhausted(ctx context.Context, op, accountID string) error {
	logger.WithContext(ctx, t.logger).Error("lockout update kept conflicting",
		zap.String("operation", op),
		zap.String("account_id", accountID),
		zap.Int("retries", t.maxRetries),
	)
	return fmt.Errorf("%w: %s: concurrent updates on account %s", ErrInfrastructure, op, accountID)
}
