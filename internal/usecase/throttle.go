package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/logger"
)

// LoginThrottle limits failed logins per client address with a sliding
// window. It is independent of the per-account lock and fails open when the
// backing store is unavailable. A nil throttle allows everything.
type LoginThrottle struct {
	store  port.RateLimitStore
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewLoginThrottle returns nil when store is nil or the limit is disabled.
func NewLoginThrottle(store port.RateLimitStore, limit int, window time.Duration, log *zap.Logger) *LoginThrottle {
	if store == nil || limit <= 0 || window <= 0 {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LoginThrottle{
		store:  store,
		limit:  limit,
		window: window,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used to score attempts.
func (t *LoginThrottle) WithClock(clock func() time.Time) *LoginThrottle {
	if t != nil && clock != nil {
		t.now = clock
	}
	return t
}

// Allow returns ErrLoginThrottled when ip has used up its failures in the
// current window.
func (t *LoginThrottle) Allow(ctx context.Context, ip string) error {
	if t == nil || ip == "" {
		return nil
	}

	now := t.now()
	if err := t.store.TrimWindow(ctx, ip, t.window, now); err != nil {
		t.warn(ctx, "trim", ip, err)
		return nil
	}

	count, err := t.store.CountAttempts(ctx, ip, t.window, now)
	if err != nil {
		t.warn(ctx, "count", ip, err)
		return nil
	}
	if count < t.limit {
		return nil
	}

	retryAfter := t.window
	if oldest, ok, err := t.store.OldestAttempt(ctx, ip, t.window, now); err == nil && ok {
		retryAfter = oldest.Add(t.window).Sub(now)
	}
	return fmt.Errorf("%w: retry after %s", ErrLoginThrottled, retryAfter.Round(time.Second))
}

// RecordFailure counts one failed login for ip.
func (t *LoginThrottle) RecordFailure(ctx context.Context, ip string) {
	if t == nil || ip == "" {
		return
	}
	if err := t.store.RecordAttempt(ctx, ip, t.now()); err != nil {
		t.warn(ctx, "record", ip, err)
	}
}

// Reset forgets the failures of ip after a successful login.
func (t *LoginThrottle) Reset(ctx context.Context, ip string) {
	if t == nil || ip == "" {
		return
	}
	if err := t.store.Reset(ctx, ip); err != nil {
		t.warn(ctx, "reset", ip, err)
	}
}

func (t *LoginThrottle) warn(ctx context.Context, op, ip string, err error) {
	logger.WithContext(ctx, t.logger).Warn("login throttle unavailable",
		zap.String("operation", op),
		zap.String("ip", logger.MaskIP(ip)),
		zap.Error(err),
	)
}
