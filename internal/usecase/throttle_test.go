package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type brokenRateLimits struct{}

var errRedisDown = errors.New("dial tcp 127.0.0.1:6379: connection refused")

func (brokenRateLimits) TrimWindow(context.Context, string, time.Duration, time.Time) error {
	return errRedisDown
}

func (brokenRateLimits) CountAttempts(context.Context, string, time.Duration, time.Time) (int, error) {
	return 0, errRedisDown
}

func (brokenRateLimits) RecordAttempt(context.Context, string, time.Time) error { return errRedisDown }

func (brokenRateLimits) OldestAttempt(context.Context, string, time.Duration, time.Time) (time.Time, bool, error) {
	return time.Time{}, false, errRedisDown
}

func (brokenRateLimits) Reset(context.Context, string) error { return errRedisDown }

func TestLoginThrottleWindow(t *testing.T) {
	clock := newTestClock()
	throttle := NewLoginThrottle(newMemoryRateLimits(), 2, 10*time.Minute, zaptest.NewLogger(t)).WithClock(clock.Now)
	ctx := context.Background()
	ip := "198.51.100.23"

	throttle.RecordFailure(ctx, ip)
	clock.Advance(4 * time.Minute)
	throttle.RecordFailure(ctx, ip)

	err := throttle.Allow(ctx, ip)
	if !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("expected ErrLoginThrottled, got %v", err)
	}
	if !strings.Contains(err.Error(), "retry after 6m0s") {
		t.Fatalf("expected retry hint from the oldest attempt, got %v", err)
	}

	if err := throttle.Allow(ctx, "198.51.100.24"); err != nil {
		t.Fatalf("other addresses must not be throttled: %v", err)
	}

	clock.Advance(6 * time.Minute)
	if err := throttle.Allow(ctx, ip); err != nil {
		t.Fatalf("expected oldest failure to leave the window, got %v", err)
	}

	throttle.RecordFailure(ctx, ip)
	throttle.Reset(ctx, ip)
	if err := throttle.Allow(ctx, ip); err != nil {
		t.Fatalf("expected reset to clear failures, got %v", err)
	}
}

func TestLoginThrottleFailsOpen(t *testing.T) {
	throttle := NewLoginThrottle(brokenRateLimits{}, 1, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	throttle.RecordFailure(ctx, "203.0.113.9")
	if err := throttle.Allow(ctx, "203.0.113.9"); err != nil {
		t.Fatalf("store outage must not block logins, got %v", err)
	}
	throttle.Reset(ctx, "203.0.113.9")
}

func TestLoginThrottleDisabled(t *testing.T) {
	for name, throttle := range map[string]*LoginThrottle{
		"no store":    NewLoginThrottle(nil, 5, time.Minute, nil),
		"zero limit":  NewLoginThrottle(newMemoryRateLimits(), 0, time.Minute, nil),
		"zero window": NewLoginThrottle(newMemoryRateLimits(), 5, 0, nil),
	} {
		if throttle != nil {
			t.Fatalf("%s: expected nil throttle", name)
		}
		throttle.RecordFailure(context.Background(), "192.0.2.1")
		if err := throttle.WithClock(time.Now).Allow(context.Background(), "192.0.2.1"); err != nil {
			t.Fatalf("%s: nil throttle must allow, got %v", name, err)
		}
	}
}
