package domain

import "time"

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockoutPolicy decides when repeated login failures lock an account.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns 5 failures / 30 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// LockoutState is derived from the account; it is never stored on its own.
type LockoutState struct {
	Locked bool
	Until  time.Time
}

// Evaluate derives the lock state. An account is locked iff LockedUntil is
// set and still in the future.
func (p LockoutPolicy) Evaluate(acct Account, now time.Time) LockoutState {
	if acct.LockedUntil == nil || !acct.LockedUntil.After(now) {
		return LockoutState{}
	}
	return LockoutState{Locked: true, Until: *acct.LockedUntil}
}

// Expired reports whether the account carries a lock that has run out and
// must be cleared before anything else reads the failure counter.
func (p LockoutPolicy) Expired(acct Account, now time.Time) bool {
	if acct.LockedUntil != nil {
		return !acct.LockedUntil.After(now)
	}
	return acct.IsLocked
}

// Unlock clears the lock and the failure counter, conditioned on the counter
// still holding the value that was read.
func (p LockoutPolicy) Unlock(acct Account) SecurityUpdate {
	zero := 0
	unlocked := false
	expected := acct.FailedAttempts
	return SecurityUpdate{
		FailedAttempts:       &zero,
		IsLocked:             &unlocked,
		LockedUntil:          Null[time.Time](),
		ExpectFailedAttempts: &expected,
	}
}

// OnSuccess resets the counter and clears any lock.
func (p LockoutPolicy) OnSuccess(acct Account, now time.Time) SecurityUpdate {
	update := p.Unlock(acct)
	update.LastAttemptAt = Some(now)
	return update
}

// OnFailure increments the counter and engages the lock once the threshold
// is reached. A lock that has already run out counts from zero. The second
// return value reports whether this failure locked the account.
func (p LockoutPolicy) OnFailure(acct Account, now time.Time) (SecurityUpdate, bool) {
	expected := acct.FailedAttempts
	base := acct.FailedAttempts
	expired := p.Expired(acct, now)
	if expired {
		base = 0
	}

	next := base + 1
	update := SecurityUpdate{
		FailedAttempts:       &next,
		LastAttemptAt:        Some(now),
		ExpectFailedAttempts: &expected,
	}

	if next < p.Threshold {
		if expired {
			unlocked := false
			update.IsLocked = &unlocked
			update.LockedUntil = Null[time.Time]()
		}
		return update, false
	}

	locked := true
	update.IsLocked = &locked
	update.LockedUntil = Some(now.Add(p.Duration))
	return update, true
}
