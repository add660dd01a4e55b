package domain

import "time"

// Nullable is the value of a nullable column. Valid=false means NULL.
type Nullable[T any] struct {
	Value T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) *Nullable[T] {
	return &Nullable[T]{Value: v, Valid: true}
}

// Null represents an absent value.
func Null[T any]() *Nullable[T] {
	return &Nullable[T]{}
}

// NullableFrom converts a pointer into a Nullable.
func NullableFrom[T any](p *T) *Nullable[T] {
	if p == nil {
		return Null[T]()
	}
	return Some(*p)
}

// Ptr returns the value as a pointer, nil when absent.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// SecurityUpdate is a partial update of an account's security fields.
// A nil field is left untouched. Expect* fields turn the update into a
// compare-and-swap: the store rejects it with repository.ErrConflict when
// the persisted value differs at write time.
type SecurityUpdate struct {
	FailedAttempts   *int
	IsLocked         *bool
	LockedUntil      *Nullable[time.Time]
	LastAttemptAt    *Nullable[time.Time]
	RefreshTokenHash *Nullable[string]
	MfaSecret        *Nullable[string]
	MfaEnabled       *bool

	ExpectFailedAttempts *int
	ExpectRefreshHash    *Nullable[string]
	ExpectMfaEnabled     *bool
}

// IsEmpty reports whether the update changes nothing.
func (u SecurityUpdate) IsEmpty() bool {
	return u.FailedAttempts == nil &&
		u.IsLocked == nil &&
		u.LockedUntil == nil &&
		u.LastAttemptAt == nil &&
		u.RefreshTokenHash == nil &&
		u.MfaSecret == nil &&
		u.MfaEnabled == nil
}

// Matches reports whether every expectation holds for acct.
func (u SecurityUpdate) Matches(acct Account) bool {
	if u.ExpectFailedAttempts != nil && acct.FailedAttempts != *u.ExpectFailedAttempts {
		return false
	}
	if u.ExpectMfaEnabled != nil && acct.MfaEnabled != *u.ExpectMfaEnabled {
		return false
	}
	if u.ExpectRefreshHash != nil {
		current := NullableFrom(acct.RefreshTokenHash)
		if current.Valid != u.ExpectRefreshHash.Valid {
			return false
		}
		if current.Valid && current.Value != u.ExpectRefreshHash.Value {
			return false
		}
	}
	return true
}

// Apply writes the update onto acct.
func (u SecurityUpdate) Apply(acct *Account) {
	if u.FailedAttempts != nil {
		acct.FailedAttempts = *u.FailedAttempts
	}
	if u.IsLocked != nil {
		acct.IsLocked = *u.IsLocked
	}
	if u.LockedUntil != nil {
		acct.LockedUntil = u.LockedUntil.Ptr()
	}
	if u.LastAttemptAt != nil {
		acct.LastAttemptAt = u.LastAttemptAt.Ptr()
	}
	if u.RefreshTokenHash != nil {
		acct.RefreshTokenHash = u.RefreshTokenHash.Ptr()
	}
	if u.MfaSecret != nil {
		acct.MfaSecret = u.MfaSecret.Ptr()
	}
	if u.MfaEnabled != nil {
		acct.MfaEnabled = *u.MfaEnabled
	}
}
