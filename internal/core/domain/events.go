package domain

import "time"

// AuthEventType enumerates the audit events emitted by the auth flows.
type AuthEventType string

const (
	AuthEventLoginSucceeded  AuthEventType = "auth.login.succeeded"
	AuthEventLoginFailed     AuthEventType = "auth.login.failed"
	AuthEventAccountLocked   AuthEventType = "auth.account.locked"
	AuthEventAccountUnlocked AuthEventType = "auth.account.unlocked"
	AuthEventTokenRefreshed  AuthEventType = "auth.token.refreshed"
	AuthEventLogout          AuthEventType = "auth.logout"
	AuthEventMfaEnabled      AuthEventType = "auth.mfa.enabled"
	AuthEventMfaDisabled     AuthEventType = "auth.mfa.disabled"
)

// AuthEvent is an audit record of a security-relevant action.
type AuthEvent struct {
	EventID    string
	Type       AuthEventType
	AccountID  string
	Email      string
	IPAddress  *string
	Reason     string
	OccurredAt time.Time
	Metadata   map[string]any
}
