package port

// AuthMetrics records outcomes of the auth flows.
type AuthMetrics interface {
	LoginAttempt(outcome string)
	AccountLocked()
	TokenRefresh(outcome string)
	MfaVerification(outcome string)
	StoreError(operation string)
}
