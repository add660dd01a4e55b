package usecase

import "github.com/arklim/invoice-auth/internal/core/port"

type noopMetrics struct{}

func (noopMetrics) LoginAttempt(string)    {}
func (noopMetrics) AccountLocked()         {}
func (noopMetrics) TokenRefresh(string)    {}
func (noopMetrics) MfaVerification(string) {}
func (noopMetrics) StoreError(string)      {}

var _ port.AuthMetrics = noopMetrics{}
