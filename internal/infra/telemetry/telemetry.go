package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/invoice-auth/internal/core/port"
)

// AuthMetricsOptions configures the auth flow collectors.
type AuthMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AuthMetrics implements port.AuthMetrics with Prometheus counters.
type AuthMetrics struct {
	LoginAttempts    *prometheus.CounterVec
	Lockouts         prometheus.Counter
	TokenRefreshes   *prometheus.CounterVec
	MfaVerifications *prometheus.CounterVec
	StoreErrors      *prometheus.CounterVec
}

// NewAuthMetrics constructs and registers the auth collectors. Collectors
// already registered under the same name are reused.
func NewAuthMetrics(opts AuthMetricsOptions) (*AuthMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "invoices"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	lockouts, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "account_lockouts_total",
		Help:      "Accounts locked after reaching the failed-attempt threshold.",
	}))
	if err != nil {
		return nil, err
	}

	refreshes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "token_refreshes_total",
		Help:      "Refresh token rotations partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	mfa, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "mfa_verifications_total",
		Help:      "TOTP code checks partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	storeErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "store_errors_total",
		Help:      "Account store failures partitioned by operation.",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		LoginAttempts:    logins,
		Lockouts:         lockouts,
		TokenRefreshes:   refreshes,
		MfaVerifications: mfa,
		StoreErrors:      storeErrors,
	}, nil
}

func (m *AuthMetrics) LoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) AccountLocked() {
	m.Lockouts.Inc()
}

func (m *AuthMetrics) TokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) MfaVerification(outcome string) {
	m.MfaVerifications.WithLabelValues(outcome).Inc()
}

func (m *AuthMetrics) StoreError(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// register adds c to reg, or returns the collector already registered
// under the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

var _ port.AuthMetrics = (*AuthMetrics)(nil)
