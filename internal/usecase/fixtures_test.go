package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/config"
	"github.com/arklim/invoice-auth/internal/infra/security"
	"github.com/arklim/invoice-auth/internal/repository/memory"
)

const (
	testAccountID = "5f0c6b2e-8d4a-4d0f-9a57-3a3b8c1d2e01"
	testEmail     = "ana.garcia@example.com"
	testPassword  = "correct horse battery staple"
)

var testEpoch = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (p *recordingPublisher) PublishAuthEvent(_ context.Context, event domain.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.AuthEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AuthEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) has(eventType domain.AuthEventType) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type recordingMetrics struct {
	mu       sync.Mutex
	logins   map[string]int
	refresh  map[string]int
	mfa      map[string]int
	locked   int
	storeErr map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		logins:   map[string]int{},
		refresh:  map[string]int{},
		mfa:      map[string]int{},
		storeErr: map[string]int{},
	}
}

func (m *recordingMetrics) LoginAttempt(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[outcome]++
}

func (m *recordingMetrics) AccountLocked() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locked++
}

func (m *recordingMetrics) TokenRefresh(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[outcome]++
}

func (m *recordingMetrics) MfaVerification(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mfa[outcome]++
}

func (m *recordingMetrics) StoreError(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErr[operation]++
}

// memoryRateLimits is an in-process RateLimitStore.
type memoryRateLimits struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newMemoryRateLimits() *memoryRateLimits {
	return &memoryRateLimits{attempts: map[string][]time.Time{}}
}

func (m *memoryRateLimits) TrimWindow(_ context.Context, id string, window time.Duration, ref time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[id][:0]
	for _, at := range m.attempts[id] {
		if at.After(ref.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[id] = kept
	return nil
}

func (m *memoryRateLimits) CountAttempts(_ context.Context, id string, window time.Duration, ref time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, at := range m.attempts[id] {
		if at.After(ref.Add(-window)) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRateLimits) RecordAttempt(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id] = append(m.attempts[id], at)
	sort.Slice(m.attempts[id], func(i, j int) bool { return m.attempts[id][i].Before(m.attempts[id][j]) })
	return nil
}

func (m *memoryRateLimits) OldestAttempt(_ context.Context, id string, window time.Duration, ref time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, at := range m.attempts[id] {
		if at.After(ref.Add(-window)) {
			return at, true, nil
		}
	}
	return time.Time{}, false, nil
}

func (m *memoryRateLimits) Reset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, id)
	return nil
}

var _ port.RateLimitStore = (*memoryRateLimits)(nil)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		JWT: config.JWTSettings{
			Issuer:          "invoice-auth-test",
			AccessSecret:    "access-secret-for-tests",
			RefreshSecret:   "refresh-secret-for-tests",
			ChallengeSecret: "challenge-secret-for-tests",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			ChallengeTTL:    5 * time.Minute,
		},
		Lockout: config.LockoutSettings{
			Threshold:  domain.DefaultLockoutThreshold,
			Duration:   domain.DefaultLockoutDuration,
			MaxRetries: 3,
		},
		MFA: config.MFASettings{
			Issuer: "FactuPiCe",
			Period: 30,
			Skew:   1,
			Digits: 6,
		},
		Store: config.StoreSettings{Driver: "memory", Timeout: time.Second},
	}
}

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	h, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	return h
}

func newTestAccount(t *testing.T, hasher port.PasswordHasher) domain.Account {
	t.Helper()
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return domain.Account{
		ID:           testAccountID,
		Email:        testEmail,
		Name:         "Ana García",
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    testEpoch.Add(-24 * time.Hour),
		UpdatedAt:    testEpoch.Add(-24 * time.Hour),
	}
}

type testEnv struct {
	svc       *AuthService
	store     *memory.AccountStore
	clock     *testClock
	codec     *security.TokenCodec
	totp      *security.MfaManager
	events    *recordingPublisher
	metrics   *recordingMetrics
	rateLimit *memoryRateLimits
}

type envOption func(*config.AppConfig, *AuthDependencies)

func withAccounts(accounts port.AccountStore) envOption {
	return func(_ *config.AppConfig, deps *AuthDependencies) {
		deps.Accounts = accounts
	}
}

func withConfig(fn func(*config.AppConfig)) envOption {
	return func(cfg *config.AppConfig, _ *AuthDependencies) {
		fn(cfg)
	}
}

// newTestEnv seeds one active account with testPassword.
func newTestEnv(t *testing.T, mutate func(*domain.Account), opts ...envOption) *testEnv {
	t.Helper()

	clock := newTestClock()
	hasher := newTestHasher(t)
	acct := newTestAccount(t, hasher)
	if mutate != nil {
		mutate(&acct)
	}
	store := memory.NewAccountStore(acct)

	cfg := testConfig()
	codec, err := security.NewTokenCodec(security.TokenCodecConfig{
		Issuer:          cfg.JWT.Issuer,
		AccessSecret:    []byte(cfg.JWT.AccessSecret),
		RefreshSecret:   []byte(cfg.JWT.RefreshSecret),
		ChallengeSecret: []byte(cfg.JWT.ChallengeSecret),
		AccessTTL:       cfg.JWT.AccessTokenTTL,
		RefreshTTL:      cfg.JWT.RefreshTokenTTL,
		ChallengeTTL:    cfg.JWT.ChallengeTTL,
	})
	if err != nil {
		t.Fatalf("NewTokenCodec returned error: %v", err)
	}
	codec.WithClock(clock.Now)

	totp := security.NewMfaManager(security.MfaConfig{
		Issuer: cfg.MFA.Issuer,
		Period: cfg.MFA.Period,
		Skew:   cfg.MFA.Skew,
		Digits: cfg.MFA.Digits,
	})
	totp.WithClock(clock.Now)

	env := &testEnv{
		store:     store,
		clock:     clock,
		codec:     codec,
		totp:      totp,
		events:    &recordingPublisher{},
		metrics:   newRecordingMetrics(),
		rateLimit: newMemoryRateLimits(),
	}

	deps := AuthDependencies{
		Accounts:   store,
		Hasher:     hasher,
		Codec:      codec,
		Mfa:        totp,
		Events:     env.events,
		Metrics:    env.metrics,
		RateLimits: env.rateLimit,
		Logger:     zaptest.NewLogger(t),
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	svc, err := NewAuthService(cfg, deps)
	if err != nil {
		t.Fatalf("NewAuthService returned error: %v", err)
	}
	env.svc = svc.WithClock(clock.Now)
	return env
}

func (e *testEnv) account(t *testing.T) domain.Account {
	t.Helper()
	acct, err := e.store.FindByID(context.Background(), testAccountID)
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	return *acct
}

func (e *testEnv) failLogins(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := e.svc.Login(context.Background(), testEmail, "wrong password"); err == nil {
			t.Fatalf("login %d with wrong password succeeded", i+1)
		}
	}
}

func (e *testEnv) login(t *testing.T) *domain.TokenPair {
	t.Helper()
	result, err := e.svc.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Tokens == nil {
		t.Fatalf("Login returned no tokens: %+v", result)
	}
	return result.Tokens
}
