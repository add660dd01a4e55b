package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/config"
	"github.com/arklim/invoice-auth/internal/infra/logger"
	"github.com/arklim/invoice-auth/internal/infra/security"
)

const tracerName = "github.com/arklim/invoice-auth/internal/usecase"

// AuthDependencies are the collaborators of AuthService. Events, Metrics,
// RateLimits and Logger are optional.
type AuthDependencies struct {
	Accounts   port.AccountStore
	Hasher     port.PasswordHasher
	Codec      *security.TokenCodec
	Mfa        *security.MfaManager
	Events     port.EventPublisher
	Metrics    port.AuthMetrics
	RateLimits port.RateLimitStore
	Logger     *zap.Logger
}

// LoginResult is either a token pair or, for accounts with MFA, a
// short-lived challenge to be completed with LoginWithMfa.
type LoginResult struct {
	AccountID             string
	Tokens                *domain.TokenPair
	MfaChallenge          string
	MfaChallengeExpiresAt time.Time
}

// MfaRequired reports whether the login needs a second step.
func (r LoginResult) MfaRequired() bool {
	return r.MfaChallenge != ""
}

// AuthService coordinates login, refresh, logout and MFA enrollment.
// Every auth failure leaves it as ErrUnauthorized; store and timeout
// failures leave it wrapped in ErrInfrastructure.
type AuthService struct {
	accounts    port.AccountStore
	codec       *security.TokenCodec
	credentials *CredentialVerifier
	lockout     *LockoutTracker
	refresh     *RefreshTokenStore
	mfa         *MfaService
	throttle    *LoginThrottle
	audit       *auditor
	metrics     port.AuthMetrics
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(cfg *config.AppConfig, deps AuthDependencies) (*AuthService, error) {
	if cfg == nil {
		return nil, errors.New("auth service: config is required")
	}
	if deps.Accounts == nil || deps.Hasher == nil || deps.Codec == nil || deps.Mfa == nil {
		return nil, errors.New("auth service: accounts, hasher, codec and mfa are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	policy := domain.DefaultLockoutPolicy()
	if cfg.Lockout.Threshold > 0 {
		policy.Threshold = cfg.Lockout.Threshold
	}
	if cfg.Lockout.Duration > 0 {
		policy.Duration = cfg.Lockout.Duration
	}

	s := &AuthService{
		codec:   deps.Codec,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}

	s.accounts = newGuardedStore(deps.Accounts, cfg.Store.Timeout, deps.Metrics)
	s.audit = &auditor{publisher: deps.Events, logger: deps.Logger, now: s.clock}
	s.credentials = NewCredentialVerifier(s.accounts, deps.Hasher)
	s.lockout = newLockoutTracker(s.accounts, policy, cfg.Lockout.MaxRetries, deps.Metrics, s.audit, deps.Logger, s.clock)
	s.refresh = newRefreshTokenStore(s.accounts)
	s.mfa = newMfaService(s.accounts, deps.Mfa, deps.Metrics, s.audit, deps.Logger)
	if cfg.RateLimit.Enabled {
		s.throttle = NewLoginThrottle(deps.RateLimits, cfg.RateLimit.LoginMaxAttempts, cfg.RateLimit.WindowDuration, deps.Logger)
		s.throttle.WithClock(s.clock)
	}

	return s, nil
}

// WithClock overrides the clock used for lock arithmetic and audit events.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

func (s *AuthService) clock() time.Time {
	return s.now()
}

// LockoutPolicy returns the threshold and duration in force.
func (s *AuthService) LockoutPolicy() domain.LockoutPolicy {
	return s.lockout.Policy()
}

// Login checks the lock, then the password. Without MFA it returns a token
// pair; with MFA it returns a challenge for LoginWithMfa.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	result, acct, err := s.login(ctx, email, password)
	outcome := Reason(err)
	if err == nil && result.MfaRequired() {
		outcome = "mfa_required"
	}
	s.metrics.LoginAttempt(outcome)
	s.finish(ctx, span, "login", outcome, err,
		zap.String("email", logger.MaskEmail(email)),
		zap.String("ip", logger.MaskIP(ClientIPFromContext(ctx))),
	)
	if err != nil {
		s.audit.emit(ctx, domain.AuthEventLoginFailed, acct, outcome, nil)
		return nil, publicError(err)
	}
	if !result.MfaRequired() {
		s.audit.emit(ctx, domain.AuthEventLoginSucceeded, acct, "", map[string]any{"mfa": false})
	}
	return result, nil
}

func (s *AuthService) login(ctx context.Context, email, password string) (*LoginResult, *domain.Account, error) {
	ip := ClientIPFromContext(ctx)
	if err := s.throttle.Allow(ctx, ip); err != nil {
		return nil, nil, err
	}

	acct, err := s.credentials.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.credentials.CompareDummy(password)
			s.throttle.RecordFailure(ctx, ip)
		}
		return nil, nil, err
	}

	state, acct, err := s.lockout.CheckLock(ctx, acct)
	if err != nil {
		return nil, nil, err
	}
	if state.Locked {
		return nil, acct, fmt.Errorf("%w until %s", ErrAccountLocked, state.Until.Format(time.RFC3339))
	}

	if err := s.credentials.Compare(*acct, password); err != nil {
		s.throttle.RecordFailure(ctx, ip)
		if _, recErr := s.lockout.RecordAttempt(ctx, acct, false); recErr != nil && !errors.Is(recErr, ErrAccountLocked) {
			return nil, acct, recErr
		}
		return nil, acct, err
	}

	if err := runChecks(*acct, s.now(), RequireActive()); err != nil {
		return nil, acct, err
	}

	if acct.HasMfa() {
		challenge, claims, err := s.codec.IssueChallenge(acct.ID, acct.Email)
		if err != nil {
			return nil, acct, fmt.Errorf("issue mfa challenge: %w", err)
		}
		return &LoginResult{
			AccountID:             acct.ID,
			MfaChallenge:          challenge,
			MfaChallengeExpiresAt: claims.ExpiresAt,
		}, acct, nil
	}

	pair, acct, err := s.completeLogin(ctx, acct)
	if err != nil {
		return nil, acct, err
	}
	return &LoginResult{AccountID: acct.ID, Tokens: pair}, acct, nil
}

// LoginWithMfa completes a login that returned a challenge. A wrong code
// counts as a failed attempt towards the lock.
func (s *AuthService) LoginWithMfa(ctx context.Context, challenge, code string) (*domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LoginWithMfa")
	defer span.End()

	pair, acct, err := s.loginWithMfa(ctx, challenge, code)
	outcome := Reason(err)
	s.metrics.LoginAttempt(outcome)
	s.finish(ctx, span, "login_mfa", outcome, err)
	if err != nil {
		s.audit.emit(ctx, domain.AuthEventLoginFailed, acct, outcome, map[string]any{"mfa": true})
		return nil, publicError(err)
	}
	s.audit.emit(ctx, domain.AuthEventLoginSucceeded, acct, "", map[string]any{"mfa": true})
	return pair, nil
}

func (s *AuthService) loginWithMfa(ctx context.Context, challenge, code string) (*domain.TokenPair, *domain.Account, error) {
	claims, err := s.codec.Verify(challenge, domain.TokenKindMfaChallenge)
	if err != nil {
		return nil, nil, err
	}

	acct, err := s.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, lookupError(err)
	}

	state, acct, err := s.lockout.CheckLock(ctx, acct)
	if err != nil {
		return nil, nil, err
	}
	if state.Locked {
		return nil, acct, ErrAccountLocked
	}
	if err := runChecks(*acct, s.now(), RequireActive()); err != nil {
		return nil, acct, err
	}

	if err := s.mfa.VerifyLoginCode(*acct, code); err != nil {
		if errors.Is(err, ErrMfaInvalidCode) {
			s.throttle.RecordFailure(ctx, ClientIPFromContext(ctx))
			if _, recErr := s.lockout.RecordAttempt(ctx, acct, false); recErr != nil && !errors.Is(recErr, ErrAccountLocked) {
				return nil, acct, recErr
			}
		}
		return nil, acct, err
	}

	return s.completeLogin(ctx, acct)
}

// completeLogin records the successful attempt, then mints and stores a
// fresh pair. The stored refresh hash is overwritten unconditionally.
func (s *AuthService) completeLogin(ctx context.Context, acct *domain.Account) (*domain.TokenPair, *domain.Account, error) {
	acct, err := s.lockout.RecordAttempt(ctx, acct, true)
	if err != nil {
		return nil, acct, err
	}

	pair, err := s.mintPair(acct)
	if err != nil {
		return nil, acct, err
	}
	if err := s.refresh.Store(ctx, acct.ID, pair.RefreshToken); err != nil {
		return nil, acct, err
	}

	s.throttle.Reset(ctx, ClientIPFromContext(ctx))
	return pair, acct, nil
}

// Refresh exchanges the live refresh token for a new pair. The presented
// token stops working as soon as this returns successfully.
func (s *AuthService) Refresh(ctx context.Context, accountID, refreshToken string) (*domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer span.End()
	span.SetAttributes(attribute.String("auth.account_id", accountID))

	pair, acct, err := s.rotate(ctx, accountID, refreshToken)
	outcome := Reason(err)
	s.metrics.TokenRefresh(outcome)
	s.finish(ctx, span, "refresh", outcome, err, zap.String("account_id", accountID))
	if err != nil {
		return nil, publicError(err)
	}
	s.audit.emit(ctx, domain.AuthEventTokenRefreshed, acct, "", nil)
	return pair, nil
}

func (s *AuthService) rotate(ctx context.Context, accountID, presented string) (*domain.TokenPair, *domain.Account, error) {
	claims, err := s.codec.Verify(presented, domain.TokenKindRefresh)
	if err != nil {
		return nil, nil, err
	}
	if claims.Subject != accountID {
		return nil, nil, fmt.Errorf("%w: subject does not match account", ErrTokenInvalid)
	}

	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, lookupError(err)
	}
	if !s.refresh.Matches(*acct, presented) {
		return nil, acct, ErrTokenMismatch
	}

	state, acct, err := s.lockout.CheckLock(ctx, acct)
	if err != nil {
		return nil, nil, err
	}
	if state.Locked {
		return nil, acct, ErrAccountLocked
	}
	if err := runChecks(*acct, s.now(), RequireActive()); err != nil {
		return nil, acct, err
	}

	pair, err := s.mintPair(acct)
	if err != nil {
		return nil, acct, err
	}
	if err := s.refresh.Rotate(ctx, acct.ID, presented, pair.RefreshToken); err != nil {
		return nil, acct, err
	}
	return pair, acct, nil
}

// Logout revokes the stored refresh token. Calling it again, or for an
// unknown account, succeeds.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	err := s.refresh.Revoke(ctx, accountID)
	s.finish(ctx, span, "logout", Reason(err), err, zap.String("account_id", accountID))
	if err != nil {
		return publicError(err)
	}
	s.audit.emit(ctx, domain.AuthEventLogout, &domain.Account{ID: accountID}, "", nil)
	return nil
}

// AccountLockStatus reports whether the account is locked right now. An
// expired lock is cleared as part of the read.
func (s *AuthService) AccountLockStatus(ctx context.Context, accountID string) (bool, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return false, publicError(lookupError(err))
	}
	state, _, err := s.lockout.CheckLock(ctx, acct)
	if err != nil {
		return false, publicError(err)
	}
	return state.Locked, nil
}

// Unlock clears the lock and the failure counter ahead of expiry.
func (s *AuthService) Unlock(ctx context.Context, accountID string) error {
	return publicError(s.lockout.Unlock(ctx, accountID))
}

// SetupMfa returns a new secret and provisioning URI. Nothing is stored
// until ConfirmMfa succeeds.
func (s *AuthService) SetupMfa(ctx context.Context, accountID string) (domain.MfaEnrollment, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.SetupMfa")
	defer span.End()

	enrollment, err := s.mfa.SetupMfa(ctx, accountID)
	s.finish(ctx, span, "setup_mfa", Reason(err), err, zap.String("account_id", accountID))
	if err != nil {
		return domain.MfaEnrollment{}, enrollmentError(err)
	}
	return enrollment, nil
}

// ConfirmMfa enables MFA with secret if code is valid for it.
func (s *AuthService) ConfirmMfa(ctx context.Context, accountID, secret, code string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ConfirmMfa")
	defer span.End()

	ok, err := s.mfa.ConfirmMfa(ctx, accountID, secret, code)
	s.finish(ctx, span, "confirm_mfa", Reason(err), err, zap.String("account_id", accountID), zap.Bool("confirmed", ok))
	if err != nil {
		return false, enrollmentError(err)
	}
	return ok, nil
}

// DisableMfa turns MFA off after checking a current code.
func (s *AuthService) DisableMfa(ctx context.Context, accountID, code string) error {
	ctx, span := s.tracer.Start(ctx, "AuthService.DisableMfa")
	defer span.End()

	err := s.mfa.DisableMfa(ctx, accountID, code)
	s.finish(ctx, span, "disable_mfa", Reason(err), err, zap.String("account_id", accountID))
	return enrollmentError(err)
}

// Authenticate runs Login with credentials taken from src.
func (s *AuthService) Authenticate(ctx context.Context, src CredentialSource) (*LoginResult, error) {
	email, password, err := src.Credentials(ctx)
	if err != nil {
		s.metrics.LoginAttempt(Reason(err))
		return nil, publicError(err)
	}
	return s.Login(ctx, email, password)
}

// VerifyAccess validates the access token from src and runs checks against
// the account it names. With no checks the account must be active and
// unlocked. The returned account carries no secrets.
func (s *AuthService) VerifyAccess(ctx context.Context, src TokenSource, checks ...AccountCheck) (*domain.Account, *domain.Claims, error) {
	token, err := src.Token(ctx)
	if err != nil {
		return nil, nil, publicError(err)
	}

	claims, err := s.codec.Verify(token, domain.TokenKindAccess)
	if err != nil {
		logger.WithContext(ctx, s.logger).Debug("access token rejected", zap.String("reason", Reason(err)))
		return nil, nil, publicError(err)
	}

	acct, err := s.accounts.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, nil, publicError(lookupError(err))
	}

	if len(checks) == 0 {
		checks = []AccountCheck{RequireActive(), RequireUnlocked(s.lockout.Policy())}
	}
	if err := runChecks(*acct, s.now(), checks...); err != nil {
		logger.WithContext(ctx, s.logger).Info("access denied",
			zap.String("account_id", acct.ID),
			zap.String("reason", Reason(err)),
		)
		return nil, nil, publicError(err)
	}

	sanitized := acct.Clone()
	sanitized.PasswordHash = ""
	sanitized.RefreshTokenHash = nil
	sanitized.MfaSecret = nil
	return &sanitized, claims, nil
}

func (s *AuthService) mintPair(acct *domain.Account) (*domain.TokenPair, error) {
	access, accessClaims, err := s.codec.IssueAccess(acct.ID, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshClaims, err := s.codec.IssueRefresh(acct.ID, acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// finish logs the outcome of an operation and closes out its span.
func (s *AuthService) finish(ctx context.Context, span trace.Span, op, outcome string, err error, fields ...zap.Field) {
	span.SetAttributes(attribute.String("auth.outcome", outcome))

	log := logger.WithContext(ctx, s.logger).With(zap.String("operation", op), zap.String("outcome", outcome))
	switch {
	case err == nil:
		log.Debug("auth operation succeeded", fields...)
	case IsRetryable(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		log.Error("auth operation failed", append(fields, zap.Error(err))...)
	default:
		log.Info("auth operation rejected", fields...)
	}
}

// enrollmentError keeps the MFA enrollment conflicts visible to the caller
// and collapses everything else like the other operations.
func enrollmentError(err error) error {
	if errors.Is(err, ErrMfaAlreadyEnabled) || errors.Is(err, ErrMfaNotEnabled) {
		return err
	}
	return publicError(err)
}
