package usecase

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/invoice-auth/internal/core/domain"
	"github.com/arklim/invoice-auth/internal/core/port"
	"github.com/arklim/invoice-auth/internal/infra/logger"
	"github.com/arklim/invoice-auth/internal/infra/security"
	"github.com/arklim/invoice-auth/internal/repository"
)

// MfaService owns TOTP enrollment. A secret reaches the account only after
// the user proved possession of it with one valid code.
type MfaService struct {
	accounts port.AccountStore
	totp     *security.MfaManager
	metrics  port.AuthMetrics
	audit    *auditor
	logger   *zap.Logger
}

func newMfaService(accounts port.AccountStore, totp *security.MfaManager, metrics port.AuthMetrics, audit *auditor, log *zap.Logger) *MfaService {
	return &MfaService{
		accounts: accounts,
		totp:     totp,
		metrics:  metrics,
		audit:    audit,
		logger:   log,
	}
}

// SetupMfa generates a fresh secret for the account. Nothing is persisted.
func (s *MfaService) SetupMfa(ctx context.Context, accountID string) (domain.MfaEnrollment, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return domain.MfaEnrollment{}, lookupError(err)
	}
	if acct.HasMfa() {
		return domain.MfaEnrollment{}, ErrMfaAlreadyEnabled
	}
	return s.totp.GenerateSecret(acct.Email)
}

// ConfirmMfa verifies code against secret and, when it matches, stores the
// secret and enables MFA. A wrong code returns false with a nil error.
func (s *MfaService) ConfirmMfa(ctx context.Context, accountID, secret, code string) (bool, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return false, lookupError(err)
	}
	if acct.HasMfa() {
		return false, ErrMfaAlreadyEnabled
	}

	secret = strings.TrimSpace(secret)
	if secret == "" || !s.totp.VerifyCode(secret, code) {
		s.metrics.MfaVerification("invalid")
		return false, nil
	}
	s.metrics.MfaVerification("valid")

	enabled, notEnabled := true, false
	update := domain.SecurityUpdate{
		MfaSecret:        domain.Some(secret),
		MfaEnabled:       &enabled,
		ExpectMfaEnabled: &notEnabled,
	}
	updated, err := s.accounts.UpdateSecurityFields(ctx, acct.ID, update)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return false, ErrMfaAlreadyEnabled
		}
		return false, lookupError(err)
	}

	logger.WithContext(ctx, s.logger).Info("mfa enabled", zap.String("account_id", acct.ID))
	s.audit.emit(ctx, domain.AuthEventMfaEnabled, updated, "", nil)
	return true, nil
}

// DisableMfa removes the secret after checking a current code.
func (s *MfaService) DisableMfa(ctx context.Context, accountID, code string) error {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return lookupError(err)
	}
	if !acct.HasMfa() {
		return ErrMfaNotEnabled
	}
	if err := s.VerifyLoginCode(*acct, code); err != nil {
		return err
	}

	disabled, wasEnabled := false, true
	update := domain.SecurityUpdate{
		MfaSecret:        domain.Null[string](),
		MfaEnabled:       &disabled,
		ExpectMfaEnabled: &wasEnabled,
	}
	updated, err := s.accounts.UpdateSecurityFields(ctx, acct.ID, update)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrMfaNotEnabled
		}
		return lookupError(err)
	}

	logger.WithContext(ctx, s.logger).Info("mfa disabled", zap.String("account_id", acct.ID))
	s.audit.emit(ctx, domain.AuthEventMfaDisabled, updated, "", nil)
	return nil
}

// VerifyLoginCode checks the second factor of a login.
func (s *MfaService) VerifyLoginCode(acct domain.Account, code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrMfaRequired
	}
	if !acct.HasMfa() || !s.totp.VerifyCode(*acct.MfaSecret, code) {
		s.metrics.MfaVerification("invalid")
		return ErrMfaInvalidCode
	}
	s.metrics.MfaVerification("valid")
	return nil
}
