package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/arklim/invoice-auth/internal/core/domain"
)

// ErrMissingSecret is returned when a TOTP secret is empty.
var ErrMissingSecret = errors.New("totp secret is required")

// MfaConfig configures TOTP generation and verification.
type MfaConfig struct {
	Issuer     string
	Period     uint
	Skew       uint
	Digits     int
	SecretSize uint
	QRSize     int
}

// MfaManager generates TOTP secrets and checks submitted codes. It never
// persists anything.
type MfaManager struct {
	cfg MfaConfig
	now func() time.Time
}

// NewMfaManager fills unset fields with RFC 6238 defaults.
func NewMfaManager(cfg MfaConfig) *MfaManager {
	if cfg.Issuer == "" {
		cfg.Issuer = "FactuPiCe"
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Digits == 0 {
		cfg.Digits = int(otp.DigitsSix)
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = 20
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = 256
	}

	return &MfaManager{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used by VerifyCode.
func (m *MfaManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// GenerateSecret creates a new base32 secret with its otpauth:// URI and a
// QR code of that URI.
func (m *MfaManager) GenerateSecret(accountLabel string) (domain.MfaEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: accountLabel,
		Period:      m.cfg.Period,
		SecretSize:  m.cfg.SecretSize,
		Digits:      otp.Digits(m.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MfaEnrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	qrCode, err := m.renderQRCode(key.URL())
	if err != nil {
		return domain.MfaEnrollment{}, err
	}

	return domain.MfaEnrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodePNG:       qrCode,
	}, nil
}

// VerifyCode checks code against the current window and Skew windows on
// either side.
func (m *MfaManager) VerifyCode(secret, code string) bool {
	return m.VerifyCodeAt(secret, code, m.now())
}

// VerifyCodeAt is VerifyCode at a fixed instant.
func (m *MfaManager) VerifyCodeAt(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != m.cfg.Digits {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at.UTC(), m.validateOpts())
	return err == nil && ok
}

// CodeAt returns the code for secret at the given instant.
func (m *MfaManager) CodeAt(secret string, at time.Time) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	code, err := totp.GenerateCodeCustom(secret, at.UTC(), m.validateOpts())
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// Period returns the length of one code window.
func (m *MfaManager) Period() time.Duration {
	return time.Duration(m.cfg.Period) * time.Second
}

func (m *MfaManager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    m.cfg.Period,
		Skew:      m.cfg.Skew,
		Digits:    otp.Digits(m.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (m *MfaManager) renderQRCode(uri string) (string, error) {
	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}

	scaled, err := barcode.Scale(code, m.cfg.QRSize, m.cfg.QRSize)
	if err != nil {
		return "", fmt.Errorf("scale qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("encode qr png: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
