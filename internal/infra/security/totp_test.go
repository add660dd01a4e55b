package security

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMfaManagerGenerateSecret(t *testing.T) {
	m := NewMfaManager(MfaConfig{Issuer: "FactuPiCe", Skew: 1})

	enrollment, err := m.GenerateSecret("ana@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)

	uri, err := url.Parse(enrollment.ProvisioningURI)
	require.NoError(t, err)
	require.Equal(t, "otpauth", uri.Scheme)
	require.Equal(t, "totp", uri.Host)
	require.Equal(t, enrollment.Secret, uri.Query().Get("secret"))
	require.Equal(t, "FactuPiCe", uri.Query().Get("issuer"))
	require.True(t, strings.HasPrefix(enrollment.QRCodePNG, "data:image/png;base64,"))

	other, err := m.GenerateSecret("ana@example.com")
	require.NoError(t, err)
	require.NotEqual(t, enrollment.Secret, other.Secret)
}

func TestMfaManagerVerifyWindows(t *testing.T) {
	m := NewMfaManager(MfaConfig{Skew: 1})
	enrollment, err := m.GenerateSecret("ana@example.com")
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 10, 0, 15, 0, time.UTC)
	m.WithClock(func() time.Time { return now })
	period := m.Period()

	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"current window", 0, true},
		{"one window back", -period, true},
		{"one window ahead", period, true},
		{"two windows back", -2 * period, false},
		{"two windows ahead", 2 * period, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, err := m.CodeAt(enrollment.Secret, now.Add(tc.offset))
			require.NoError(t, err)
			require.Equal(t, tc.want, m.VerifyCode(enrollment.Secret, code))
		})
	}
}

func TestMfaManagerRejectsGarbage(t *testing.T) {
	m := NewMfaManager(MfaConfig{Skew: 1})
	enrollment, err := m.GenerateSecret("ana@example.com")
	require.NoError(t, err)

	require.False(t, m.VerifyCode(enrollment.Secret, ""))
	require.False(t, m.VerifyCode(enrollment.Secret, "12345"))
	require.False(t, m.VerifyCode(enrollment.Secret, "abcdef"))
	require.False(t, m.VerifyCode("", "123456"))

	_, err = m.CodeAt("", time.Now())
	require.ErrorIs(t, err, ErrMissingSecret)
}
