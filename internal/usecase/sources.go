package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// CredentialSource yields the e-mail and password of a login attempt.
type CredentialSource interface {
	Credentials(ctx context.Context) (email, password string, err error)
}

// TokenSource yields a raw token string.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// PasswordCredentials is an e-mail and password submitted as a form or JSON body.
type PasswordCredentials struct {
	Email    string
	Password string
}

func (c PasswordCredentials) Credentials(context.Context) (string, string, error) {
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return "", "", fmt.Errorf("%w: email and password are required", ErrInvalidCredentials)
	}
	return c.Email, c.Password, nil
}

// BasicAuthCredentials reads an Authorization header of the Basic scheme.
type BasicAuthCredentials struct {
	Header string
}

func (c BasicAuthCredentials) Credentials(context.Context) (string, string, error) {
	payload, ok := cutScheme(c.Header, "Basic")
	if !ok {
		return "", "", fmt.Errorf("%w: missing basic credentials", ErrInvalidCredentials)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed basic credentials", ErrInvalidCredentials)
	}

	email, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", fmt.Errorf("%w: malformed basic credentials", ErrInvalidCredentials)
	}
	return PasswordCredentials{Email: email, Password: password}.Credentials(context.Background())
}

// BearerHeader reads an Authorization header of the Bearer scheme.
type BearerHeader struct {
	Header string
}

func (b BearerHeader) Token(context.Context) (string, error) {
	token, ok := cutScheme(b.Header, "Bearer")
	if !ok {
		return "", fmt.Errorf("%w: missing bearer token", ErrTokenInvalid)
	}
	return token, nil
}

// RawToken is a token passed around without any envelope.
type RawToken string

func (t RawToken) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(t))
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}
	return token, nil
}

func cutScheme(header, scheme string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) || header[len(scheme)] != ' ' {
		return "", false
	}
	value := strings.TrimSpace(header[len(scheme)+1:])
	return value, value != ""
}
