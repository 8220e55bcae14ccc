// Package auth resolves upstream credentials. Provider adapters pull a
// bearer token per request through a TokenSource; the rest of the gateway
// never sees credentials.
package auth

import (
	"context"
	"os"
	"strings"
)

// TokenSource yields a bearer token for one upstream call. Implementations
// must be safe for concurrent use.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns the same token forever.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredentials
	}
	return string(s), nil
}

// EnvTokenSource reads the token from an environment variable on every call,
// so key rotation does not require a restart.
type EnvTokenSource string

func (e EnvTokenSource) Token(context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", ErrNoCredentials
	}
	return v, nil
}
