package auth

import "errors"

var (
	ErrNoCredentials = errors.New("no credentials configured for provider")
	ErrRefreshFailed = errors.New("token refresh failed")
)
