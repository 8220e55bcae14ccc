package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// CredentialFile is the stored OAuth state for a provider account.
type CredentialFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ProjectID    string `json:"project_id,omitempty"`
}

// HomeDir returns the credential storage directory.
func HomeDir() string {
	if d := os.Getenv("LLMGATE_HOME"); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".llmgate")
}

// ReadCredentialFile loads stored OAuth credentials for a provider.
func ReadCredentialFile(provider string) (*CredentialFile, error) {
	p := filepath.Join(HomeDir(), provider+".json")
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	var cf CredentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: malformed %s: %v", ErrNoCredentials, p, err)
	}
	if cf.RefreshToken == "" && cf.AccessToken == "" {
		return nil, ErrNoCredentials
	}
	return &cf, nil
}

// OAuthTokenSource refreshes bearer tokens through an oauth2 refresh-token
// grant. Refreshes happen lazily on expiry; concurrent callers share one
// refresh.
type OAuthTokenSource struct {
	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewOAuthTokenSource builds a self-refreshing source from a client config
// and stored credentials.
func NewOAuthTokenSource(conf *oauth2.Config, creds *CredentialFile) *OAuthTokenSource {
	seed := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
	}
	// Expiry is unknown for a loaded token; treat it as expired so the
	// first call validates the refresh token.
	if creds.RefreshToken != "" {
		seed.AccessToken = ""
	}
	return &OAuthTokenSource{
		src: oauth2.ReuseTokenSource(seed, conf.TokenSource(context.Background(), seed)),
	}
}

func (o *OAuthTokenSource) Token(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tok, err := o.src.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return tok.AccessToken, nil
}
