package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenSource(t *testing.T) {
	tok, err := StaticTokenSource("sk-test").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-test", tok)

	_, err = StaticTokenSource("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestEnvTokenSourceReadsPerCall(t *testing.T) {
	t.Setenv("LLMGATE_TEST_KEY", "first")
	src := EnvTokenSource("LLMGATE_TEST_KEY")

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	t.Setenv("LLMGATE_TEST_KEY", "rotated")
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", tok)
}

func TestReadCredentialFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LLMGATE_HOME", dir)

	_, err := ReadCredentialFile("antigravity")
	assert.ErrorIs(t, err, ErrNoCredentials)

	data := `{"access_token":"at","refresh_token":"rt","project_id":"proj"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "antigravity.json"), []byte(data), 0o600))

	cf, err := ReadCredentialFile("antigravity")
	require.NoError(t, err)
	assert.Equal(t, "rt", cf.RefreshToken)
	assert.Equal(t, "proj", cf.ProjectID)
}
