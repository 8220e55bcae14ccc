package limits

import (
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func overrideLimitsPath(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	orig := limitsPath
	limitsPath = func() string { return filepath.Join(dir, limitsFilename) }
	t.Cleanup(func() { limitsPath = orig })
}

func TestParseHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("x-ratelimit-limit-requests", "5000")
	h.Set("x-ratelimit-remaining-requests", "4999")
	h.Set("x-ratelimit-reset-requests", "12ms")
	h.Set("x-ratelimit-limit-tokens", "800000")
	h.Set("x-ratelimit-remaining-tokens", "799780")
	h.Set("x-ratelimit-reset-tokens", "6m0s")

	snap := ParseHeaders(h)
	require.NotNil(t, snap)
	require.NotNil(t, snap.Requests)
	assert.Equal(t, 5000, snap.Requests.Limit)
	assert.Equal(t, 4999, snap.Requests.Remaining)
	assert.InDelta(t, 0.012, snap.Requests.ResetAfterSeconds, 0.0001)
	require.NotNil(t, snap.Tokens)
	assert.Equal(t, 799780, snap.Tokens.Remaining)
	assert.InDelta(t, 360, snap.Tokens.ResetAfterSeconds, 0.0001)
}

func TestParseHeadersAbsent(t *testing.T) {
	assert.Nil(t, ParseHeaders(http.Header{}))

	h := http.Header{}
	h.Set("x-ratelimit-remaining-requests", "not-a-number")
	assert.Nil(t, ParseHeaders(h))
}

func TestTrackerRecordAndSnapshot(t *testing.T) {
	overrideLimitsPath(t)

	tr := NewTracker()
	h := http.Header{}
	h.Set("x-ratelimit-remaining-requests", "10")
	tr.Record("openai", h)
	tr.Record("openai", nil)
	tr.Record("other", http.Header{})

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 10, snap["openai"].Requests.Remaining)
	assert.False(t, snap["openai"].CapturedAt.IsZero())
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	overrideLimitsPath(t)

	tr := NewTracker()
	h := http.Header{}
	h.Set("x-ratelimit-remaining-tokens", "1234")
	tr.Record("openai", h)

	reloaded := NewTracker()
	snap := reloaded.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1234, snap["openai"].Tokens.Remaining)
}

func TestStaleSnapshotDiscardedOnLoad(t *testing.T) {
	overrideLimitsPath(t)

	store(map[string]Snapshot{
		"openai": {
			Tokens:     &Window{Remaining: 1},
			CapturedAt: time.Now().UTC().Add(-48 * time.Hour),
		},
	})

	tr := NewTracker()
	assert.Empty(t, tr.Snapshot())
}
