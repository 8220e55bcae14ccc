// Package limits tracks upstream rate-limit state from response headers, so
// the gateway can report how much provider quota remains without a separate
// billing call.
package limits

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"llmgate/internal/auth"
)

const limitsFilename = "usage_limits.json"

// Window is one rate-limit dimension (requests or tokens).
type Window struct {
	Limit             int     `json:"limit"`
	Remaining         int     `json:"remaining"`
	ResetAfterSeconds float64 `json:"reset_after_seconds,omitempty"`
}

// Snapshot is the last observed rate-limit state for one provider.
type Snapshot struct {
	Requests   *Window   `json:"requests,omitempty"`
	Tokens     *Window   `json:"tokens,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// ParseHeaders extracts rate-limit state from OpenAI-style response headers.
// Returns nil when the upstream sent none.
func ParseHeaders(h http.Header) *Snapshot {
	requests := parseWindow(h,
		"x-ratelimit-limit-requests",
		"x-ratelimit-remaining-requests",
		"x-ratelimit-reset-requests",
	)
	tokens := parseWindow(h,
		"x-ratelimit-limit-tokens",
		"x-ratelimit-remaining-tokens",
		"x-ratelimit-reset-tokens",
	)
	if requests == nil && tokens == nil {
		return nil
	}
	return &Snapshot{Requests: requests, Tokens: tokens}
}

func parseWindow(h http.Header, limitKey, remainingKey, resetKey string) *Window {
	remainingStr := h.Get(remainingKey)
	if remainingStr == "" {
		return nil
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil
	}
	w := &Window{Remaining: remaining}
	if v := h.Get(limitKey); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			w.Limit = i
		}
	}
	if v := h.Get(resetKey); v != "" {
		// Reset headers come as Go-style durations ("6m0s", "820ms").
		if d, err := time.ParseDuration(v); err == nil {
			w.ResetAfterSeconds = d.Seconds()
		}
	}
	return w
}

// Tracker keeps the latest snapshot per provider. Safe for concurrent use;
// every recorded snapshot is also persisted so a restarted gateway still
// knows the last observed state.
type Tracker struct {
	mu         sync.Mutex
	byProvider map[string]Snapshot
}

// NewTracker builds a tracker seeded from the persisted snapshot file, if a
// fresh one exists.
func NewTracker() *Tracker {
	t := &Tracker{byProvider: map[string]Snapshot{}}
	if stored := loadStored(); stored != nil {
		t.byProvider = stored
	}
	return t
}

// Record captures rate-limit headers from an upstream response.
func (t *Tracker) Record(provider string, h http.Header) {
	if h == nil {
		return
	}
	snap := ParseHeaders(h)
	if snap == nil {
		return
	}
	snap.CapturedAt = time.Now().UTC()

	t.mu.Lock()
	t.byProvider[provider] = *snap
	persisted := make(map[string]Snapshot, len(t.byProvider))
	for k, v := range t.byProvider {
		persisted[k] = v
	}
	t.mu.Unlock()

	store(persisted)
}

// Snapshot returns a copy of the latest state per provider.
func (t *Tracker) Snapshot() map[string]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Snapshot, len(t.byProvider))
	for k, v := range t.byProvider {
		out[k] = v
	}
	return out
}

// limitsPath is a function variable so tests can override the path.
var limitsPath = func() string {
	return filepath.Join(auth.HomeDir(), limitsFilename)
}

func store(snapshots map[string]Snapshot) {
	dir := filepath.Dir(limitsPath())
	_ = os.MkdirAll(dir, 0o700)
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(limitsPath(), data, 0o600)
}

// maxSnapshotAge bounds how stale a persisted snapshot may be before it is
// discarded on load.
const maxSnapshotAge = 24 * time.Hour

func loadStored() map[string]Snapshot {
	data, err := os.ReadFile(limitsPath())
	if err != nil {
		return nil
	}
	var snapshots map[string]Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil
	}
	cutoff := time.Now().UTC().Add(-maxSnapshotAge)
	for k, v := range snapshots {
		if v.CapturedAt.Before(cutoff) {
			delete(snapshots, k)
		}
	}
	if len(snapshots) == 0 {
		return nil
	}
	return snapshots
}
