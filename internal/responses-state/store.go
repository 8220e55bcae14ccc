// Package responsesstate keeps per-response conversation snapshots so
// Responses-protocol clients can chain turns with previous_response_id even
// when the upstream provider has no server-side conversation memory. After
// each reply the gateway stores the full canonical history under the
// response id; the next request that names that id gets the history
// prepended before conversion.
package responsesstate

import (
	"container/list"
	"sync"
	"time"

	"llmgate/internal/types"
)

const (
	// DefaultTTL bounds how long a conversation snapshot is retained.
	DefaultTTL = 60 * time.Minute
	// DefaultCapacity caps stored snapshots; LRU eviction keeps the most
	// recently used ones within the limit.
	DefaultCapacity = 10000
	// cleanupTick is the interval between background expired-entry sweeps.
	cleanupTick = 30 * time.Second
)

// Snapshot is the stored conversation state for one response id.
type Snapshot struct {
	System   string
	Messages []types.CanonicalMessage
}

type entry struct {
	snapshot   Snapshot
	lastAccess time.Time
	listElem   *list.Element
}

// Store is an in-memory snapshot store with TTL expiry and LRU capacity
// eviction. Safe for concurrent use. The caller must Close it to stop the
// background sweep goroutine.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List
	ttl      time.Duration
	capacity int
	stopCh   chan struct{}
	done     chan struct{}
}

// NewStore creates a snapshot store. Non-positive ttl or capacity fall back
// to the defaults.
func NewStore(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		ttl:      ttl,
		capacity: capacity,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Close stops the background sweep goroutine and waits for it to finish.
func (s *Store) Close() {
	close(s.stopCh)
	<-s.done
}

func (s *Store) cleanupLoop() {
	defer close(s.done)
	ticker := time.NewTicker(cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			s.cleanupExpiredLocked(now)
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Put saves a conversation snapshot under a response id.
func (s *Store) Put(responseID string, snap Snapshot) {
	if responseID == "" || (snap.System == "" && len(snap.Messages) == 0) {
		return
	}
	snap.Messages = cloneMessages(snap.Messages)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[responseID]
	if !ok {
		e = &entry{}
		s.entries[responseID] = e
	}
	e.snapshot = snap
	e.lastAccess = now
	s.touchLocked(responseID, e)
	s.evictIfNeededLocked()
}

// Get returns the stored snapshot for a response id.
func (s *Store) Get(responseID string) (Snapshot, bool) {
	if responseID == "" {
		return Snapshot{}, false
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[responseID]
	if !ok {
		return Snapshot{}, false
	}
	e.lastAccess = now
	s.touchLocked(responseID, e)

	return Snapshot{
		System:   e.snapshot.System,
		Messages: cloneMessages(e.snapshot.Messages),
	}, true
}

// Len returns the current entry count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) touchLocked(id string, e *entry) {
	if e.listElem != nil {
		s.lru.MoveToFront(e.listElem)
	} else {
		e.listElem = s.lru.PushFront(id)
	}
}

func (s *Store) cleanupExpiredLocked(now time.Time) {
	for id, e := range s.entries {
		if now.Sub(e.lastAccess) > s.ttl {
			if e.listElem != nil {
				s.lru.Remove(e.listElem)
			}
			delete(s.entries, id)
		}
	}
}

func (s *Store) evictIfNeededLocked() {
	for len(s.entries) > s.capacity {
		back := s.lru.Back()
		if back == nil {
			return
		}
		id := back.Value.(string)
		s.lru.Remove(back)
		if e, ok := s.entries[id]; ok {
			e.listElem = nil
			delete(s.entries, id)
		}
	}
}

func cloneMessages(msgs []types.CanonicalMessage) []types.CanonicalMessage {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]types.CanonicalMessage, len(msgs))
	copy(out, msgs)
	for i := range out {
		if len(msgs[i].Blocks) > 0 {
			blocks := make([]types.ContentBlock, len(msgs[i].Blocks))
			copy(blocks, msgs[i].Blocks)
			out[i].Blocks = blocks
		}
		if len(msgs[i].ToolCalls) > 0 {
			calls := make([]types.CanonicalToolCall, len(msgs[i].ToolCalls))
			copy(calls, msgs[i].ToolCalls)
			out[i].ToolCalls = calls
		}
	}
	return out
}
