// Package session owns conversation session lifecycle: create on first
// sight, mutate under a per-id lock, expire after inactivity. Expired
// sessions are retired (archived) and never resurrected; a new session is
// created transparently for the same id.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/honeygrid/scamtrap/internal/domain"
)

// RetireFunc receives a session as it leaves active storage, either through
// lazy expiry, the background sweep, or shutdown. Implementations must not
// retain the pointer past the call.
type RetireFunc func(ctx context.Context, s *domain.Session)

// Store is the keyed session container used by the orchestrator.
type Store interface {
	// Update runs fn with exclusive access to the session for id,
	// creating it first if the store has not seen the id (or the previous
	// session expired). created reports whether fn received a fresh
	// session. The mutation is committed when fn returns nil; fn errors
	// abort the turn and leave the last committed state in place.
	Update(ctx context.Context, id string, fn func(s *domain.Session, created bool) error) error

	// Snapshot returns a deep copy of the session for id, if present and
	// unexpired. Read-only; never blocks writers beyond the copy.
	Snapshot(id string) (*domain.Session, bool)

	// Active returns the number of live sessions.
	Active() int

	// Sweep retires all expired sessions and returns how many it removed.
	// Lazy expiry on access is the correctness mechanism; Sweep just
	// keeps idle sessions from lingering until their id is seen again.
	Sweep(ctx context.Context) int

	// Close retires every remaining session.
	Close(ctx context.Context) error
}

type entry struct {
	mu sync.Mutex
	s  *domain.Session
}

// MemoryStore is the in-memory Store. A global mutex guards the map;
// each session carries its own lock so distinct ids never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry

	window time.Duration
	retire RetireFunc
	nowFn  func() time.Time
}

// NewMemoryStore creates a store with the given inactivity window.
// retire may be nil.
func NewMemoryStore(window time.Duration, retire RetireFunc) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		window:  window,
		retire:  retire,
		nowFn:   time.Now,
	}
}

// Update implements Store.
func (m *MemoryStore) Update(ctx context.Context, id string, fn func(s *domain.Session, created bool) error) error {
	e := m.lockEntry(id)
	defer e.mu.Unlock()

	now := m.nowFn()
	created := false
	if e.s == nil {
		e.s = domain.NewSession(id, now)
		created = true
		slog.Info("session created", "session_id", id)
	} else if m.expired(e.s, now) {
		m.retireSession(ctx, e.s)
		e.s = domain.NewSession(id, now)
		created = true
		slog.Info("session expired, recreated", "session_id", id)
	}

	// fn mutates a working copy; committing means swapping it in. An fn
	// error leaves the previous committed state untouched.
	work := cloneSession(e.s)
	if err := fn(work, created); err != nil {
		return err
	}
	work.LastActiveAt = m.nowFn()
	e.s = work
	return nil
}

// Snapshot implements Store.
func (m *MemoryStore) Snapshot(id string) (*domain.Session, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s == nil || m.expired(e.s, m.nowFn()) {
		return nil, false
	}
	return cloneSession(e.s), true
}

// Active implements Store.
func (m *MemoryStore) Active() int {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	now := m.nowFn()
	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.s != nil && !m.expired(e.s, now) {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Sweep implements Store.
func (m *MemoryStore) Sweep(ctx context.Context) int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		m.mu.RLock()
		e, ok := m.entries[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		if e.s != nil && m.expired(e.s, m.nowFn()) {
			m.retireSession(ctx, e.s)
			e.s = nil
			removed++
		}
		if e.s == nil {
			// Drop the map entry while still holding its lock so an
			// Update waiting on this entry re-resolves instead of
			// committing into an orphan.
			m.mu.Lock()
			if cur, ok := m.entries[id]; ok && cur == e {
				delete(m.entries, id)
			}
			m.mu.Unlock()
		}
		e.mu.Unlock()
	}
	if removed > 0 {
		slog.Info("session sweep complete", "expired", removed)
	}
	return removed
}

// Close implements Store.
func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		if e.s != nil {
			m.retireSession(ctx, e.s)
			e.s = nil
		}
		e.mu.Unlock()
	}
	return nil
}

// StartSweeper runs Sweep on the given interval until ctx is canceled.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// lockEntry returns the live entry for id with its mutex held. An entry
// can be removed from the map while a caller waits on its lock; such an
// orphan must never receive a commit, so re-resolve and retry.
func (m *MemoryStore) lockEntry(id string) *entry {
	for {
		e := m.entryFor(id)
		e.mu.Lock()
		m.mu.RLock()
		cur := m.entries[id]
		m.mu.RUnlock()
		if cur == e {
			return e
		}
		e.mu.Unlock()
	}
}

func (m *MemoryStore) entryFor(id string) *entry {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok = m.entries[id]; ok {
		return e
	}
	e = &entry{}
	m.entries[id] = e
	return e
}

func (m *MemoryStore) expired(s *domain.Session, now time.Time) bool {
	return m.window > 0 && now.Sub(s.LastActiveAt) > m.window
}

func (m *MemoryStore) retireSession(ctx context.Context, s *domain.Session) {
	s.Status = domain.SessionExpired
	if m.retire != nil {
		m.retire(ctx, s)
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	clone := *s
	clone.Turns = append([]domain.Turn(nil), s.Turns...)
	clone.VerdictTrend = append([]domain.Verdict(nil), s.VerdictTrend...)
	clone.Entities = make(map[domain.EntityKey]domain.Entity, len(s.Entities))
	for k, v := range s.Entities {
		clone.Entities[k] = v
	}
	clone.Categories = make(map[string]struct{}, len(s.Categories))
	for c := range s.Categories {
		clone.Categories[c] = struct{}{}
	}
	return &clone
}
