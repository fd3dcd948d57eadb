package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/urban-texture/internal/metrics"
)

// Store is a concurrent-safe in-memory session registry with idle expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a store whose sessions expire after ttl without use. A
// non-positive ttl disables expiry.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create registers a new empty session.
func (st *Store) Create() *Session {
	s := New()
	now := st.now()
	s.CreatedAt, s.lastUsed = now, now

	st.mu.Lock()
	st.sessions[s.ID] = s
	n := len(st.sessions)
	st.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	zap.L().Debug("session: created", zap.String("session", s.ID))
	return s
}

// Get returns the session and marks it used. Expired sessions are removed
// and reported as ErrNotFound.
func (st *Store) Get(id string) (*Session, error) {
	now := st.now()

	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok && st.expired(s, now) {
		delete(st.sessions, id)
		ok = false
	}
	n := len(st.sessions)
	st.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// Delete removes a session.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Len returns the number of live sessions, expired ones included until the
// next sweep.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the session ids in creation order.
func (st *Store) IDs() []string {
	st.mu.RLock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.ID
	}
	return ids
}

// Sweep evicts expired sessions and returns how many were removed.
func (st *Store) Sweep() int {
	now := st.now()

	st.mu.Lock()
	removed := 0
	for id, s := range st.sessions {
		if st.expired(s, now) {
			delete(st.sessions, id)
			removed++
		}
	}
	n := len(st.sessions)
	st.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	if removed > 0 {
		zap.L().Info("session: expired sessions evicted", zap.Int("removed", removed), zap.Int("active", n))
	}
	return removed
}

// Janitor sweeps every interval until ctx is done.
func (st *Store) Janitor(ctx context.Context, interval time.Duration) {
	if st.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}

func (st *Store) expired(s *Session, now time.Time) bool {
	return st.ttl > 0 && now.Sub(s.LastUsed()) > st.ttl
}
