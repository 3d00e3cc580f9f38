package chat

import (
	"context"
	"sync"
	"time"
)

// entry is a session plus the locks guarding it. turn serializes message
// processing; mu guards the data and is never held across extraction.
type entry struct {
	turn chan struct{}

	mu         sync.Mutex
	session    Session
	generation uint64
	cancel     context.CancelFunc
	lastActive time.Time
	evicted    bool
}

func (e *entry) acquire(ctx context.Context) error {
	select {
	case e.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *entry) tryAcquire() bool {
	select {
	case e.turn <- struct{}{}:
		return true
	default:
		return false
	}
}

func (e *entry) release() {
	<-e.turn
}

// SessionStore holds every live session keyed by ID
type SessionStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *SessionStore) getOrCreate(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		now := s.now()
		e = &entry{
			turn:       make(chan struct{}, 1),
			session:    newSession(id, now),
			lastActive: now,
		}
		s.entries[id] = e
	}
	return e
}

func (s *SessionStore) get(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

// lock returns the session's entry with its turn slot held, creating the
// session on first use. The caller must release it.
func (s *SessionStore) lock(ctx context.Context, id string) (*entry, error) {
	for {
		e := s.getOrCreate(id)
		if err := e.acquire(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		evicted := e.evicted
		s.mu.Unlock()
		if !evicted {
			return e, nil
		}
		e.release()
	}
}

// Len returns the number of live sessions
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// sweep drops sessions idle for longer than ttl. Sessions with a message in
// flight are skipped.
func (s *SessionStore) sweep(ttl time.Duration) []string {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, e := range s.entries {
		if !e.tryAcquire() {
			continue
		}
		e.mu.Lock()
		idle := e.lastActive.Before(cutoff)
		e.mu.Unlock()
		if idle {
			e.evicted = true
			delete(s.entries, id)
			removed = append(removed, id)
		}
		e.release()
	}
	return removed
}
