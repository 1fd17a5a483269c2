package services

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/ledgerdesk/backend/src/logger"
)

// Session is an editing session held in the SessionStore.
type Session interface {
	SessionID() string
	Kind() string
	// Close cancels in-flight work and drops local state. Called on delete or expiry and
	// safe to call more than once.
	Close()
	// Closed reports whether Close has been called.
	Closed() bool
}

// closeOnce is embedded by sessions to track Close.
type closeOnce struct {
	closed atomic.Bool
}

// markClosed reports whether this call closed the session.
func (c *closeOnce) markClosed() bool { return c.closed.CompareAndSwap(false, true) }

func (c *closeOnce) Closed() bool { return c.closed.Load() }

// SessionStore keeps sessions in memory with a sliding expiry.
type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSessionStore creates a store whose sessions expire after ttl without access.
func NewSessionStore(ttl, cleanupInterval time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = SessionCleanupInterval
	}
	c := cache.New(ttl, cleanupInterval)
	c.OnEvicted(func(id string, v interface{}) {
		if s, ok := v.(Session); ok {
			logger.L.Info("Session closed", "sessionID", id, "sessionKind", s.Kind())
			s.Close()
		}
	})
	return &SessionStore{cache: c, ttl: ttl}
}

// NewSessionID returns a random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Put stores a session.
func (s *SessionStore) Put(session Session) {
	s.cache.Set(session.SessionID(), session, cache.DefaultExpiration)
}

// Get returns a session and extends its expiry. A closed session is never returned:
// the janitor may evict and close it between the lookup and the refresh, so the refreshed
// entry is checked again and dropped.
func (s *SessionStore) Get(id string) (Session, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	session, ok := v.(Session)
	if !ok {
		return nil, false
	}
	if session.Closed() {
		s.cache.Delete(id)
		return nil, false
	}
	s.cache.Set(id, session, cache.DefaultExpiration)
	if session.Closed() {
		s.cache.Delete(id)
		return nil, false
	}
	return session, true
}

// Delete removes a session and closes it.
func (s *SessionStore) Delete(id string) bool {
	if _, ok := s.cache.Get(id); !ok {
		return false
	}
	s.cache.Delete(id)
	return true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.cache.ItemCount()
}

func getSession[T Session](store *SessionStore, id string) (T, error) {
	var zero T
	session, ok := store.Get(id)
	if !ok {
		return zero, ErrSessionNotFound
	}
	typed, ok := session.(T)
	if !ok {
		return zero, ErrSessionNotFound
	}
	return typed, nil
}
