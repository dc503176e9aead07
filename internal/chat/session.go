package chat

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/isabella-tue/retrofit/internal/log"
)

// Session store defaults. Sessions slide out after an hour idle; the
// capacity bound keeps an abusive client from filling memory.
const (
	DefaultSessionTTL      = time.Hour
	DefaultSessionCapacity = 1000

	sessionCleanupInterval = 5 * time.Minute
)

// ErrSessionLimit indicates the session store is at capacity.
var ErrSessionLimit = errors.New("session limit reached")

// ErrSessionNotFound indicates the session expired or never existed.
var ErrSessionNotFound = errors.New("session not found")

// Session is one conversation's cached state.
type Session struct {
	ID         string         `json:"session_id"`
	Messages   []Message      `json:"messages"`
	Context    SessionContext `json:"context"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
}

// snapshot copies the session so callers can read it after the store
// lock is released. Messages is cloned because AppendMessages grows it
// in place.
func (sess *Session) snapshot() *Session {
	cp := *sess
	cp.Messages = slices.Clone(sess.Messages)
	return &cp
}

// SessionStore is a TTL-bounded in-memory session cache.
// Reads refresh the TTL so active conversations stay alive.
//
// Accessors return copies; the canonical session is only ever touched
// under the store mutex, so concurrent requests for the same session
// (a streaming turn persisting its messages while a context merge
// lands, say) cannot race on the shared state.
type SessionStore struct {
	mu       sync.Mutex
	cache    *gocache.Cache
	ttl      time.Duration
	capacity int
	logger   log.Logger
}

// NewSessionStore creates a session store. Zero ttl or capacity take the
// package defaults.
func NewSessionStore(ttl time.Duration, capacity int, logger log.Logger) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &SessionStore{
		cache:    gocache.New(ttl, sessionCleanupInterval),
		ttl:      ttl,
		capacity: capacity,
		logger:   logger,
	}
}

// live returns the canonical session, touching it and sliding its
// expiry. Callers must hold s.mu.
func (s *SessionStore) live(id string) (*Session, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	sess.LastActive = time.Now()
	s.cache.SetDefault(id, sess) // slide expiry
	return sess, true
}

// GetOrCreate returns the session for id, creating it when absent.
// An empty id allocates a fresh session with a generated ID.
func (s *SessionStore) GetOrCreate(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.live(id); ok {
			return sess.snapshot(), nil
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	if s.cache.ItemCount() >= s.capacity {
		s.cache.DeleteExpired()
		if s.cache.ItemCount() >= s.capacity {
			return nil, ErrSessionLimit
		}
	}

	now := time.Now()
	sess := &Session{ID: id, CreatedAt: now, LastActive: now}
	s.cache.SetDefault(id, sess)
	s.logger.Debug("session created", "session_id", id)
	return sess.snapshot(), nil
}

// Get returns a copy of the session and refreshes its TTL.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return nil, false
	}
	return sess.snapshot(), true
}

// AppendMessages adds conversation turns to the session history.
func (s *SessionStore) AppendMessages(id string, msgs ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.Messages = append(sess.Messages, msgs...)
	return nil
}

// MergeContext overlays the non-zero fields of update onto the session's
// context and returns the merged result.
func (s *SessionStore) MergeContext(id string, update SessionContext) (SessionContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return SessionContext{}, ErrSessionNotFound
	}
	sess.Context = sess.Context.Merge(update)
	return sess.Context, nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(id)
}

// Len returns the number of live sessions, expired entries included
// until the next cleanup pass.
func (s *SessionStore) Len() int {
	return s.cache.ItemCount()
}

// Stats summarizes cache state for the health endpoint.
func (s *SessionStore) Stats() map[string]any {
	return map[string]any{
		"active_sessions": s.cache.ItemCount(),
		"capacity":        s.capacity,
		"ttl_seconds":     int(s.ttl.Seconds()),
	}
}
