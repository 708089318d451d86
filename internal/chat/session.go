// Package chat implements the data-grounded assistant: session history,
// a data-context builder over the dashboard statistics and the forecast
// engine, and the conversation loop against an OpenAI-compatible model.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one stored turn of a conversation.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"message_metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SessionStore holds conversation history keyed by session ID.
// Implementations decide retention; callers must tolerate a session
// disappearing between calls.
type SessionStore interface {
	Get(sessionID string) []Message
	Append(sessionID string, msg Message)
	Clear(sessionID string)
	Sessions() []string
}

// memorySession is one session's history plus its last-touch time
// for TTL and eviction decisions.
type memorySession struct {
	messages []Message
	touched  time.Time
}

// MemorySessionStore is a mutex-guarded in-memory SessionStore. Sessions
// idle longer than ttl are dropped lazily on access, and when the session
// count exceeds maxSessions the least recently touched one is evicted.
type MemorySessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*memorySession
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

// NewMemorySessionStore creates a store with the given idle TTL and
// session cap. A non-positive cap disables eviction by count.
func NewMemorySessionStore(ttl time.Duration, maxSessions int) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:    make(map[string]*memorySession),
		ttl:         ttl,
		maxSessions: maxSessions,
		now:         time.Now,
	}
}

// Get returns a copy of the session's history, or nil for an unknown or
// expired session.
func (s *MemorySessionStore) Get(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.touched = s.now()

	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// Append adds a message to the session, creating it if needed. Missing
// message IDs and timestamps are filled in.
func (s *MemorySessionStore) Append(sessionID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.SessionID = sessionID

	sess, ok := s.sessions[sessionID]
	if !ok {
		s.evictOldestLocked()
		sess = &memorySession{}
		s.sessions[sessionID] = sess
	}
	sess.messages = append(sess.messages, msg)
	sess.touched = s.now()
}

// Clear removes the session and its history.
func (s *MemorySessionStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sessions returns the IDs of all live sessions.
func (s *MemorySessionStore) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// expireLocked drops sessions idle past the TTL. Caller holds the lock.
func (s *MemorySessionStore) expireLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.touched.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// evictOldestLocked makes room for one new session when the cap is hit.
// Caller holds the lock.
func (s *MemorySessionStore) evictOldestLocked() {
	if s.maxSessions <= 0 || len(s.sessions) < s.maxSessions {
		return
	}
	var oldestID string
	var oldest time.Time
	for id, sess := range s.sessions {
		if oldestID == "" || sess.touched.Before(oldest) {
			oldestID = id
			oldest = sess.touched
		}
	}
	delete(s.sessions, oldestID)
}
