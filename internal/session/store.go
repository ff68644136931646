// Package session keeps the short-term conversation history for each end
// user in process memory.
package session

import (
	"sync"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one message exchanged with a user. Turns are never modified once
// appended.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Store is the history contract consumed by the relay.
type Store interface {
	Append(userID string, speaker Speaker, text string)
	History(userID string) []Turn
}

// MemoryStore is a Store backed by a map of per-user slices.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Turn
	maxTurns int
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// Option customizes a MemoryStore.
type Option func(*MemoryStore)

// WithMaxTurns keeps only the most recent n turns per user. Zero or a
// negative value disables the cap.
func WithMaxTurns(n int) Option {
	return func(s *MemoryStore) {
		if n < 0 {
			n = 0
		}
		s.maxTurns = n
	}
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string][]Turn),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records a turn for userID, creating the session on first use.
func (s *MemoryStore) Append(userID string, speaker Speaker, text string) {
	turn := Turn{Speaker: speaker, Text: text, At: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[userID], turn)
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		// Copy so the dropped prefix can be collected.
		trimmed := make([]Turn, s.maxTurns)
		copy(trimmed, turns[len(turns)-s.maxTurns:])
		turns = trimmed
	}
	s.sessions[userID] = turns
}

// History returns a copy of the turns recorded for userID in chronological
// order. Unknown users get an empty slice.
func (s *MemoryStore) History(userID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[userID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Users reports how many sessions exist.
func (s *MemoryStore) Users() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// MaxTurns returns the configured per-user cap (0 means unbounded).
func (s *MemoryStore) MaxTurns() int {
	return s.maxTurns
}
