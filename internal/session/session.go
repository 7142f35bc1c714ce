// Package session keeps in-memory chat history. Nothing is persisted. A
// store holds a bounded number of sessions and evicts the least recently
// used one when full.
package session

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"biblerag/internal/domain"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("biblerag: session not found")

// Turn is one question and its answer.
type Turn struct {
	Question string      `json:"question"`
	Answer   string      `json:"answer"`
	Mode     domain.Mode `json:"-"`
	ModeName string      `json:"mode"`
	Outcome  string      `json:"outcome"`
	At       time.Time   `json:"at"`
}

// Session is an append-only history of turns.
type Session struct {
	ID      string
	Created time.Time

	mu    sync.RWMutex
	turns []Turn
}

func newSession() *Session {
	return &Session{ID: uuid.New().String(), Created: time.Now().UTC()}
}

// Append records a turn.
func (s *Session) Append(t Turn) {
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	t.ModeName = t.Mode.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

// Turns returns a copy of the history, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// DefaultMaxSessions bounds a store created with a non-positive limit.
const DefaultMaxSessions = 1000

// Store holds the sessions of one process, at most max of them.
type Store struct {
	mu       sync.Mutex
	max      int
	order    *list.List // front is most recently used
	sessions map[string]*list.Element
}

func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Store{max: max, order: list.New(), sessions: make(map[string]*list.Element)}
}

// New starts a session, evicting the least recently used one if the store
// is full.
func (st *Store) New() *Session {
	s := newSession()
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = st.order.PushFront(s)
	for st.order.Len() > st.max {
		oldest := st.order.Back()
		st.order.Remove(oldest)
		delete(st.sessions, oldest.Value.(*Session).ID)
	}
	return s
}

// Get returns the session with id and marks it as used.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	el, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	st.order.MoveToFront(el)
	return el.Value.(*Session), nil
}

// GetOrNew returns the session with id, or a new one when id is empty.
func (st *Store) GetOrNew(id string) (*Session, error) {
	if id == "" {
		return st.New(), nil
	}
	return st.Get(id)
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.order.Len()
}
