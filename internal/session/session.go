// Package session keeps the answers given within one application flow so
// the same question gets the same answer until the user asks for a new one.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/autoresumefiller/autofill/internal/model"
)

const (
	DefaultInactivityTimeout = 24 * time.Hour
	DefaultSweepInterval     = time.Hour
)

var (
	ErrNotFound = eris.New("session: not found")
	ErrEnded    = eris.New("session: ended")
)

// Session is one application flow. Its methods are safe for concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	answers    map[string]recorded
	regenerate map[string]bool
	ended      atomic.Bool
}

type recorded struct {
	label  string
	answer model.AIAnswer
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  now,
		lastActive: now,
		answers:    make(map[string]recorded),
		regenerate: make(map[string]bool),
	}
}

// Ended reports whether the session was ended or expired. In-flight work
// holding a handle checks this before publishing results.
func (s *Session) Ended() bool {
	return s.ended.Load()
}

// LastActive returns the time of the last access.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Record stores the answer given for label.
func (s *Session) Record(label string, answer model.AIAnswer) error {
	if s.Ended() {
		return ErrEnded
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[model.NormalizeLabel(label)] = recorded{label: label, answer: answer}
	return nil
}

// Answer returns the answer recorded for label.
func (s *Session) Answer(label string) (model.AIAnswer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.answers[model.NormalizeLabel(label)]
	return r.answer, ok
}

// PriorAnswers returns a snapshot of label to answer text.
func (s *Session) PriorAnswers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.answers))
	for _, r := range s.answers {
		out[r.label] = r.answer.Text
	}
	return out
}

// MarkForRegeneration forces the next resolve of fieldID to bypass the
// session and the response cache.
func (s *Session) MarkForRegeneration(fieldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regenerate[fieldID] = true
}

// NeedsRegeneration reports whether fieldID is flagged for regeneration.
func (s *Session) NeedsRegeneration(fieldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regenerate[fieldID]
}

// ClearRegeneration drops the regeneration flag once a fresh answer for
// fieldID has been recorded.
func (s *Session) ClearRegeneration(fieldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regenerate, fieldID)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// Store holds live sessions and reclaims inactive ones.
type Store struct {
	mu      sync.Mutex
	items   *gocache.Cache
	timeout time.Duration
	nowFunc func() time.Time
}

// New creates a store whose sessions expire after timeout without access.
// The sweep runs every sweepInterval.
func New(timeout, sweepInterval time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	items := gocache.New(timeout, sweepInterval)
	items.OnEvicted(func(id string, v any) {
		if s, ok := v.(*Session); ok {
			s.ended.Store(true)
			zap.L().Debug("session: reclaimed", zap.String("session_id", id))
		}
	})
	return &Store{items: items, timeout: timeout, nowFunc: time.Now}
}

// Start opens a new session and returns its id.
func (st *Store) Start() string {
	id := uuid.NewString()
	st.put(newSession(id, st.nowFunc()))
	return id
}

// StartWithID opens a session under a caller-chosen id. An already active
// session with that id is kept.
func (st *Store) StartWithID(id string) (*Session, error) {
	if id == "" {
		return nil, eris.New("session: empty id")
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if v, ok := st.items.Get(id); ok {
		s := v.(*Session)
		st.refreshLocked(s)
		return s, nil
	}
	s := newSession(id, st.nowFunc())
	st.items.Set(id, s, gocache.DefaultExpiration)
	return s, nil
}

func (st *Store) put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.items.Set(s.ID, s, gocache.DefaultExpiration)
}

// Get returns the session and refreshes its expiry.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.items.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	s := v.(*Session)
	st.refreshLocked(s)
	return s, nil
}

func (st *Store) refreshLocked(s *Session) {
	s.touch(st.nowFunc())
	st.items.Set(s.ID, s, gocache.DefaultExpiration)
}

// RecordAnswer stores the answer given for label in session id.
func (st *Store) RecordAnswer(id, label string, answer model.AIAnswer) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	return s.Record(label, answer)
}

// Answer returns the answer recorded for label in session id.
func (st *Store) Answer(id, label string) (model.AIAnswer, bool) {
	s, err := st.Get(id)
	if err != nil {
		return model.AIAnswer{}, false
	}
	return s.Answer(label)
}

// PriorAnswers returns a snapshot of the answers recorded in session id.
func (st *Store) PriorAnswers(id string) map[string]string {
	s, err := st.Get(id)
	if err != nil {
		return map[string]string{}
	}
	return s.PriorAnswers()
}

// MarkForRegeneration flags fieldID in session id for regeneration.
func (st *Store) MarkForRegeneration(id, fieldID string) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	s.MarkForRegeneration(fieldID)
	return nil
}

// NeedsRegeneration reports whether fieldID in session id is flagged.
func (st *Store) NeedsRegeneration(id, fieldID string) bool {
	s, err := st.Get(id)
	if err != nil {
		return false
	}
	return s.NeedsRegeneration(fieldID)
}

// EndSession ends and removes session id. It reports whether the session
// existed.
func (st *Store) EndSession(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.items.Get(id)
	if !ok {
		return false
	}
	v.(*Session).ended.Store(true)
	// Delete fires OnEvicted, which is idempotent for ended sessions.
	st.items.Delete(id)
	zap.L().Info("session: ended", zap.String("session_id", id))
	return true
}

// IsActive reports whether session id exists and has not ended.
func (st *Store) IsActive(id string) bool {
	v, ok := st.items.Get(id)
	return ok && !v.(*Session).Ended()
}

// Sweep removes expired sessions now and returns how many were removed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	before := st.items.ItemCount()
	st.items.DeleteExpired()
	return before - st.items.ItemCount()
}

// Len returns the number of stored sessions, including expired ones not yet
// swept.
func (st *Store) Len() int {
	return st.items.ItemCount()
}
