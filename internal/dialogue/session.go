// Package dialogue holds the per-call conversation state machine: session
// state keyed by provider call SID, escalation tracking, and the turn
// controller that drives generation.
package dialogue

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSessionNotFound is returned when a turn arrives for a call whose session
// was never created or was already removed by a terminal status callback.
var ErrSessionNotFound = errors.New("session not found")

// Role identifies the speaker of a turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

// Turn is one utterance in the conversation history.
type Turn struct {
	Role Role
	Text string
}

// Seed carries the decision output and customer fields a session is created
// from. Fields are read once at creation and never again.
type Seed struct {
	Name        string
	DaysPastDue int
	Score       float64
	Amount      decimal.Decimal
	Level       int
	MinPartial  decimal.Decimal
}

// Session is the mutable conversation state for one live call. All field
// mutation happens under mu, held by the controller for the duration of a
// turn and by the store for deletion bookkeeping.
type Session struct {
	mu sync.Mutex

	CallID       string
	SystemPrompt string
	History      []Turn

	// Intensity is the live escalation tone (1..3). It never decreases and
	// is pinned to 3 when the target collection level is 3.
	Intensity   int
	Resists     int
	TargetLevel int
	MinPartial  decimal.Decimal

	IdentityAsked     bool
	IdentityConfirmed bool

	// AddressVariants rotates full name -> first name -> formal honorific.
	// FormalAddress is forced at intensity 3 when set.
	AddressVariants []string
	AddressIdx      int
	FormalAddress   string

	// TurnsEmitted counts agent utterances produced by generation. It drives
	// the vocative cadence (name injected on turns 1, 4, 7, ...).
	TurnsEmitted int

	Closed    bool
	CreatedAt time.Time
}

// nameParts splits a customer name into full/first/last, defaulting to the
// generic "Cliente".
func nameParts(name string) (full, first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	if len(parts) == 0 {
		return "Cliente", "Cliente", ""
	}
	full = strings.Join(parts, " ")
	first = parts[0]
	if len(parts) > 1 {
		last = parts[len(parts)-1]
	}
	return full, first, last
}

// honorific builds the formal address variant. Generic masculine treatment,
// matching current business behavior.
func honorific(last string) string {
	if last == "" {
		return "señor"
	}
	return "señor " + last
}

// nextAddress returns the address variant for a vocative substitution and
// advances the rotation. Intensity 3 forces the formal variant without
// consuming a rotation slot.
func (s *Session) nextAddress() string {
	if len(s.AddressVariants) == 0 {
		return "Cliente"
	}
	if s.Intensity >= 3 && s.FormalAddress != "" {
		return s.FormalAddress
	}
	v := s.AddressVariants[s.AddressIdx%len(s.AddressVariants)]
	s.AddressIdx++
	return v
}

// Store is the process-wide session map. Creation is idempotent per call ID;
// deletion is a no-op when the session is already gone, so a terminal status
// callback racing an in-flight turn is safe.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Ensure returns the session for callID, creating it from seed if absent.
// Existing sessions are returned untouched: history, resistance count and
// intensity survive repeated ensure calls for the same call.
func (s *Store) Ensure(callID string, seed Seed) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[callID]; ok {
		return sess
	}

	full, first, last := nameParts(seed.Name)
	formal := honorific(last)

	intensity := 1
	if seed.Level == 3 {
		intensity = 3
	}

	sess := &Session{
		CallID:          callID,
		SystemPrompt:    renderSystemPrompt(seed),
		Intensity:       intensity,
		TargetLevel:     seed.Level,
		MinPartial:      seed.MinPartial,
		AddressVariants: []string{full, first, formal},
		FormalAddress:   formal,
		CreatedAt:       time.Now(),
	}
	s.sessions[callID] = sess
	return sess
}

// Get returns the session for callID if it exists.
func (s *Store) Get(callID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callID]
	return sess, ok
}

// Delete removes the session for callID. Deleting an absent session is a
// no-op; the return value reports whether a session was actually removed.
func (s *Store) Delete(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[callID]
	delete(s.sessions, callID)
	return ok
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
