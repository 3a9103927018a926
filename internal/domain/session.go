package domain

import (
	"sync"
	"time"
)

// Session is a conference of two call legs, identified by its bridge id.
// Leg A is the first/original party; leg B is the originated destination
// party and is empty until origination succeeds.
//
// The terminating and joined flags each flip false->true at most once.
// Once terminating is set no further join or leg mutation is permitted.
// All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	bridgeID string
	legA     string
	legB     string

	terminating bool
	joined      bool

	createdAt time.Time
}

// SessionInfo is the read-only snapshot of a session exposed over the
// management API.
type SessionInfo struct {
	BridgeID  string    `json:"id"`
	LegA      string    `json:"leg_a"`
	LegB      string    `json:"leg_b,omitempty"`
	Joined    bool      `json:"joined"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates a session for a freshly created bridge with its
// first leg.
func NewSession(bridgeID, legA string) *Session {
	return &Session{
		bridgeID:  bridgeID,
		legA:      legA,
		createdAt: time.Now(),
	}
}

// BridgeID returns the bridge id, which is also the session id.
func (s *Session) BridgeID() string { return s.bridgeID }

// LegA returns the first party's leg id.
func (s *Session) LegA() string { return s.legA }

// LegB returns the destination party's leg id, empty until originated.
func (s *Session) LegB() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.legB
}

// SetLegB records the originated second leg. It refuses the update when
// the session is already terminating, so a teardown that raced the
// origination wins; the caller must then hang the new leg up.
func (s *Session) SetLegB(legID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminating {
		return false
	}
	s.legB = legID
	return true
}

// Terminating reports whether teardown has begun.
func (s *Session) Terminating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminating
}

// BeginTerminate flips the terminating flag and reports whether this
// caller won the transition. A second concurrent teardown observes
// false and must exit immediately.
func (s *Session) BeginTerminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminating {
		return false
	}
	s.terminating = true
	return true
}

// Joined reports whether both legs have been added to the bridge.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// MarkJoined flips the joined flag and reports whether this caller won
// the transition. It fails when the session is terminating: a leg that
// becomes ready after teardown started must never be bridged.
func (s *Session) MarkJoined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminating || s.joined {
		return false
	}
	s.joined = true
	return true
}

// Legs returns the known leg ids, leg A first.
func (s *Session) Legs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	legs := []string{s.legA}
	if s.legB != "" {
		legs = append(legs, s.legB)
	}
	return legs
}

// Owns reports whether legID belongs to this session.
func (s *Session) Owns(legID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return legID == s.legA || (s.legB != "" && legID == s.legB)
}

// Info returns a point-in-time snapshot.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		BridgeID:  s.bridgeID,
		LegA:      s.legA,
		LegB:      s.legB,
		Joined:    s.joined,
		CreatedAt: s.createdAt,
	}
}
