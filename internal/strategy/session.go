package strategy

import (
	"math"
	"time"
)

// SessionTransition is the outcome of feeding a bar to the SessionManager.
type SessionTransition int

const (
	SessionNone SessionTransition = iota
	SessionReset
)

// SessionState holds the per-day fields. It is created once per engine and reset in place.
type SessionState struct {
	CurrentSessionDate time.Time
	RangeHigh          float64
	RangeLow           float64
	RangeCaptured      bool
	NoRange            bool
	ReversalUsed       bool

	markerSeen bool
}

func newSessionState() *SessionState {
	return &SessionState{RangeHigh: math.Inf(-1), RangeLow: math.Inf(1)}
}

// ClaimReversal flips ReversalUsed and reports whether the caller won the claim.
func (s *SessionState) ClaimReversal() bool {
	if s.ReversalUsed {
		return false
	}
	s.ReversalUsed = true
	return true
}

// SessionManager detects trading-day boundaries and resets SessionState.
type SessionManager struct {
	state         *SessionState
	resetReversal bool
}

// NewSessionManager binds a manager to the engine's session state.
func NewSessionManager(state *SessionState, resetReversal bool) *SessionManager {
	return &SessionManager{state: state, resetReversal: resetReversal}
}

// OnBar resets the session when ts falls on a new calendar date or the source marks the
// first bar of a session not yet started by a marker. ts must already be in the session location.
func (m *SessionManager) OnBar(ts time.Time, sessionStart bool) SessionTransition {
	y, mo, d := ts.Date()
	date := time.Date(y, mo, d, 0, 0, 0, 0, ts.Location())
	newDate := m.state.CurrentSessionDate.IsZero() || !date.Equal(m.state.CurrentSessionDate)
	if !newDate && !(sessionStart && !m.state.markerSeen) {
		return SessionNone
	}

	s := m.state
	s.CurrentSessionDate = date
	s.RangeHigh = math.Inf(-1)
	s.RangeLow = math.Inf(1)
	s.RangeCaptured = false
	s.NoRange = false
	if m.resetReversal {
		s.ReversalUsed = false
	}
	s.markerSeen = sessionStart
	return SessionReset
}
