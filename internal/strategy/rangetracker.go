package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// ErrInvalidWindow is returned when the range window starts after it ends.
var ErrInvalidWindow = errors.New("range window start is after end")

// RangeWindow is the daily interval whose high/low is captured. Wraparound is not supported.
type RangeWindow struct {
	Start ClockTime
	End   ClockTime
}

// DefaultWindow is 09:30-10:00.
func DefaultWindow() RangeWindow { return RangeWindow{Start: Clock(9, 30), End: Clock(10, 0)} }

// Validate rejects inverted or out-of-day windows.
func (w RangeWindow) Validate() error {
	if w.Start < 0 || w.End >= day {
		return fmt.Errorf("range window %s-%s outside a single day", w.Start, w.End)
	}
	if w.Start > w.End {
		return fmt.Errorf("%w: %s > %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Contains reports whether tod lies in [Start, End].
func (w RangeWindow) Contains(tod ClockTime) bool { return tod >= w.Start && tod <= w.End }

func (w RangeWindow) String() string { return w.Start.String() + "-" + w.End.String() }

// RangeTracker accumulates the window's high/low into the session state and freezes it.
type RangeTracker struct {
	window RangeWindow
	state  *SessionState
}

// NewRangeTracker binds a tracker to the engine's session state.
func NewRangeTracker(window RangeWindow, state *SessionState) *RangeTracker {
	return &RangeTracker{window: window, state: state}
}

// IsWindowOpen reports whether tod is inside the capture window.
func (r *RangeTracker) IsWindowOpen(tod ClockTime) bool { return r.window.Contains(tod) }

// IsCaptured reports whether the window closed for the current session.
func (r *RangeTracker) IsCaptured() bool { return r.state.RangeCaptured }

// Tradable reports whether a captured range exists to trade against.
func (r *RangeTracker) Tradable() bool { return r.state.RangeCaptured && !r.state.NoRange }

// Bounds returns the accumulated high and low.
func (r *RangeTracker) Bounds() (float64, float64) { return r.state.RangeHigh, r.state.RangeLow }

// OnBar folds a bar into the range. It returns true on the bar that finalizes capture.
func (r *RangeTracker) OnBar(ts time.Time, bar signal.Bar) bool {
	s := r.state
	if s.RangeCaptured {
		return false
	}
	tod := TimeOfDay(ts)
	if r.window.Contains(tod) {
		s.RangeHigh = math.Max(s.RangeHigh, bar.High)
		s.RangeLow = math.Min(s.RangeLow, bar.Low)
		return false
	}
	if tod <= r.window.End {
		return false
	}
	s.RangeCaptured = true
	s.NoRange = math.IsInf(s.RangeHigh, -1) || math.IsInf(s.RangeLow, 1)
	return true
}
