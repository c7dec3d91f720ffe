package strategy

import (
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// Cross is the direction of a range breakout by the moving average.
type Cross int

const (
	CrossNone Cross = iota
	CrossLong
	CrossShort
)

func (c Cross) String() string {
	switch c {
	case CrossLong:
		return "long"
	case CrossShort:
		return "short"
	default:
		return "none"
	}
}

// DetectCross compares two consecutive EMA samples against the range. Long is checked first.
func DetectCross(prev, now, high, low float64) Cross {
	if prev <= high && now > high {
		return CrossLong
	}
	if prev >= low && now < low {
		return CrossShort
	}
	return CrossNone
}

// TrendSignal tracks the fast EMA of bar closes and reports range crossings.
type TrendSignal struct {
	ema *EMA
}

// NewTrendSignal builds a signal over an EMA of period bars.
func NewTrendSignal(period int) *TrendSignal {
	return &TrendSignal{ema: NewEMA(period)}
}

// Value updates the EMA with the bar close and returns the current sample.
func (t *TrendSignal) Value(bar signal.Bar) float64 {
	v, _ := t.ema.Update(bar.Close)
	return v
}

// Cross reports a breakout of [low, high] between the previous and current samples.
func (t *TrendSignal) Cross(high, low float64) Cross {
	prev, ok := t.ema.Prev()
	if !ok {
		return CrossNone
	}
	return DetectCross(prev, t.ema.Value(), high, low)
}

// EMA exposes the underlying indicator for snapshots.
func (t *TrendSignal) EMA() *EMA { return t.ema }
