// Package signal standardizes payloads shared between data ingestion, the breakout engine and execution.
package signal

import (
	"fmt"
	"math"
	"time"
)

// Bar models one aggregated OHLCV candle consumed by the engine.
type Bar struct {
	Symbol       string
	Ts           time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	SessionStart bool // first bar of a trading session according to the source
}

// Validate reports whether the bar carries usable prices.
func (b Bar) Validate() error {
	if b.Ts.IsZero() {
		return fmt.Errorf("bar has zero timestamp")
	}
	for _, px := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(px) || math.IsInf(px, 0) || px <= 0 {
			return fmt.Errorf("bar has invalid price %v", px)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("bar high %.5f below low %.5f", b.High, b.Low)
	}
	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return fmt.Errorf("bar has invalid volume %v", b.Volume)
	}
	return nil
}

// Kind enumerates the instructions the engine can hand to the execution layer.
type Kind string

const (
	EnterLong       Kind = "EnterLong"
	EnterShort      Kind = "EnterShort"
	SetStopLoss     Kind = "SetStopLoss"
	SetProfitTarget Kind = "SetProfitTarget"
)

// Unit is the convention protective amounts are expressed in.
type Unit string

const (
	Currency Unit = "currency"
	Ticks    Unit = "ticks"
)

// Reasons attached to intents.
const (
	ReasonLongBreakout  = "LongBreakout"
	ReasonShortBreakout = "ShortBreakout"
	ReasonReversalLong  = "ReversalLong"
	ReasonReversalShort = "ReversalShort"
	ReasonBreakEven     = "ProfitTargetReached"
	ReasonInitialStop   = "InitialStop"
	ReasonInitialTarget = "InitialTarget"
)

// Intent is a typed instruction emitted by the engine. Entries carry Qty; protective
// intents carry Amount in Unit.
type Intent struct {
	ID     string
	Symbol string
	Kind   Kind
	Qty    float64
	Amount float64
	Unit   Unit
	Reason string
	Price  float64 // close of the bar that produced the intent
	Ts     time.Time
}

// IsEntry reports whether the intent opens (or reverses into) a position.
func (i Intent) IsEntry() bool { return i.Kind == EnterLong || i.Kind == EnterShort }

// IsReversal reports whether the intent is the session's reversal entry.
func (i Intent) IsReversal() bool {
	return i.Reason == ReasonReversalLong || i.Reason == ReasonReversalShort
}
