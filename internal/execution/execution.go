// Package execution handles intent routing and the position/fill contracts shared with venues.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/metrics"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// Side enumerates order directions used by venues.
type Side string

const (
	// Buy indicates a buy order.
	Buy Side = "BUY"
	// Sell indicates a sell order.
	Sell Side = "SELL"
)

// PositionSide is the tri-state exposure of the traded instrument.
type PositionSide string

const (
	Flat  PositionSide = "FLAT"
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Opposite returns the other non-flat side; Flat maps to Flat.
func (s PositionSide) Opposite() PositionSide {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Flat
	}
}

// Position is the executor-owned exposure the engine observes read-only.
type Position struct {
	Side          PositionSide
	Qty           float64
	AvgPrice      float64
	ContractValue float64
}

// Unrealized marks the position to mark in currency.
func (p Position) Unrealized(mark float64) float64 {
	if p.Side == Flat || p.Qty == 0 || mark <= 0 {
		return 0
	}
	cv := p.ContractValue
	if cv <= 0 {
		cv = 1
	}
	pnl := (mark - p.AvgPrice) * p.Qty * cv
	if p.Side == Short {
		return -pnl
	}
	return pnl
}

// FillState is the terminal state reported for an order.
type FillState string

const (
	Filled    FillState = "FILLED"
	Rejected  FillState = "REJECTED"
	Cancelled FillState = "CANCELLED"
)

// Fill is a venue notification about an order created from an intent.
type Fill struct {
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	State      FillState `json:"state"`
	Protective bool      `json:"protective"` // the filled order was a protective stop
	Reason     string    `json:"reason,omitempty"`
	Ts         time.Time `json:"ts"`
}

// ClosedSide returns the position side a protective fill closed.
func (f Fill) ClosedSide() PositionSide {
	if f.Side == Sell {
		return Long
	}
	return Short
}

// Broker is the minimal surface the runner needs from an execution venue.
type Broker interface {
	Submit(intent signal.Intent) error
	Position() Position
	Mark(bar signal.Bar)
	Fills() <-chan Fill
}

// Publisher receives a copy of every accepted intent (signal relays, notifiers).
type Publisher interface {
	Publish(ctx context.Context, intent signal.Intent) error
}

// Executor routes engine intents to a broker and fans them out to publishers.
type Executor struct {
	log        zerolog.Logger
	broker     Broker
	publishers []Publisher
}

// NewExecutor wraps a logger, an optional broker and any number of publishers.
func NewExecutor(log zerolog.Logger, broker Broker, publishers ...Publisher) *Executor {
	return &Executor{log: log, broker: broker, publishers: publishers}
}

// Submit forwards an intent. A broker rejection is returned and not retried; publisher
// failures are only logged.
func (executor *Executor) Submit(ctx context.Context, intent signal.Intent) error {
	metrics.IntentsTotal.WithLabelValues(string(intent.Kind), intent.Reason).Inc()
	event := executor.log.Info().
		Str("id", intent.ID).
		Str("sym", intent.Symbol).
		Str("kind", string(intent.Kind)).
		Str("reason", intent.Reason).
		Float64("px", intent.Price)
	if intent.IsEntry() {
		event = event.Float64("qty", intent.Qty)
	} else {
		event = event.Float64("amount", intent.Amount).Str("unit", string(intent.Unit))
	}
	event.Msg("submit intent")

	if executor.broker != nil {
		if err := executor.broker.Submit(intent); err != nil {
			metrics.IntentsRejectedTotal.WithLabelValues(string(intent.Kind)).Inc()
			executor.log.Warn().Err(err).Str("id", intent.ID).Str("kind", string(intent.Kind)).Msg("intent rejected")
			return fmt.Errorf("submit %s: %w", intent.Kind, err)
		}
	}
	for _, pub := range executor.publishers {
		if err := pub.Publish(ctx, intent); err != nil {
			executor.log.Warn().Err(err).Str("id", intent.ID).Msg("publish intent failed")
		}
	}
	return nil
}
