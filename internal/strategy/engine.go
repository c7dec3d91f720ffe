// Package strategy contains the nine-EMA opening range breakout engine.
package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/metrics"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

var (
	// ErrOutOfOrder marks a bar older than the previously accepted one.
	ErrOutOfOrder = errors.New("bar out of order")
	// ErrMalformedBar marks a bar with unusable prices or timestamp.
	ErrMalformedBar = errors.New("malformed bar")
)

// Settings is the immutable engine configuration.
type Settings struct {
	Symbol                    string
	Window                    RangeWindow
	ProfitTarget              float64
	InitialStopLoss           float64
	BreakEvenPlus             float64
	Quantity                  float64
	Unit                      signal.Unit
	TickSize                  float64
	ContractValue             float64
	AllowReversal             bool
	ResetReversalOnNewSession bool
	EMAPeriod                 int
	WarmupBars                int
	Location                  *time.Location // nil keeps each bar's own location
}

// DefaultSettings mirrors the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Window:                    DefaultWindow(),
		ProfitTarget:              500,
		InitialStopLoss:           450,
		BreakEvenPlus:             150,
		Quantity:                  1,
		Unit:                      signal.Currency,
		TickSize:                  0.01,
		ContractValue:             1,
		AllowReversal:             true,
		ResetReversalOnNewSession: true,
		EMAPeriod:                 9,
		WarmupBars:                20,
	}
}

// State is a read-only snapshot of the engine.
type State struct {
	SessionDate   time.Time
	RangeHigh     float64
	RangeLow      float64
	RangeCaptured bool
	NoRange       bool
	ReversalUsed  bool
	StopMoved     bool
	Holding       execution.PositionSide
	Bars          int
	EMA           float64
	EMAReady      bool
}

// Engine wires SessionManager, RangeTracker, TrendSignal and PositionController behind
// one lock so bar processing and fill notifications never interleave.
type Engine struct {
	mu       sync.Mutex
	settings Settings
	log      zerolog.Logger

	state    *SessionState
	sessions *SessionManager
	ranges   *RangeTracker
	trend    *TrendSignal
	ctrl     *PositionController

	lastTs time.Time
	bars   int

	pendingEntries map[string]struct{}
	protective     map[string]signal.Kind
}

// NewEngine validates settings; an invalid range window is fatal.
func NewEngine(settings Settings, log zerolog.Logger) (*Engine, error) {
	if err := settings.Window.Validate(); err != nil {
		return nil, fmt.Errorf("range window: %w", err)
	}
	if settings.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", settings.Quantity)
	}
	if settings.WarmupBars <= 0 {
		settings.WarmupBars = 20
	}
	if settings.EMAPeriod <= 0 {
		settings.EMAPeriod = 9
	}
	state := newSessionState()
	return &Engine{
		settings:       settings,
		log:            log.With().Str("component", "engine").Str("sym", settings.Symbol).Logger(),
		state:          state,
		sessions:       NewSessionManager(state, settings.ResetReversalOnNewSession),
		ranges:         NewRangeTracker(settings.Window, state),
		trend:          NewTrendSignal(settings.EMAPeriod),
		ctrl:           NewPositionController(settings),
		pendingEntries: make(map[string]struct{}),
		protective:     make(map[string]signal.Kind),
	}, nil
}

// Settings returns the configuration the engine runs with.
func (e *Engine) Settings() Settings { return e.settings }

// OnBar processes one bar against the observed position and returns the intents to submit.
// Rejected bars leave every piece of state untouched.
func (e *Engine) OnBar(bar signal.Bar, pos execution.Position) ([]signal.Intent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := bar.Validate(); err != nil {
		metrics.BarsRejectedTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedBar, err)
	}
	if !e.lastTs.IsZero() && bar.Ts.Before(e.lastTs) {
		metrics.BarsRejectedTotal.WithLabelValues("out_of_order").Inc()
		return nil, fmt.Errorf("%w: %s before %s", ErrOutOfOrder, bar.Ts.Format(time.RFC3339), e.lastTs.Format(time.RFC3339))
	}
	e.lastTs = bar.Ts
	e.bars++
	metrics.BarsTotal.WithLabelValues(e.settings.Symbol).Inc()

	ts := bar.Ts
	if e.settings.Location != nil {
		ts = ts.In(e.settings.Location)
	}

	if e.sessions.OnBar(ts, bar.SessionStart) == SessionReset {
		e.ctrl.resetSession()
		clear(e.pendingEntries)
		metrics.SessionsTotal.WithLabelValues(e.settings.Symbol).Inc()
		e.log.Info().Str("date", e.state.CurrentSessionDate.Format(time.DateOnly)).Bool("reversal_used", e.state.ReversalUsed).Msg("new session")
	}
	if e.ranges.OnBar(ts, bar) {
		e.logCapture()
	}
	e.trend.Value(bar)
	e.ctrl.Reconcile(pos)

	if e.bars < e.settings.WarmupBars || !e.ranges.IsCaptured() {
		return nil, nil
	}

	cross := CrossNone
	if e.ranges.Tradable() {
		high, low := e.ranges.Bounds()
		cross = e.trend.Cross(high, low)
	}
	bc := barContext{symbol: e.symbol(bar), price: bar.Close, ts: bar.Ts}
	intents, reversed := e.ctrl.Evaluate(bc, cross, e.ranges.Tradable(), pos, e.state)
	if reversed {
		metrics.ReversalsTotal.WithLabelValues("pnl").Inc()
		e.log.Warn().Float64("pnl", pos.Unrealized(bar.Close)).Str("from", string(pos.Side)).Msg("stop loss reached, reversing")
	}
	e.track(intents)
	return intents, nil
}

// OnFill consumes a venue notification. A filled protective stop that leaves the position
// flat triggers the session reversal unless the P&L path already claimed it or the day has
// no tradable range.
func (e *Engine) OnFill(fill execution.Fill, pos execution.Position) []signal.Intent {
	e.mu.Lock()
	defer e.mu.Unlock()

	metrics.FillsTotal.WithLabelValues(string(fill.State)).Inc()
	_, isEntry := e.pendingEntries[fill.OrderID]
	kind, isProtective := e.protective[fill.OrderID]
	if !isEntry && !isProtective {
		e.log.Warn().Str("order", fill.OrderID).Str("state", string(fill.State)).Msg("fill for unknown order ignored")
		return nil
	}

	if fill.State != execution.Filled {
		e.log.Warn().Str("order", fill.OrderID).Str("state", string(fill.State)).Str("reason", fill.Reason).Msg("order not filled")
		if isEntry {
			delete(e.pendingEntries, fill.OrderID)
			e.ctrl.Reconcile(pos)
		}
		return nil
	}

	if isEntry {
		delete(e.pendingEntries, fill.OrderID)
		e.log.Debug().Str("order", fill.OrderID).Float64("px", fill.Price).Msg("entry filled")
		return nil
	}
	if kind != signal.SetStopLoss && !fill.Protective {
		e.log.Info().Str("order", fill.OrderID).Float64("px", fill.Price).Msg("profit target filled")
		e.ctrl.Reconcile(pos)
		return nil
	}
	if pos.Side != execution.Flat {
		e.ctrl.Reconcile(pos)
		return nil
	}

	bc := barContext{symbol: e.symbol(signal.Bar{Symbol: fill.Symbol}), price: fill.Price, ts: fill.Ts}
	intents := e.ctrl.OnStopFilled(bc, fill.ClosedSide(), e.ranges.Tradable(), e.state)
	if len(intents) > 0 {
		metrics.ReversalsTotal.WithLabelValues("fill").Inc()
		e.log.Warn().Str("order", fill.OrderID).Str("closed", string(fill.ClosedSide())).Msg("protective stop filled, reversing")
	}
	e.track(intents)
	return intents
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	ema := e.trend.EMA()
	return State{
		SessionDate:   e.state.CurrentSessionDate,
		RangeHigh:     e.state.RangeHigh,
		RangeLow:      e.state.RangeLow,
		RangeCaptured: e.state.RangeCaptured,
		NoRange:       e.state.NoRange,
		ReversalUsed:  e.state.ReversalUsed,
		StopMoved:     e.ctrl.StopMoved(),
		Holding:       e.ctrl.Side(),
		Bars:          e.bars,
		EMA:           ema.Value(),
		EMAReady:      ema.Ready(),
	}
}

func (e *Engine) symbol(bar signal.Bar) string {
	if bar.Symbol != "" {
		return bar.Symbol
	}
	return e.settings.Symbol
}

// track remembers intent ids so later fills can be matched. A new entry replaces the
// protective orders of the previous position.
func (e *Engine) track(intents []signal.Intent) {
	for _, in := range intents {
		if in.IsEntry() {
			clear(e.protective)
			break
		}
	}
	for _, in := range intents {
		if in.IsEntry() {
			e.pendingEntries[in.ID] = struct{}{}
			continue
		}
		e.protective[in.ID] = in.Kind
	}
}

func (e *Engine) logCapture() {
	if e.state.NoRange {
		e.log.Warn().Str("window", e.settings.Window.String()).Msg("no bars inside range window, no tradable range today")
		metrics.RangeWidth.WithLabelValues(e.settings.Symbol).Set(0)
		return
	}
	metrics.RangeWidth.WithLabelValues(e.settings.Symbol).Set(e.state.RangeHigh - e.state.RangeLow)
	e.log.Info().Float64("high", e.state.RangeHigh).Float64("low", e.state.RangeLow).Msg("range captured")
}
