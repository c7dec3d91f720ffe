package paper

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

const fillBuffer = 256

// protectiveTemplate is the last stop or target instruction received.
type protectiveTemplate struct {
	id     string
	amount risk.Amount
	lock   bool // break-even stop: placed on the profitable side of the entry
}

type level struct {
	id    string
	price float64
}

// Account is a single-instrument paper venue. Market intents fill at the last mark;
// stop and target levels trigger on bar extremes. No slippage or partial fills.
type Account struct {
	mu            sync.Mutex
	log           zerolog.Logger
	symbol        string
	contractValue float64
	tickSize      float64
	maxQty        float64
	startingCash  decimal.Decimal
	cash          decimal.Decimal
	realizedPnL   decimal.Decimal

	side     execution.PositionSide
	qty      float64
	avgPrice float64
	mark     float64
	markTs   time.Time

	stopTpl   *protectiveTemplate
	targetTpl *protectiveTemplate
	stop      *level
	target    *level

	fills     chan execution.Fill
	recorders []FillRecorder
}

// Option configures Account construction parameters.
type Option func(*Account)

// WithContract sets the currency value per price unit and the tick size.
func WithContract(contractValue, tickSize float64) Option {
	return func(a *Account) {
		if contractValue > 0 {
			a.contractValue = contractValue
		}
		if tickSize > 0 {
			a.tickSize = tickSize
		}
	}
}

// WithMaxQty rejects entries larger than qty.
func WithMaxQty(qty float64) Option {
	return func(a *Account) { a.maxQty = qty }
}

// WithRecorder attaches a fill recorder.
func WithRecorder(r FillRecorder) Option {
	return func(a *Account) {
		if r != nil {
			a.recorders = append(a.recorders, r)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Account) { a.log = log.With().Str("component", "paper").Logger() }
}

// NewAccount constructs a flat account with starting cash.
func NewAccount(symbol string, startingCash float64, opts ...Option) *Account {
	a := &Account{
		log:           zerolog.Nop(),
		symbol:        symbol,
		contractValue: 1,
		tickSize:      0.01,
		startingCash:  decimal.NewFromFloat(startingCash),
		cash:          decimal.NewFromFloat(startingCash),
		side:          execution.Flat,
		fills:         make(chan execution.Fill, fillBuffer),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash.InexactFloat64() }

// Fills streams fill notifications.
func (a *Account) Fills() <-chan execution.Fill { return a.fills }

// Position reports the current exposure.
func (a *Account) Position() execution.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionLocked()
}

func (a *Account) positionLocked() execution.Position {
	return execution.Position{Side: a.side, Qty: a.qty, AvgPrice: a.avgPrice, ContractValue: a.contractValue}
}

func (a *Account) contract() risk.Contract {
	return risk.Contract{Qty: a.qty, ContractValue: a.contractValue, TickSize: a.tickSize}
}

// Submit applies an engine intent.
func (a *Account) Submit(intent signal.Intent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch intent.Kind {
	case signal.SetStopLoss:
		a.stopTpl = &protectiveTemplate{
			id:     intent.ID,
			amount: risk.Amount{Value: intent.Amount, Unit: intent.Unit},
			lock:   intent.Reason == signal.ReasonBreakEven,
		}
		if a.side != execution.Flat {
			a.stop = a.placeStop(a.stopTpl)
			a.log.Debug().Float64("stop", a.stop.price).Msg("stop level moved")
		}
		return nil
	case signal.SetProfitTarget:
		a.targetTpl = &protectiveTemplate{id: intent.ID, amount: risk.Amount{Value: intent.Amount, Unit: intent.Unit}}
		if a.side != execution.Flat {
			a.target = a.placeTarget(a.targetTpl)
		}
		return nil
	case signal.EnterLong:
		return a.enter(intent, execution.Long)
	case signal.EnterShort:
		return a.enter(intent, execution.Short)
	default:
		return fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}

func (a *Account) enter(intent signal.Intent, side execution.PositionSide) error {
	if intent.Qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if a.mark <= 0 {
		return errors.New("no market price yet")
	}
	if a.maxQty > 0 && intent.Qty > a.maxQty {
		return errors.New("position limit exceeded")
	}
	if a.side == side {
		return fmt.Errorf("already %s", side)
	}
	if a.side != execution.Flat {
		a.closeLocked(a.mark, "", false, "reverse")
	}

	a.side = side
	a.qty = intent.Qty
	a.avgPrice = a.mark
	a.stop, a.target = nil, nil
	if a.stopTpl != nil {
		a.stop = a.placeStop(a.stopTpl)
	}
	if a.targetTpl != nil {
		a.target = a.placeTarget(a.targetTpl)
	}
	a.emit(execution.Fill{
		OrderID: intent.ID,
		Symbol:  a.symbol,
		Side:    orderSide(side),
		Qty:     intent.Qty,
		Price:   a.mark,
		State:   execution.Filled,
		Reason:  intent.Reason,
		Ts:      a.markTs,
	})
	return nil
}

func (a *Account) placeStop(tpl *protectiveTemplate) *level {
	long := a.side == execution.Long
	if tpl.lock {
		return &level{id: tpl.id, price: risk.LockPrice(a.avgPrice, long, tpl.amount, a.contract())}
	}
	return &level{id: tpl.id, price: risk.StopPrice(a.avgPrice, long, tpl.amount, a.contract())}
}

func (a *Account) placeTarget(tpl *protectiveTemplate) *level {
	return &level{id: tpl.id, price: risk.TargetPrice(a.avgPrice, a.side == execution.Long, tpl.amount, a.contract())}
}

// Mark feeds a bar: protective levels are checked against its extremes (stop first),
// then the close becomes the new mark.
func (a *Account) Mark(bar signal.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.markTs = bar.Ts
	if a.side != execution.Flat {
		long := a.side == execution.Long
		switch {
		case a.stop != nil && ((long && bar.Low <= a.stop.price) || (!long && bar.High >= a.stop.price)):
			a.closeLocked(a.stop.price, a.stop.id, true, "stop")
		case a.target != nil && ((long && bar.High >= a.target.price) || (!long && bar.Low <= a.target.price)):
			a.closeLocked(a.target.price, a.target.id, false, "target")
		}
	}
	if bar.Close > 0 {
		a.mark = bar.Close
	}
}

// closeLocked flattens at price and realizes P&L. Fills are only emitted for orders
// that carry an id.
func (a *Account) closeLocked(price float64, orderID string, protective bool, reason string) {
	pnl := a.positionLocked().Unrealized(price)
	a.realizedPnL = a.realizedPnL.Add(decimal.NewFromFloat(pnl))
	a.cash = a.cash.Add(decimal.NewFromFloat(pnl))
	closing := orderSide(a.side.Opposite())
	qty := a.qty

	a.log.Info().Str("reason", reason).Float64("px", price).Float64("pnl", pnl).Msg("position closed")
	a.side, a.qty, a.avgPrice = execution.Flat, 0, 0
	a.stop, a.target = nil, nil

	if orderID == "" {
		return
	}
	a.emit(execution.Fill{
		OrderID:    orderID,
		Symbol:     a.symbol,
		Side:       closing,
		Qty:        qty,
		Price:      price,
		State:      execution.Filled,
		Protective: protective,
		Reason:     reason,
		Ts:         a.markTs,
	})
}

func (a *Account) emit(fill execution.Fill) {
	for _, r := range a.recorders {
		r.Record(fill)
	}
	select {
	case a.fills <- fill:
	default:
		a.log.Warn().Str("order", fill.OrderID).Msg("fill channel full, notification dropped")
	}
}

func orderSide(side execution.PositionSide) execution.Side {
	if side == execution.Short {
		return execution.Sell
	}
	return execution.Buy
}

// Snapshot represents a view of the account marked to the last price.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Unrealized  float64
	Equity      float64
	Position    execution.Position
	StopPrice   float64
	TargetPrice float64
}

// Snapshot returns balances and the open position.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos := a.positionLocked()
	unrealized := decimal.NewFromFloat(pos.Unrealized(a.mark))
	snap := Snapshot{
		Cash:        a.cash.InexactFloat64(),
		RealizedPnL: a.realizedPnL.InexactFloat64(),
		Unrealized:  unrealized.InexactFloat64(),
		Equity:      a.cash.Add(unrealized).InexactFloat64(),
		Position:    pos,
	}
	if a.stop != nil {
		snap.StopPrice = a.stop.price
	}
	if a.target != nil {
		snap.TargetPrice = a.target.price
	}
	return snap
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL.InexactFloat64()
}
