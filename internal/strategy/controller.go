package strategy

import (
	"time"

	"github.com/google/uuid"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// holding is the controller's view of the open position. Each case carries its own
// flags so nothing survives into an unrelated position.
type holding interface {
	side() execution.PositionSide
	stopMoved() bool
}

type flatHolding struct{}

type longHolding struct{ moved bool }

type shortHolding struct{ moved bool }

func (flatHolding) side() execution.PositionSide  { return execution.Flat }
func (flatHolding) stopMoved() bool               { return false }
func (longHolding) side() execution.PositionSide  { return execution.Long }
func (h longHolding) stopMoved() bool             { return h.moved }
func (shortHolding) side() execution.PositionSide { return execution.Short }
func (h shortHolding) stopMoved() bool            { return h.moved }

// freshHolding opens a new entry cycle for side with the stop not yet promoted.
func freshHolding(side execution.PositionSide) holding {
	switch side {
	case execution.Long:
		return longHolding{}
	case execution.Short:
		return shortHolding{}
	default:
		return flatHolding{}
	}
}

func promoted(h holding) holding {
	switch h.(type) {
	case longHolding:
		return longHolding{moved: true}
	case shortHolding:
		return shortHolding{moved: true}
	default:
		return h
	}
}

// barContext stamps intents with the instrument, price and time that produced them.
type barContext struct {
	symbol string
	price  float64
	ts     time.Time
}

// PositionController decides entries, break-even promotion and the session reversal.
type PositionController struct {
	settings Settings
	held     holding
	newID    func() string
}

// NewPositionController starts flat.
func NewPositionController(settings Settings) *PositionController {
	return &PositionController{settings: settings, held: flatHolding{}, newID: uuid.NewString}
}

// Side returns the held side.
func (c *PositionController) Side() execution.PositionSide { return c.held.side() }

// StopMoved reports whether the current position's stop was promoted.
func (c *PositionController) StopMoved() bool { return c.held.stopMoved() }

// Reconcile adopts the executor's observed side. A side change starts a new entry cycle.
func (c *PositionController) Reconcile(pos execution.Position) {
	if pos.Side != c.held.side() {
		c.held = freshHolding(pos.Side)
	}
}

// resetSession clears the per-session stop promotion of the held position.
func (c *PositionController) resetSession() {
	c.held = freshHolding(c.held.side())
}

func (c *PositionController) contract() risk.Contract {
	return risk.Contract{Qty: c.settings.Quantity, ContractValue: c.settings.ContractValue, TickSize: c.settings.TickSize}
}

func (c *PositionController) amount(v float64) risk.Amount {
	return risk.Amount{Value: v, Unit: c.settings.Unit}
}

// Evaluate runs the ordered transitions for one bar. Entries, reversals included, are only
// considered while tradable; a no-range day still promotes the stop of a held position.
func (c *PositionController) Evaluate(bc barContext, cross Cross, tradable bool, pos execution.Position, session *SessionState) ([]signal.Intent, bool) {
	if c.held.side() == execution.Flat {
		if !tradable {
			return nil, false
		}
		switch cross {
		case CrossLong:
			return c.enter(bc, execution.Long, signal.ReasonLongBreakout), false
		case CrossShort:
			return c.enter(bc, execution.Short, signal.ReasonShortBreakout), false
		}
		return nil, false
	}

	var out []signal.Intent
	pnl := pos.Unrealized(bc.price)
	if !c.held.stopMoved() && pnl >= c.amount(c.settings.ProfitTarget).Currency(c.contract()) {
		out = append(out, c.protective(bc, signal.SetStopLoss, c.settings.BreakEvenPlus, signal.ReasonBreakEven))
		c.held = promoted(c.held)
	}
	if tradable && c.settings.AllowReversal && pnl <= -c.amount(c.settings.InitialStopLoss).Currency(c.contract()) {
		if rev := c.reverse(bc, c.held.side(), session); rev != nil {
			return append(out, rev...), true
		}
	}
	return out, false
}

// OnStopFilled handles a protective stop fill that left the position flat. Without a
// tradable range the holding is cleared and nothing is entered.
func (c *PositionController) OnStopFilled(bc barContext, closed execution.PositionSide, tradable bool, session *SessionState) []signal.Intent {
	c.held = flatHolding{}
	if !tradable || !c.settings.AllowReversal || closed == execution.Flat {
		return nil
	}
	return c.reverse(bc, closed, session)
}

func (c *PositionController) reverse(bc barContext, from execution.PositionSide, session *SessionState) []signal.Intent {
	if !session.ClaimReversal() {
		return nil
	}
	if from == execution.Long {
		return c.enter(bc, execution.Short, signal.ReasonReversalShort)
	}
	return c.enter(bc, execution.Long, signal.ReasonReversalLong)
}

// enter re-establishes the protective templates, then opens side.
func (c *PositionController) enter(bc barContext, side execution.PositionSide, reason string) []signal.Intent {
	kind := signal.EnterLong
	if side == execution.Short {
		kind = signal.EnterShort
	}
	entry := c.intent(bc, kind, reason)
	entry.Qty = c.settings.Quantity
	c.held = freshHolding(side)
	return []signal.Intent{
		c.protective(bc, signal.SetStopLoss, c.settings.InitialStopLoss, signal.ReasonInitialStop),
		c.protective(bc, signal.SetProfitTarget, c.settings.ProfitTarget, signal.ReasonInitialTarget),
		entry,
	}
}

func (c *PositionController) protective(bc barContext, kind signal.Kind, amount float64, reason string) signal.Intent {
	in := c.intent(bc, kind, reason)
	in.Amount = amount
	in.Unit = c.settings.Unit
	return in
}

func (c *PositionController) intent(bc barContext, kind signal.Kind, reason string) signal.Intent {
	return signal.Intent{
		ID:     c.newID(),
		Symbol: bc.symbol,
		Kind:   kind,
		Reason: reason,
		Price:  bc.price,
		Ts:     bc.ts,
	}
}
