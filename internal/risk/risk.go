// Package risk converts protective amounts between currency, ticks and price distances.
package risk

import (
	"math"
	"strings"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// ParseUnit maps a config string to a unit; ok is false for unknown values.
func ParseUnit(raw string) (signal.Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "currency", "usd", "cash":
		return signal.Currency, true
	case "ticks", "tick":
		return signal.Ticks, true
	default:
		return signal.Currency, false
	}
}

// Amount is a protective distance expressed in a unit.
type Amount struct {
	Value float64
	Unit  signal.Unit
}

// Contract describes the instrument numbers needed for conversions.
type Contract struct {
	Qty           float64
	ContractValue float64 // currency per price unit per contract
	TickSize      float64
}

func (c Contract) qty() float64 {
	if q := math.Abs(c.Qty); q > 0 {
		return q
	}
	return 1
}

func (c Contract) value() float64 {
	if c.ContractValue > 0 {
		return c.ContractValue
	}
	return 1
}

// PriceOffset returns the price distance the amount represents.
func (a Amount) PriceOffset(c Contract) float64 {
	v := math.Abs(a.Value)
	if a.Unit == signal.Ticks {
		return v * c.TickSize
	}
	return v / (c.value() * c.qty())
}

// Currency returns the amount as a P&L figure.
func (a Amount) Currency(c Contract) float64 {
	v := math.Abs(a.Value)
	if a.Unit == signal.Ticks {
		return v * c.TickSize * c.value() * c.qty()
	}
	return v
}

// StopPrice places a stop loss distance below a long entry or above a short entry.
func StopPrice(entry float64, long bool, a Amount, c Contract) float64 {
	if long {
		return entry - a.PriceOffset(c)
	}
	return entry + a.PriceOffset(c)
}

// LockPrice places a break-even-plus stop beyond the entry in the profitable direction.
func LockPrice(entry float64, long bool, a Amount, c Contract) float64 {
	if long {
		return entry + a.PriceOffset(c)
	}
	return entry - a.PriceOffset(c)
}

// TargetPrice places a profit target in the profitable direction.
func TargetPrice(entry float64, long bool, a Amount, c Contract) float64 {
	return LockPrice(entry, long, a, c)
}
