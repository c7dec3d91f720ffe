package risk

import (
	"math"
	"testing"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseUnit(t *testing.T) {
	if u, ok := ParseUnit("Ticks"); !ok || u != signal.Ticks {
		t.Fatalf("expected ticks, got %s %v", u, ok)
	}
	if u, ok := ParseUnit(""); !ok || u != signal.Currency {
		t.Fatalf("expected currency default, got %s %v", u, ok)
	}
	if u, ok := ParseUnit("points"); ok || u != signal.Currency {
		t.Fatalf("expected currency fallback flagged unknown, got %s %v", u, ok)
	}
}

func TestCurrencyConversions(t *testing.T) {
	c := Contract{Qty: 2, ContractValue: 50, TickSize: 0.25}
	stop := Amount{Value: 450, Unit: signal.Currency}
	if got := stop.PriceOffset(c); !near(got, 4.5) {
		t.Fatalf("expected 4.5 price offset, got %v", got)
	}
	if got := stop.Currency(c); !near(got, 450) {
		t.Fatalf("expected currency passthrough, got %v", got)
	}
	if got := StopPrice(100, true, stop, c); !near(got, 95.5) {
		t.Fatalf("unexpected long stop %v", got)
	}
	if got := StopPrice(100, false, stop, c); !near(got, 104.5) {
		t.Fatalf("unexpected short stop %v", got)
	}
}

func TestTickConversions(t *testing.T) {
	c := Contract{Qty: 1, ContractValue: 1, TickSize: 0.01}
	target := Amount{Value: 500, Unit: signal.Ticks}
	if got := target.PriceOffset(c); !near(got, 5) {
		t.Fatalf("expected 5 price offset, got %v", got)
	}
	if got := target.Currency(c); !near(got, 5) {
		t.Fatalf("expected 5 currency, got %v", got)
	}
	if got := TargetPrice(100, false, target, c); !near(got, 95) {
		t.Fatalf("unexpected short target %v", got)
	}
	if got := LockPrice(100, true, Amount{Value: 150, Unit: signal.Ticks}, c); !near(got, 101.5) {
		t.Fatalf("unexpected break-even lock %v", got)
	}
}

func TestZeroQtyTreatedAsOne(t *testing.T) {
	a := Amount{Value: 10, Unit: signal.Currency}
	if got := a.PriceOffset(Contract{}); !near(got, 10) {
		t.Fatalf("expected qty/value defaults of 1, got %v", got)
	}
}
