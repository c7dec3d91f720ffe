package paper

import (
	"math"
	"testing"
	"time"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

var t0 = time.Date(2025, 10, 7, 10, 5, 0, 0, time.UTC)

func bar(minute int, high, low, close float64) signal.Bar {
	return signal.Bar{Symbol: "ES", Ts: t0.Add(time.Duration(minute) * time.Minute), Open: close, High: high, Low: low, Close: close}
}

func stopIntent(id string, amount float64, reason string) signal.Intent {
	return signal.Intent{ID: id, Kind: signal.SetStopLoss, Amount: amount, Unit: signal.Currency, Reason: reason}
}

func targetIntent(id string, amount float64) signal.Intent {
	return signal.Intent{ID: id, Kind: signal.SetProfitTarget, Amount: amount, Unit: signal.Currency, Reason: signal.ReasonInitialTarget}
}

func nextFill(t *testing.T, a *Account) execution.Fill {
	t.Helper()
	select {
	case f := <-a.Fills():
		return f
	default:
		t.Fatalf("expected a fill")
	}
	return execution.Fill{}
}

func mustSubmit(t *testing.T, a *Account, in signal.Intent) {
	t.Helper()
	if err := a.Submit(in); err != nil {
		t.Fatalf("Submit(%s) error: %v", in.Kind, err)
	}
}

func TestEntryAppliesTemplates(t *testing.T) {
	ledger := NewLedger(4)
	account := NewAccount("ES", 10000, WithRecorder(ledger))
	account.Mark(bar(0, 101, 99, 100))

	mustSubmit(t, account, stopIntent("s1", 4.5, signal.ReasonInitialStop))
	mustSubmit(t, account, targetIntent("t1", 5))
	mustSubmit(t, account, signal.Intent{ID: "e1", Kind: signal.EnterLong, Qty: 1, Reason: signal.ReasonLongBreakout})

	fill := nextFill(t, account)
	if fill.OrderID != "e1" || fill.Side != execution.Buy || fill.Price != 100 {
		t.Fatalf("unexpected entry fill %+v", fill)
	}
	snap := account.Snapshot()
	if snap.Position.Side != execution.Long || snap.StopPrice != 95.5 || snap.TargetPrice != 105 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if ledger.Count(nil) != 1 {
		t.Fatalf("expected recorder to see entry fill")
	}
}

func TestStopTriggersProtectiveFill(t *testing.T) {
	account := NewAccount("ES", 10000)
	account.Mark(bar(0, 101, 99, 100))
	mustSubmit(t, account, stopIntent("s1", 4.5, signal.ReasonInitialStop))
	mustSubmit(t, account, targetIntent("t1", 5))
	mustSubmit(t, account, signal.Intent{ID: "e1", Kind: signal.EnterShort, Qty: 1})
	nextFill(t, account)

	// both levels touched: the stop wins
	account.Mark(bar(1, 106, 94, 100))
	fill := nextFill(t, account)
	if fill.OrderID != "s1" || !fill.Protective || fill.Side != execution.Buy || fill.Price != 104.5 {
		t.Fatalf("unexpected stop fill %+v", fill)
	}
	if fill.ClosedSide() != execution.Short {
		t.Fatalf("stop should have closed the short")
	}
	if account.Position().Side != execution.Flat {
		t.Fatalf("expected flat after stop")
	}
	if math.Abs(account.RealizedPnL()+4.5) > 1e-9 {
		t.Fatalf("expected -4.5 realized, got %v", account.RealizedPnL())
	}
}

func TestTargetFillIsNotProtective(t *testing.T) {
	account := NewAccount("ES", 10000)
	account.Mark(bar(0, 101, 99, 100))
	mustSubmit(t, account, targetIntent("t1", 5))
	mustSubmit(t, account, signal.Intent{ID: "e1", Kind: signal.EnterLong, Qty: 1})
	nextFill(t, account)

	account.Mark(bar(1, 105.5, 100, 105))
	fill := nextFill(t, account)
	if fill.OrderID != "t1" || fill.Protective || fill.Price != 105 {
		t.Fatalf("unexpected target fill %+v", fill)
	}
	snap := account.Snapshot()
	if snap.Cash != 10005 || snap.Equity != 10005 {
		t.Fatalf("unexpected balances %+v", snap)
	}
}

func TestBreakEvenStopLocksProfit(t *testing.T) {
	account := NewAccount("ES", 10000)
	account.Mark(bar(0, 101, 99, 100))
	mustSubmit(t, account, stopIntent("s1", 4.5, signal.ReasonInitialStop))
	mustSubmit(t, account, signal.Intent{ID: "e1", Kind: signal.EnterLong, Qty: 1})
	nextFill(t, account)

	mustSubmit(t, account, stopIntent("s2", 1.5, signal.ReasonBreakEven))
	if got := account.Snapshot().StopPrice; got != 101.5 {
		t.Fatalf("expected break-even stop at 101.5, got %v", got)
	}
	account.Mark(bar(1, 103, 101, 101.2))
	fill := nextFill(t, account)
	if fill.OrderID != "s2" || fill.Price != 101.5 {
		t.Fatalf("unexpected break-even fill %+v", fill)
	}
}

func TestReverseFlipsPosition(t *testing.T) {
	account := NewAccount("ES", 10000, WithContract(50, 0.25))
	account.Mark(bar(0, 101, 99, 100))
	mustSubmit(t, account, signal.Intent{ID: "e1", Kind: signal.EnterLong, Qty: 1})
	nextFill(t, account)
	account.Mark(bar(1, 100, 90, 91))
	mustSubmit(t, account, signal.Intent{ID: "e2", Kind: signal.EnterShort, Qty: 1})

	fill := nextFill(t, account)
	if fill.OrderID != "e2" || fill.Side != execution.Sell {
		t.Fatalf("expected reversal entry fill, got %+v", fill)
	}
	pos := account.Position()
	if pos.Side != execution.Short || pos.AvgPrice != 91 || pos.ContractValue != 50 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if got := account.RealizedPnL(); got != -450 {
		t.Fatalf("expected -450 realized on reverse, got %v", got)
	}
}

func TestSubmitRejections(t *testing.T) {
	account := NewAccount("ES", 1000, WithMaxQty(1))
	if err := account.Submit(signal.Intent{Kind: signal.EnterLong, Qty: 1}); err == nil {
		t.Fatalf("expected error without a mark")
	}
	account.Mark(bar(0, 101, 99, 100))
	if err := account.Submit(signal.Intent{Kind: signal.EnterLong, Qty: 2}); err == nil {
		t.Fatalf("expected position limit error")
	}
	if err := account.Submit(signal.Intent{Kind: signal.EnterLong, Qty: 0}); err == nil {
		t.Fatalf("expected quantity error")
	}
	mustSubmit(t, account, signal.Intent{ID: "e1", Kind: signal.EnterLong, Qty: 1})
	if err := account.Submit(signal.Intent{Kind: signal.EnterLong, Qty: 1}); err == nil {
		t.Fatalf("expected pyramiding to be refused")
	}
	if err := account.Submit(signal.Intent{Kind: "Bogus"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
