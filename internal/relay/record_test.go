package relay

import (
	"testing"
	"time"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

var ts = time.Date(2025, 10, 7, 10, 5, 0, 0, time.UTC)

func TestRecordsForEntries(t *testing.T) {
	entry := signal.Intent{Kind: signal.EnterLong, Qty: 1, Price: 103.25, Reason: signal.ReasonLongBreakout, Ts: ts}
	recs := Records(entry, execution.Position{}, risk.Contract{})
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %+v", recs)
	}
	want := Record{Datetime: "2025-10-07T10:05:00", Event: EventEntry, Side: SideLong, Price: 103.25, Size: 1, Reason: signal.ReasonLongBreakout}
	if recs[0] != want {
		t.Fatalf("got %+v want %+v", recs[0], want)
	}

	rev := signal.Intent{Kind: signal.EnterShort, Qty: 1, Price: 101, Reason: signal.ReasonReversalShort, Ts: ts}
	recs = Records(rev, execution.Position{Side: execution.Short, Qty: 1, AvgPrice: 101}, risk.Contract{})
	if len(recs) != 2 {
		t.Fatalf("expected exit and entry, got %+v", recs)
	}
	if recs[0].Event != EventExit || recs[0].Side != SideLong || recs[0].Reason != ReasonReversalExit {
		t.Fatalf("unexpected exit %+v", recs[0])
	}
	if recs[1].Event != EventEntry || recs[1].Side != SideShort {
		t.Fatalf("unexpected entry %+v", recs[1])
	}
}

func TestRecordsForStopMove(t *testing.T) {
	pos := execution.Position{Side: execution.Long, Qty: 1, AvgPrice: 100, ContractValue: 50}
	c := risk.Contract{ContractValue: 50, TickSize: 0.25}
	be := signal.Intent{Kind: signal.SetStopLoss, Amount: 150, Unit: signal.Currency, Reason: signal.ReasonBreakEven, Ts: ts}
	recs := Records(be, pos, c)
	if len(recs) != 1 || recs[0].Event != EventStopMove || recs[0].Side != SideLong || recs[0].Price != 103 {
		t.Fatalf("unexpected stop move %+v", recs)
	}

	initial := signal.Intent{Kind: signal.SetStopLoss, Amount: 450, Unit: signal.Currency, Reason: signal.ReasonInitialStop}
	if recs := Records(initial, pos, c); len(recs) != 0 {
		t.Fatalf("initial stop templates are not relayed, got %+v", recs)
	}
	for _, p := range []execution.Position{{}, {Side: execution.Flat}, {Side: execution.Long}} {
		if recs := Records(be, p, c); len(recs) != 0 {
			t.Fatalf("stop move without a position is not relayed (%+v), got %+v", p, recs)
		}
	}
}

func TestRowParseRow(t *testing.T) {
	rec := Record{Datetime: "2025-10-07T09:35:00", Event: EventEntry, Side: SideLong, Price: 103.25, Size: 1, Reason: "test"}
	back, err := ParseRow(rec.Row())
	if err != nil || back != rec {
		t.Fatalf("ParseRow(Row()) = %+v, %v", back, err)
	}
	if _, err := ParseRow([]string{"x", "ENTRY", "LONG", "abc", "1"}); err == nil {
		t.Fatalf("expected price error")
	}
	if _, err := ParseRow([]string{"x"}); err == nil {
		t.Fatalf("expected column count error")
	}
}
