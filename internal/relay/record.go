// Package relay forwards engine intents as flat signal records to files, HTTP endpoints and
// chat, and serves the receiving side of that protocol.
package relay

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// Events carried by signal records.
const (
	EventEntry    = "ENTRY"
	EventExit     = "EXIT"
	EventStopMove = "STOP_MOVE"
)

// Sides carried by signal records.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// ReasonReversalExit tags the EXIT record that precedes a reversal entry.
const ReasonReversalExit = "ReversalStopExit"

// TimeLayout is the naive ISO-8601 form used for the datetime column.
const TimeLayout = "2006-01-02T15:04:05"

// Header is the column order of signal files.
var Header = []string{"datetime", "event", "side", "price", "size", "reason"}

// Record is one relayed signal.
type Record struct {
	Datetime string  `json:"datetime"`
	Event    string  `json:"event"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Reason   string  `json:"reason"`
}

// Row renders the record in Header order.
func (r Record) Row() []string {
	return []string{
		r.Datetime,
		r.Event,
		r.Side,
		strconv.FormatFloat(r.Price, 'f', -1, 64),
		strconv.FormatFloat(r.Size, 'f', -1, 64),
		r.Reason,
	}
}

// ParseRow reads a record written by Row.
func ParseRow(row []string) (Record, error) {
	if len(row) < 5 {
		return Record{}, fmt.Errorf("signal row has %d columns", len(row))
	}
	rec := Record{Datetime: row[0], Event: row[1], Side: row[2]}
	var err error
	if rec.Price, err = strconv.ParseFloat(row[3], 64); err != nil {
		return Record{}, fmt.Errorf("price: %w", err)
	}
	if rec.Size, err = strconv.ParseFloat(row[4], 64); err != nil {
		return Record{}, fmt.Errorf("size: %w", err)
	}
	if len(row) > 5 {
		rec.Reason = row[5]
	}
	return rec, nil
}

// FormatTime renders ts in its own location without zone.
func FormatTime(ts time.Time) string { return ts.Format(TimeLayout) }

func sideName(side execution.PositionSide) string {
	if side == execution.Short {
		return SideShort
	}
	return SideLong
}

// holding reports whether pos is an open long or short. The zero Position counts as flat.
func holding(pos execution.Position) bool {
	return pos.Qty > 0 && (pos.Side == execution.Long || pos.Side == execution.Short)
}

// Records maps an applied intent to the signals it produces. pos is the position observed
// after the intent reached the venue; c converts protective amounts into prices.
func Records(intent signal.Intent, pos execution.Position, c risk.Contract) []Record {
	at := FormatTime(intent.Ts)
	switch intent.Kind {
	case signal.EnterLong, signal.EnterShort:
		side := execution.Long
		if intent.Kind == signal.EnterShort {
			side = execution.Short
		}
		entry := Record{Datetime: at, Event: EventEntry, Side: sideName(side), Price: intent.Price, Size: intent.Qty, Reason: intent.Reason}
		if !intent.IsReversal() {
			return []Record{entry}
		}
		exit := Record{Datetime: at, Event: EventExit, Side: sideName(side.Opposite()), Price: intent.Price, Size: intent.Qty, Reason: ReasonReversalExit}
		return []Record{exit, entry}
	case signal.SetStopLoss:
		if intent.Reason != signal.ReasonBreakEven || !holding(pos) {
			return nil
		}
		c.Qty = pos.Qty
		amount := risk.Amount{Value: intent.Amount, Unit: intent.Unit}
		price := risk.LockPrice(pos.AvgPrice, pos.Side == execution.Long, amount, c)
		return []Record{{Datetime: at, Event: EventStopMove, Side: sideName(pos.Side), Price: price, Size: pos.Qty, Reason: intent.Reason}}
	default:
		return nil
	}
}
