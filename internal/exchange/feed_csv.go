package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

var csvLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// newCSVReader decodes UTF-8, UTF-8 with BOM and UTF-16 (BOM-prefixed) input.
func newCSVReader(r io.Reader) *csv.Reader {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

// walkCSV calls fn for every parsable datetime,open,high,low,close[,volume] row. A first
// row whose timestamp does not parse is treated as a header; later unparsable rows are
// counted in skipped.
func walkCSV(r io.Reader, symbol string, loc *time.Location, fn func(signal.Bar) error) (rows, skipped int, err error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := newCSVReader(r)
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, skipped, nil
		}
		if err != nil {
			return rows, skipped, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		bar, perr := parseCSVRecord(record, symbol, loc)
		if perr != nil {
			if line > 1 {
				skipped++
			}
			continue
		}
		rows++
		if err := fn(bar); err != nil {
			return rows, skipped, err
		}
	}
}

func parseCSVRecord(record []string, symbol string, loc *time.Location) (signal.Bar, error) {
	if len(record) < 5 {
		return signal.Bar{}, fmt.Errorf("expected at least 5 columns, got %d", len(record))
	}
	ts, err := parseTimestamp(record[0], loc)
	if err != nil {
		return signal.Bar{}, err
	}
	var px [5]float64
	for i := 1; i < len(record) && i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(record[i]), `"`), 64)
		if err != nil {
			return signal.Bar{}, fmt.Errorf("column %d: %w", i, err)
		}
		px[i-1] = v
	}
	return signal.Bar{Symbol: symbol, Ts: ts, Open: px[0], High: px[1], Low: px[2], Close: px[3], Volume: px[4]}, nil
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	for _, layout := range csvLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// ReadCSV loads every bar from r and marks session starts.
func ReadCSV(r io.Reader, symbol string, loc *time.Location) ([]signal.Bar, int, error) {
	if loc == nil {
		loc = time.UTC
	}
	marker := &sessionMarker{loc: loc}
	var bars []signal.Bar
	_, skipped, err := walkCSV(r, symbol, loc, func(b signal.Bar) error {
		marker.mark(&b)
		bars = append(bars, b)
		return nil
	})
	return bars, skipped, err
}

func (f *Feed) runCSV(ctx context.Context, out chan<- signal.Bar) error {
	if f.csvPath == "" {
		return fmt.Errorf("csv feed requires a file path")
	}
	file, err := os.Open(f.csvPath)
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}
	defer file.Close()

	marker := &sessionMarker{loc: f.location}
	rows, skipped, err := walkCSV(file, f.symbol, f.location, func(b signal.Bar) error {
		marker.mark(&b)
		return send(ctx, out, b)
	})
	if err != nil {
		return err
	}
	ev := f.log.Info()
	if skipped > 0 {
		ev = f.log.Warn()
	}
	ev.Str("path", f.csvPath).Int("bars", rows).Int("skipped", skipped).Msg("csv replay finished")
	return nil
}
