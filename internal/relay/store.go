package relay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

// csvFile appends rows to a CSV file, writing the header when the file is empty.
type csvFile struct {
	mu     sync.Mutex
	path   string
	header []string
}

func (f *csvFile) append(row []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := w.Write(f.header); err != nil {
			return err
		}
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// CSVExporter appends signal records to a file and reads them back.
type CSVExporter struct {
	file csvFile
}

// NewCSVExporter targets path; the file is created on first append.
func NewCSVExporter(path string) *CSVExporter {
	return &CSVExporter{file: csvFile{path: path, header: Header}}
}

// Path returns the backing file.
func (e *CSVExporter) Path() string { return e.file.path }

// Name identifies the sink in logs and metrics.
func (e *CSVExporter) Name() string { return "csv" }

// Send appends rec.
func (e *CSVExporter) Send(_ context.Context, rec Record) error { return e.Append(rec) }

// Append writes one record.
func (e *CSVExporter) Append(rec Record) error { return e.file.append(rec.Row()) }

// ReadAll returns every stored record; a missing file holds none. Rows that do not parse
// are skipped.
func (e *CSVExporter) ReadAll() ([]Record, error) {
	e.file.mu.Lock()
	defer e.file.mu.Unlock()

	file, err := os.Open(e.file.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.file.path, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	out := []Record{}
	for first := true; ; first = false {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.file.path, err)
		}
		if first && len(row) > 0 && row[0] == Header[0] {
			continue
		}
		rec, err := ParseRow(row)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
}

// ExecutionLog records what the receiving side did with each signal.
type ExecutionLog struct {
	file csvFile
	now  func() time.Time
}

// Execution statuses.
const (
	StatusAck      = "ACK"
	StatusExecuted = "EXECUTED"
)

// NewExecutionLog targets path; the file is created on first append.
func NewExecutionLog(path string) *ExecutionLog {
	header := append(append([]string{}, Header...), "status", "ts")
	return &ExecutionLog{file: csvFile{path: path, header: header}, now: time.Now}
}

// Append writes rec with status and the current unix time.
func (l *ExecutionLog) Append(rec Record, status string) error {
	ts := float64(l.now().UnixMilli()) / 1000
	return l.file.append(append(rec.Row(), status, strconv.FormatFloat(ts, 'f', 3, 64)))
}
