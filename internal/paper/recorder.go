package paper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
)

// JSONLRecorder appends fills as JSON lines.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single fill. Writes after Close are dropped.
func (r *JSONLRecorder) Record(fill execution.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(fill)
}

// Close closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// ReadFills loads a JSONL fill journal.
func ReadFills(path string) ([]execution.Fill, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []execution.Fill
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		var fill execution.Fill
		if err := json.Unmarshal(scanner.Bytes(), &fill); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, fill)
	}
	return out, scanner.Err()
}
