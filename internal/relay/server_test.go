package relay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	signals := filepath.Join(dir, "signals_received.csv")
	executions := filepath.Join(dir, "executions.csv")
	srv := NewServer(zerolog.Nop(), NewCSVExporter(signals), WithExecutionLog(NewExecutionLog(executions)))
	return srv, signals, executions
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthAndUsage(t *testing.T) {
	srv, _, _ := newTestServer(t)

	if rec := do(t, srv, http.MethodGet, "/health", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body)
	}
	rec := do(t, srv, http.MethodGet, "/signal", "")
	if rec.Code != http.StatusMethodNotAllowed || !strings.Contains(rec.Body.String(), "example_curl") {
		t.Fatalf("unexpected usage response %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, srv, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Not found") {
		t.Fatalf("unexpected 404 response %d %s", rec.Code, rec.Body)
	}
}

func TestServerRejectsBadSignals(t *testing.T) {
	srv, signals, _ := newTestServer(t)

	if rec := do(t, srv, http.MethodPost, "/signal", "{not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	rec := do(t, srv, http.MethodPost, "/signal", `{"datetime":"2025-10-07T09:35:00","event":"ENTRY"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "missing required fields") {
		t.Fatalf("expected 400 for missing fields, got %d %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(signals); !os.IsNotExist(err) {
		t.Fatalf("rejected signals must not be stored")
	}
}

func TestServerStoresSignals(t *testing.T) {
	srv, _, executions := newTestServer(t)

	body := `{"datetime":"2025-10-07T09:35:00","event":"ENTRY","side":"LONG","price":103.25,"size":1,"reason":"test"}`
	if rec := do(t, srv, http.MethodPost, "/signal", body); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body)
	}
	zero := `{"datetime":"2025-10-07T09:36:00","event":"STOP_MOVE","side":"LONG","price":0,"size":0}`
	if rec := do(t, srv, http.MethodPost, "/signal", zero); rec.Code != http.StatusOK {
		t.Fatalf("zero values are present fields, got %d %s", rec.Code, rec.Body)
	}

	rec := do(t, srv, http.MethodGet, "/signals", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp struct {
		Signals []Record `json:"signals"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Signals) != 2 || resp.Signals[0].Price != 103.25 || resp.Signals[0].Reason != "test" {
		t.Fatalf("unexpected signals %+v", resp.Signals)
	}

	data, err := os.ReadFile(executions)
	if err != nil {
		t.Fatalf("execution log missing: %v", err)
	}
	if strings.Count(string(data), ",ACK,") != 2 {
		t.Fatalf("expected two acknowledgements:\n%s", data)
	}
}

func TestServerListsEmptyStore(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/signals", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"signals":[]}` {
		t.Fatalf("unexpected empty listing %d %s", rec.Code, rec.Body)
	}
}
