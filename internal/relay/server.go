package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/metrics"
)

const usageCurl = `curl -X POST http://127.0.0.1:8000/signal -H 'Content-Type: application/json' -d '{"datetime":"2025-10-07T09:35:00","event":"ENTRY","side":"LONG","price":103.25,"size":1,"reason":"test"}'`

// Server receives signals over HTTP and stores them.
type Server struct {
	log        zerolog.Logger
	signals    *CSVExporter
	executions *ExecutionLog
	router     *gin.Engine
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithExecutionLog acknowledges every accepted signal in log.
func WithExecutionLog(log *ExecutionLog) ServerOption {
	return func(s *Server) { s.executions = log }
}

// NewServer builds the router over a signal store.
func NewServer(log zerolog.Logger, signals *CSVExporter, opts ...ServerOption) *Server {
	s := &Server{log: log.With().Str("component", "relay_server").Logger(), signals: signals}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", s.handleHealth)
	r.GET("/signals", s.handleListSignals)
	r.GET("/signal", s.handleSignalUsage)
	r.POST("/signal", s.handleSignal)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListSignals(c *gin.Context) {
	records, err := s.signals.ReadAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": records})
}

func (s *Server) handleSignalUsage(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{
		"message":      "Use HTTP POST to submit signals to /signal",
		"example_curl": usageCurl,
	})
}

// signalPayload uses pointers so absent fields can be told apart from zero values.
type signalPayload struct {
	Datetime *string  `json:"datetime"`
	Event    *string  `json:"event"`
	Side     *string  `json:"side"`
	Price    *float64 `json:"price"`
	Size     *float64 `json:"size"`
	Reason   string   `json:"reason"`
}

func (p signalPayload) record() (Record, error) {
	if p.Datetime == nil || p.Event == nil || p.Side == nil || p.Price == nil || p.Size == nil {
		return Record{}, errors.New("missing required fields")
	}
	return Record{Datetime: *p.Datetime, Event: *p.Event, Side: *p.Side, Price: *p.Price, Size: *p.Size, Reason: p.Reason}, nil
}

func (s *Server) handleSignal(c *gin.Context) {
	var payload signalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := payload.record()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.signals.Append(rec); err != nil {
		s.log.Error().Err(err).Msg("store signal")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.executions != nil {
		if err := s.executions.Append(rec, StatusAck); err != nil {
			s.log.Warn().Err(err).Msg("log execution")
		}
	}
	metrics.SignalsReceivedTotal.WithLabelValues(rec.Event).Inc()
	s.log.Info().Str("event", rec.Event).Str("side", rec.Side).Float64("px", rec.Price).Float64("size", rec.Size).Msg("signal received")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("signal server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
