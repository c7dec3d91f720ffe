package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/metrics"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

// Sink delivers signal records somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, rec Record) error
}

// PositionSource reports the venue position after an intent was applied.
type PositionSource interface {
	Position() execution.Position
}

// Publisher turns intents into records and fans them out to sinks. After Start, delivery
// moves to a single background worker so slow sinks never hold up the caller.
type Publisher struct {
	log       zerolog.Logger
	positions PositionSource
	contract  risk.Contract
	sinks     []Sink

	mu     sync.Mutex
	queue  chan Record
	done   chan struct{}
	closed bool
}

// NewPublisher builds an execution.Publisher over sinks. positions may be nil when no
// venue is attached; stop moves are then not relayed.
func NewPublisher(log zerolog.Logger, positions PositionSource, contract risk.Contract, sinks ...Sink) *Publisher {
	return &Publisher{log: log.With().Str("component", "relay").Logger(), positions: positions, contract: contract, sinks: sinks}
}

// Start switches the publisher to queued delivery with room for buffer records. Records
// are delivered in order; when the queue is full new records are dropped and counted.
func (p *Publisher) Start(buffer int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue != nil || p.closed {
		return
	}
	p.queue = make(chan Record, max(buffer, 1))
	p.done = make(chan struct{})
	go p.worker(p.queue, p.done)
}

func (p *Publisher) worker(queue <-chan Record, done chan<- struct{}) {
	defer close(done)
	for rec := range queue {
		if err := p.deliver(context.Background(), rec); err != nil {
			p.log.Warn().Err(err).Str("event", rec.Event).Msg("signal relay failed")
		}
	}
}

// Close stops accepting records and waits until the queue is drained.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	queue, done := p.queue, p.done
	p.mu.Unlock()
	if queue != nil {
		close(queue)
		<-done
	}
	return nil
}

// Publish implements execution.Publisher. The position is read immediately so records
// reflect the venue right after the intent. Without Start every sink is attempted inline
// and failures are joined.
func (p *Publisher) Publish(ctx context.Context, intent signal.Intent) error {
	var pos execution.Position
	if p.positions != nil {
		pos = p.positions.Position()
	}
	recs := Records(intent, pos, p.contract)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publisher closed")
	}
	if p.queue != nil {
		for _, rec := range recs {
			select {
			case p.queue <- rec:
			default:
				metrics.RelayErrorsTotal.WithLabelValues("queue").Inc()
				p.log.Warn().Str("event", rec.Event).Msg("relay queue full, signal dropped")
			}
		}
		return nil
	}
	var errs []error
	for _, rec := range recs {
		if err := p.deliver(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) deliver(ctx context.Context, rec Record) error {
	var errs []error
	for _, sink := range p.sinks {
		if err := sink.Send(ctx, rec); err != nil {
			metrics.RelayErrorsTotal.WithLabelValues(sink.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.SignalsRelayedTotal.WithLabelValues(sink.Name(), rec.Event).Inc()
		p.log.Debug().Str("sink", sink.Name()).Str("event", rec.Event).Str("side", rec.Side).Float64("px", rec.Price).Msg("signal relayed")
	}
	return errors.Join(errs...)
}

// HTTPPublisher POSTs records as JSON.
type HTTPPublisher struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPPublisher posts to url at most perSecond times per second (unlimited when <= 0).
func NewHTTPPublisher(url string, perSecond float64) *HTTPPublisher {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &HTTPPublisher{url: url, client: &http.Client{Timeout: 10 * time.Second}, limiter: limiter}
}

// Name identifies the sink in logs and metrics.
func (h *HTTPPublisher) Name() string { return "http" }

// Send posts rec and fails on any non-2xx answer.
func (h *HTTPPublisher) Send(ctx context.Context, rec Record) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("signal endpoint returned %s", resp.Status)
	}
	return nil
}

// MessageSender is the part of tgbotapi.BotAPI the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends a one-line summary of each record to a chat.
type TelegramNotifier struct {
	sender MessageSender
	chatID int64
}

// NewTelegramNotifier authenticates a bot. An empty endpoint uses the public Bot API.
func NewTelegramNotifier(token, endpoint string, chatID int64) (*TelegramNotifier, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return NewTelegramNotifierWithSender(bot, chatID), nil
}

// NewTelegramNotifierWithSender wraps an existing sender.
func NewTelegramNotifierWithSender(sender MessageSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID}
}

// Name identifies the sink in logs and metrics.
func (t *TelegramNotifier) Name() string { return "telegram" }

// Send posts the summary.
func (t *TelegramNotifier) Send(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.sender.Send(tgbotapi.NewMessage(t.chatID, Summary(rec)))
	return err
}

// Summary renders a record for humans.
func Summary(rec Record) string {
	return fmt.Sprintf("%s %s %g @ %.2f (%s) %s", rec.Event, rec.Side, rec.Size, rec.Price, rec.Reason, rec.Datetime)
}
