package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

type memorySink struct {
	name string
	err  error
	mu   sync.Mutex
	recs []Record
}

func (m *memorySink) Name() string { return m.name }

func (m *memorySink) Send(_ context.Context, rec Record) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.recs = append(m.recs, rec)
	m.mu.Unlock()
	return nil
}

type fixedPosition execution.Position

func (p fixedPosition) Position() execution.Position { return execution.Position(p) }

func TestPublisherFansOutAndJoinsErrors(t *testing.T) {
	good := &memorySink{name: "memory"}
	bad := &memorySink{name: "broken", err: errors.New("down")}
	pub := NewPublisher(zerolog.Nop(), fixedPosition{Side: execution.Short, Qty: 1, AvgPrice: 101}, risk.Contract{}, bad, good)

	rev := signal.Intent{Kind: signal.EnterShort, Qty: 1, Price: 101, Reason: signal.ReasonReversalShort, Ts: ts}
	err := pub.Publish(context.Background(), rev)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(good.recs) != 2 {
		t.Fatalf("healthy sink should still receive both records, got %+v", good.recs)
	}

	if err := pub.Publish(context.Background(), signal.Intent{Kind: signal.SetProfitTarget, Amount: 500}); err != nil {
		t.Fatalf("intents without records should not fail: %v", err)
	}
}

type gatedSink struct {
	memorySink
	gate chan struct{}
}

func (g *gatedSink) Send(ctx context.Context, rec Record) error {
	<-g.gate
	return g.memorySink.Send(ctx, rec)
}

func TestPublisherQueuesWhenStarted(t *testing.T) {
	sink := &gatedSink{memorySink: memorySink{name: "slow"}, gate: make(chan struct{})}
	pub := NewPublisher(zerolog.Nop(), fixedPosition{Side: execution.Long, Qty: 1, AvgPrice: 100}, risk.Contract{}, sink)
	pub.Start(8)

	entry := signal.Intent{Kind: signal.EnterLong, Qty: 1, Price: 100, Reason: signal.ReasonLongBreakout, Ts: ts}
	done := make(chan error, 1)
	go func() { done <- pub.Publish(context.Background(), entry) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Publish error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish waited for a slow sink")
	}

	close(sink.gate)
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if len(sink.recs) != 1 || sink.recs[0].Event != EventEntry {
		t.Fatalf("queued record not delivered on Close, got %+v", sink.recs)
	}
	if err := pub.Publish(context.Background(), entry); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestPublisherWithoutPositionsSkipsStopMoves(t *testing.T) {
	sink := &memorySink{name: "memory"}
	pub := NewPublisher(zerolog.Nop(), nil, risk.Contract{ContractValue: 50}, sink)
	be := signal.Intent{Kind: signal.SetStopLoss, Amount: 150, Unit: signal.Currency, Reason: signal.ReasonBreakEven, Ts: ts}
	if err := pub.Publish(context.Background(), be); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(sink.recs) != 0 {
		t.Fatalf("stop move relayed without a venue: %+v", sink.recs)
	}
}

func TestHTTPPublisher(t *testing.T) {
	var got Record
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got.Event == "FAIL" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	pub := NewHTTPPublisher(server.URL, 100)
	rec := Record{Datetime: "2025-10-07T09:35:00", Event: EventEntry, Side: SideLong, Price: 103.25, Size: 1, Reason: "test"}
	if err := pub.Send(context.Background(), rec); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got != rec || contentType != "application/json" {
		t.Fatalf("server saw %+v (%s)", got, contentType)
	}
	rec.Event = "FAIL"
	if err := pub.Send(context.Background(), rec); err == nil {
		t.Fatalf("expected error on 500")
	}
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewTelegramNotifierWithSender(sender, 42)
	rec := Record{Datetime: "2025-10-07T10:02:00", Event: EventStopMove, Side: SideLong, Price: 103, Size: 1, Reason: "ProfitTargetReached"}
	if err := notifier.Send(context.Background(), rec); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].ChatID != 42 {
		t.Fatalf("unexpected messages %+v", sender.sent)
	}
	if want := "STOP_MOVE LONG 1 @ 103.00 (ProfitTargetReached) 2025-10-07T10:02:00"; sender.sent[0].Text != want {
		t.Fatalf("got %q want %q", sender.sent[0].Text, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := notifier.Send(ctx, rec); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}
