package app

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/config"
)

func TestSinksFollowRelaySection(t *testing.T) {
	if sinks := Sinks(config.Relay{}, zerolog.Nop()); len(sinks) != 0 {
		t.Fatalf("expected no sinks for an empty section, got %d", len(sinks))
	}
	sinks := Sinks(config.Relay{ExportPath: t.TempDir() + "/signals.csv", SignalURL: "http://localhost:8000/signal"}, zerolog.Nop())
	if len(sinks) != 2 || sinks[0].Name() != "csv" || sinks[1].Name() != "http" {
		t.Fatalf("unexpected sinks %+v", sinks)
	}
}

func TestNewFeedHistoryTimes(t *testing.T) {
	log := zerolog.Nop()
	if _, err := NewFeed(config.Feed{Provider: "binance_history", Symbol: "BTCUSDT", HistoryStart: "yesterday"}, nil, log); err == nil {
		t.Fatalf("expected malformed history_start to fail")
	}
	cfg := config.Feed{Provider: "binance_history", Symbol: "BTCUSDT", HistoryStart: "2025-10-07T00:00:00Z", HistoryEnd: "bad"}
	if _, err := NewFeed(cfg, nil, log); err == nil {
		t.Fatalf("expected malformed history_end to fail")
	}
	cfg.HistoryEnd = "2025-10-08T00:00:00Z"
	feed, err := NewFeed(cfg, nil, log)
	if err != nil || feed.Symbol() != "BTCUSDT" {
		t.Fatalf("unexpected feed %v, err %v", feed, err)
	}
}

func TestBuildWithoutSinks(t *testing.T) {
	cfg := &config.Config{Feed: config.Feed{Symbol: "es"}}
	p, err := Build(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	defer p.Close()
	if p.Settings().Symbol != "ES" || p.Account.StartingCash() != 100000 {
		t.Fatalf("expected defaults to apply, got %+v", p.Settings())
	}
}
