// Package app assembles feeds, the engine, the paper venue and relays from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/config"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/exchange"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/execution"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/paper"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/relay"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/strategy"
)

const (
	barBuffer   = 1024
	relayBuffer = 256
)

// Pipeline is one engine trading one symbol against the paper venue.
type Pipeline struct {
	Engine  *strategy.Engine
	Account *paper.Account
	Ledger  *paper.Ledger
	Runner  *strategy.Runner

	settings strategy.Settings
	log      zerolog.Logger
	closers  []io.Closer
}

// Build validates cfg and wires every component. Close releases recorder files.
func Build(cfg *config.Config, log zerolog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(log); err != nil {
		return nil, err
	}
	settings, err := cfg.EngineSettings(log)
	if err != nil {
		return nil, err
	}
	engine, err := strategy.NewEngine(settings, log)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Engine: engine, Ledger: paper.NewLedger(barBuffer), settings: settings, log: log}
	opts := []paper.Option{
		paper.WithContract(settings.ContractValue, settings.TickSize),
		paper.WithMaxQty(cfg.Paper.MaxPositionPerSymbol),
		paper.WithRecorder(p.Ledger),
		paper.WithLogger(log),
	}
	if cfg.Paper.FillsPath != "" {
		rec, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, rec)
		opts = append(opts, paper.WithRecorder(rec))
	}
	p.Account = paper.NewAccount(settings.Symbol, cfg.Paper.StartingCash, opts...)

	var publishers []execution.Publisher
	if sinks := Sinks(cfg.Relay, log); len(sinks) > 0 {
		contract := risk.Contract{Qty: settings.Quantity, ContractValue: settings.ContractValue, TickSize: settings.TickSize}
		pub := relay.NewPublisher(log, p.Account, contract, sinks...)
		pub.Start(relayBuffer)
		p.closers = append(p.closers, pub)
		publishers = append(publishers, pub)
	}
	exec := execution.NewExecutor(log, p.Account, publishers...)
	p.Runner = strategy.NewRunner(engine, p.Account, exec, log)
	return p, nil
}

// Settings returns the engine configuration in use.
func (p *Pipeline) Settings() strategy.Settings { return p.settings }

// Run drives bars from feed through the runner until the feed ends or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, feed *exchange.Feed) error {
	bars := make(chan signal.Bar, barBuffer)
	feedErr := make(chan error, 1)
	go func() {
		feedErr <- feed.Run(ctx, bars)
		close(bars)
	}()

	runErr := p.Runner.Run(ctx, bars)
	err := <-feedErr
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("feed: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// Close drains the relay queue and flushes recorders.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Sinks builds the relay sinks the section enables. A Telegram bot that fails to
// authenticate is skipped with a warning.
func Sinks(cfg config.Relay, log zerolog.Logger) []relay.Sink {
	var sinks []relay.Sink
	if cfg.ExportPath != "" {
		sinks = append(sinks, relay.NewCSVExporter(cfg.ExportPath))
	}
	if cfg.SignalURL != "" {
		sinks = append(sinks, relay.NewHTTPPublisher(cfg.SignalURL, cfg.RequestsPerSec))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier, err := relay.NewTelegramNotifier(cfg.TelegramToken, "", cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram notifier disabled")
		} else {
			sinks = append(sinks, notifier)
		}
	}
	return sinks
}

// NewFeed builds the configured bar source.
func NewFeed(cfg config.Feed, loc *time.Location, log zerolog.Logger) (*exchange.Feed, error) {
	opts := []exchange.Option{
		exchange.WithCSVPath(cfg.CSVPath),
		exchange.WithLocation(loc),
		exchange.WithKlineInterval(cfg.Interval),
		exchange.WithStreamURL(cfg.StreamURL),
		exchange.WithRateLimit(cfg.RequestsPerSec, int(cfg.RequestsPerSec)+1),
	}
	if cfg.StubIntervalMs > 0 {
		opts = append(opts, exchange.WithStubInterval(time.Duration(cfg.StubIntervalMs)*time.Millisecond))
	}
	if cfg.Provider == exchange.ProviderBinanceHistory {
		start, err := time.Parse(time.RFC3339, cfg.HistoryStart)
		if err != nil {
			return nil, fmt.Errorf("feed.history_start: %w", err)
		}
		var end time.Time
		if cfg.HistoryEnd != "" {
			if end, err = time.Parse(time.RFC3339, cfg.HistoryEnd); err != nil {
				return nil, fmt.Errorf("feed.history_end: %w", err)
			}
		}
		opts = append(opts, exchange.WithHistory(cfg.RestURL, start, end))
	}
	return exchange.NewFeed(cfg.Provider, cfg.Symbol, log, opts...), nil
}
