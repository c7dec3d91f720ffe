package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/app"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/config"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/metrics"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	flag.Parse()

	boot := util.NewLogger("info")
	if err := config.LoadDotEnv(); err != nil {
		boot.Fatal().Err(err).Msg("load .env")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	pipeline, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	defer pipeline.Close()

	feed, err := app.NewFeed(cfg.Feed, pipeline.Settings().Location, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build feed")
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings := pipeline.Settings()
	log.Info().
		Str("sym", settings.Symbol).
		Str("feed", cfg.Feed.Provider).
		Str("window", settings.Window.String()).
		Str("stop_mode", string(settings.Unit)).
		Msg("paper engine started")

	if err := pipeline.Run(ctx, feed); err != nil {
		log.Error().Err(err).Msg("pipeline stopped")
	}

	snap := pipeline.Account.Snapshot()
	log.Info().
		Float64("equity", snap.Equity).
		Float64("realized", snap.RealizedPnL).
		Str("position", string(snap.Position.Side)).
		Int("fills", pipeline.Ledger.Count(nil)).
		Msg("shutting down")
}
