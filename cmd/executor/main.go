// Binary executor receives relayed signals over HTTP, stores them and acknowledges each one
// in an execution log. It never talks to a broker.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/config"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/metrics"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/relay"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	addr := flag.String("addr", "", "listen address (overrides relay.listen_addr)")
	flag.Parse()

	boot := util.NewLogger("info")
	if err := config.LoadDotEnv(); err != nil {
		boot.Fatal().Err(err).Msg("load .env")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(boot); err != nil {
		boot.Fatal().Err(err).Msg("invalid config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if *addr != "" {
		cfg.Relay.ListenAddr = *addr
	}
	if cfg.Relay.SignalsPath == "" {
		cfg.Relay.SignalsPath = "signals_received.csv"
	}

	gin.SetMode(gin.ReleaseMode)
	var opts []relay.ServerOption
	if cfg.Relay.ExecutionsPath != "" {
		opts = append(opts, relay.WithExecutionLog(relay.NewExecutionLog(cfg.Relay.ExecutionsPath)))
	}
	server := relay.NewServer(log, relay.NewCSVExporter(cfg.Relay.SignalsPath), opts...)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := server.ListenAndServe(ctx, cfg.Relay.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("signal server stopped")
	}
	log.Info().Msg("signal server shut down")
}
