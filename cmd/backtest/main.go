// Binary backtest replays a CSV of intraday bars through the engine and the paper venue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/app"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/config"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/util"
)

func main() {
	var (
		configPath    = flag.String("config", "", "optional YAML config; flags override it")
		symbol        = flag.String("symbol", "ES", "instrument name stamped on bars")
		rangeStart    = flag.String("range-start", "09:30", "range start time (HH:MM)")
		rangeEnd      = flag.String("range-end", "10:00", "range end time (HH:MM)")
		profitTarget  = flag.Float64("profit-target", 500, "profit target in currency (or ticks)")
		initialStop   = flag.Float64("initial-stop", 450, "initial stop loss in currency (or ticks)")
		breakEvenPlus = flag.Float64("breakeven-plus", 150, "stop offset once the profit target is reached")
		contractValue = flag.Float64("contract-value", 1, "currency value per price unit")
		qty           = flag.Float64("qty", 1, "quantity per trade")
		stopMode      = flag.String("stop-mode", "currency", "interpret amounts as currency or ticks")
		tickSize      = flag.Float64("tick-size", 0.01, "price per tick in ticks mode")
		timezone      = flag.String("timezone", "", "IANA zone of the CSV timestamps")
		cash          = flag.Float64("cash", 100000, "starting paper cash")
		exportSignals = flag.String("export-signals", "", "CSV file to append signals to")
		signalURL     = flag.String("signal-url", "", "HTTP URL to POST signals to as JSON")
		fillsPath     = flag.String("fills", "", "JSONL file to record paper fills to")
		logLevel      = flag.String("log-level", "warn", "log level")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: backtest [flags] bars.csv\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	log := util.NewConsoleLogger(*logLevel, os.Stderr)
	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		cfg = loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	override := func(name string, apply func()) {
		if *configPath == "" || set[name] {
			apply()
		}
	}
	override("symbol", func() { cfg.Feed.Symbol = *symbol })
	override("range-start", func() { cfg.Strategy.RangeStart = *rangeStart })
	override("range-end", func() { cfg.Strategy.RangeEnd = *rangeEnd })
	override("profit-target", func() { cfg.Strategy.ProfitTarget = *profitTarget })
	override("initial-stop", func() { cfg.Strategy.InitialStopLoss = *initialStop })
	override("breakeven-plus", func() { cfg.Strategy.BreakEvenPlus = *breakEvenPlus })
	override("contract-value", func() { cfg.Strategy.ContractValue = *contractValue })
	override("qty", func() { cfg.Strategy.Quantity = *qty })
	override("stop-mode", func() { cfg.Strategy.StopMode = *stopMode })
	override("tick-size", func() { cfg.Strategy.TickSize = *tickSize })
	override("timezone", func() { cfg.Strategy.Timezone = *timezone })
	override("cash", func() { cfg.Paper.StartingCash = *cash })
	override("export-signals", func() { cfg.Relay.ExportPath = *exportSignals })
	override("signal-url", func() { cfg.Relay.SignalURL = *signalURL })
	override("fills", func() { cfg.Paper.FillsPath = *fillsPath })
	cfg.Feed.Provider = "csv"
	cfg.Feed.CSVPath = flag.Arg(0)
	cfg.App.MetricsAddr = ""

	pipeline, err := app.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	defer pipeline.Close()
	feed, err := app.NewFeed(cfg.Feed, pipeline.Settings().Location, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build feed")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Starting Portfolio Value: %.2f\n", pipeline.Account.StartingCash())
	if err := pipeline.Run(ctx, feed); err != nil {
		log.Error().Err(err).Msg("replay failed")
	}
	snap := pipeline.Account.Snapshot()
	fmt.Printf("Final Portfolio Value: %.2f\n", snap.Equity)
	st := pipeline.Engine.Snapshot()
	fmt.Printf("Bars: %d  Fills: %d  Position: %s  Reversal used: %v\n",
		st.Bars, pipeline.Ledger.Count(nil), snap.Position.Side, st.ReversalUsed)
}
