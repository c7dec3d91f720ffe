// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve on minimal hosts

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/risk"
	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/strategy"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed selects the bar source and its connection parameters.
type Feed struct {
	Provider       string  `yaml:"provider"` // stub|csv|binance|binance_history
	Symbol         string  `yaml:"symbol"`
	CSVPath        string  `yaml:"csv_path"`
	Interval       string  `yaml:"interval"`
	StreamURL      string  `yaml:"stream_url"`
	RestURL        string  `yaml:"rest_url"`
	HistoryStart   string  `yaml:"history_start"` // RFC3339
	HistoryEnd     string  `yaml:"history_end"`
	StubIntervalMs int     `yaml:"stub_interval_ms"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// Strategy holds the engine knobs as written by operators.
type Strategy struct {
	RangeStart                string  `yaml:"range_start"`
	RangeEnd                  string  `yaml:"range_end"`
	ProfitTarget              float64 `yaml:"profit_target"`
	InitialStopLoss           float64 `yaml:"initial_stop_loss"`
	BreakEvenPlus             float64 `yaml:"break_even_plus"`
	Quantity                  float64 `yaml:"quantity"`
	StopMode                  string  `yaml:"stop_mode"`
	TickSize                  float64 `yaml:"tick_size"`
	ContractValue             float64 `yaml:"contract_value"`
	AllowReversal             *bool   `yaml:"allow_reversal,omitempty"`
	ResetReversalOnNewSession *bool   `yaml:"reset_reversal_on_new_session,omitempty"`
	EMAPeriod                 int     `yaml:"ema_period"`
	WarmupBars                int     `yaml:"warmup_bars"`
	Timezone                  string  `yaml:"timezone"`
}

// Paper captures paper-trading account settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol"`
	FillsPath            string  `yaml:"fills_path"`
}

// Relay configures where intents are forwarded and the signal server.
type Relay struct {
	ListenAddr     string  `yaml:"listen_addr"`
	SignalsPath    string  `yaml:"signals_path"`
	ExecutionsPath string  `yaml:"executions_path"`
	ExportPath     string  `yaml:"export_path"`
	SignalURL      string  `yaml:"signal_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	TelegramToken  string  `yaml:"telegram_token"`
	TelegramChatID int64   `yaml:"telegram_chat_id"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Feed     Feed     `yaml:"feed"`
	Strategy Strategy `yaml:"strategy"`
	Paper    Paper    `yaml:"paper"`
	Relay    Relay    `yaml:"relay"`
}

// Environment variables that override file values.
const (
	EnvLogLevel       = "RB_LOG_LEVEL"
	EnvSignalURL      = "RB_SIGNAL_URL"
	EnvTelegramToken  = "RB_TELEGRAM_TOKEN"
	EnvTelegramChatID = "RB_TELEGRAM_CHAT_ID"
	EnvMetricsAddr    = "RB_METRICS_ADDR"
)

// LoadDotEnv loads .env style files into the process environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads a YAML file from disk, hydrates a Config struct and applies environment overrides.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.App.MetricsAddr = v
	}
	if v := os.Getenv(EnvSignalURL); v != "" {
		c.Relay.SignalURL = v
	}
	if v := os.Getenv(EnvTelegramToken); v != "" {
		c.Relay.TelegramToken = v
	}
	if v := os.Getenv(EnvTelegramChatID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTelegramChatID, err)
		}
		c.Relay.TelegramChatID = id
	}
	return nil
}

// Validate fills defaults and rejects configurations the engine cannot run with.
func (c *Config) Validate(log zerolog.Logger) error {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Feed.Provider == "" {
		c.Feed.Provider = "stub"
	}
	c.Feed.Symbol = strings.ToUpper(strings.TrimSpace(c.Feed.Symbol))
	if c.Feed.Symbol == "" {
		return errors.New("feed.symbol is required")
	}
	if c.Feed.Provider == "csv" && c.Feed.CSVPath == "" {
		return errors.New("feed.csv_path is required for the csv provider")
	}
	if c.Paper.StartingCash <= 0 {
		c.Paper.StartingCash = 100000
	}
	if c.Relay.ListenAddr == "" {
		c.Relay.ListenAddr = ":8000"
	}
	if _, err := c.Strategy.Settings(log); err != nil {
		return err
	}
	return nil
}

// EngineSettings converts the strategy section for the configured symbol.
func (c *Config) EngineSettings(log zerolog.Logger) (strategy.Settings, error) {
	s, err := c.Strategy.Settings(log)
	if err != nil {
		return s, err
	}
	s.Symbol = c.Feed.Symbol
	return s, nil
}

// Settings converts the section into engine settings. Unusable values fall back to their
// defaults with a warning; an inverted range window is an error.
func (s Strategy) Settings(log zerolog.Logger) (strategy.Settings, error) {
	out := strategy.DefaultSettings()

	out.Window.Start = clockOr(log, "range_start", s.RangeStart, out.Window.Start)
	out.Window.End = clockOr(log, "range_end", s.RangeEnd, out.Window.End)
	if err := out.Window.Validate(); err != nil {
		return out, fmt.Errorf("strategy: %w", err)
	}

	out.ProfitTarget = positiveOr(log, "profit_target", s.ProfitTarget, out.ProfitTarget)
	out.InitialStopLoss = positiveOr(log, "initial_stop_loss", s.InitialStopLoss, out.InitialStopLoss)
	out.BreakEvenPlus = positiveOr(log, "break_even_plus", s.BreakEvenPlus, out.BreakEvenPlus)
	out.Quantity = positiveOr(log, "quantity", s.Quantity, out.Quantity)
	out.TickSize = positiveOr(log, "tick_size", s.TickSize, out.TickSize)
	out.ContractValue = positiveOr(log, "contract_value", s.ContractValue, out.ContractValue)

	unit, ok := risk.ParseUnit(s.StopMode)
	if !ok {
		log.Warn().Str("stop_mode", s.StopMode).Msg("unknown stop mode, using currency")
	}
	out.Unit = unit

	if s.AllowReversal != nil {
		out.AllowReversal = *s.AllowReversal
	}
	if s.ResetReversalOnNewSession != nil {
		out.ResetReversalOnNewSession = *s.ResetReversalOnNewSession
	}
	if s.EMAPeriod > 0 {
		out.EMAPeriod = s.EMAPeriod
	}
	if s.WarmupBars > 0 {
		out.WarmupBars = s.WarmupBars
	}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			log.Warn().Err(err).Str("timezone", s.Timezone).Msg("unknown timezone, using bar timestamps as-is")
		} else {
			out.Location = loc
		}
	}
	return out, nil
}

func clockOr(log zerolog.Logger, key, raw string, def strategy.ClockTime) strategy.ClockTime {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	c, err := strategy.ParseClock(raw)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Str("default", def.String()).Msg("malformed time, using default")
		return def
	}
	return c
}

func positiveOr(log zerolog.Logger, key string, v, def float64) float64 {
	if v > 0 {
		return v
	}
	if v < 0 {
		log.Warn().Str("key", key).Float64("value", v).Float64("default", def).Msg("non-positive value, using default")
	}
	return def
}
