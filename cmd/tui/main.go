// Binary tui is a small menu for editing the strategy config and launching the bots.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/config"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to YAML config")
	flag.Parse()
	path := filepath.Clean(*configPath)
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Range Breakout Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit range window and risk amounts")
		fmt.Println("3) Edit instrument and reversal settings")
		fmt.Println("4) Edit relay targets")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch paper bot")
		fmt.Println("7) Run CSV backtest")
		fmt.Println("8) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editInstrument(reader, cfg)
		case "4":
			editRelay(reader, cfg)
		case "5":
			if err := saveConfig(path, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launch(reader, "./cmd/paper", "-config", path)
		case "7":
			csvPath := promptString(reader, "CSV file", cfg.Feed.CSVPath)
			if csvPath == "" {
				fmt.Println("no CSV file given")
				continue
			}
			launch(reader, "./cmd/backtest", "-config", path, csvPath)
		case "8":
			reloaded, err := config.Load(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	s := cfg.Strategy
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Feed: %s %s\n", cfg.Feed.Provider, cfg.Feed.Symbol)
	fmt.Printf("Range window: %s-%s (%s)\n", s.RangeStart, s.RangeEnd, orDefault(s.Timezone, "bar zone"))
	fmt.Printf("Stop mode: %s | tick size %.4f | contract value %.2f | qty %.2f\n", orDefault(s.StopMode, "currency"), s.TickSize, s.ContractValue, s.Quantity)
	fmt.Printf("Profit target: %.2f | initial stop: %.2f | break-even plus: %.2f\n", s.ProfitTarget, s.InitialStopLoss, s.BreakEvenPlus)
	fmt.Printf("Allow reversal: %v | reset reversal each session: %v\n", boolOr(s.AllowReversal, true), boolOr(s.ResetReversalOnNewSession, true))
	fmt.Printf("Starting cash: $%.2f\n", cfg.Paper.StartingCash)
	fmt.Printf("Export signals: %s | signal URL: %s\n", orDefault(cfg.Relay.ExportPath, "off"), orDefault(cfg.Relay.SignalURL, "off"))
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Range / Risk ---")
	s := &cfg.Strategy
	s.RangeStart = promptString(reader, "Range start (HH:MM)", s.RangeStart)
	s.RangeEnd = promptString(reader, "Range end (HH:MM)", s.RangeEnd)
	s.ProfitTarget = promptFloat(reader, "Profit target", s.ProfitTarget)
	s.InitialStopLoss = promptFloat(reader, "Initial stop loss", s.InitialStopLoss)
	s.BreakEvenPlus = promptFloat(reader, "Break-even plus", s.BreakEvenPlus)
	s.StopMode = promptString(reader, "Stop mode (currency|ticks)", s.StopMode)
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
}

func editInstrument(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Instrument ---")
	s := &cfg.Strategy
	cfg.Feed.Symbol = strings.ToUpper(promptString(reader, "Symbol", cfg.Feed.Symbol))
	s.Quantity = promptFloat(reader, "Quantity", s.Quantity)
	s.TickSize = promptFloat(reader, "Tick size", s.TickSize)
	s.ContractValue = promptFloat(reader, "Contract value", s.ContractValue)
	s.Timezone = promptString(reader, "Timezone (IANA)", s.Timezone)
	s.AllowReversal = promptBool(reader, "Allow reversal", boolOr(s.AllowReversal, true))
	s.ResetReversalOnNewSession = promptBool(reader, "Reset reversal on new session", boolOr(s.ResetReversalOnNewSession, true))
}

func editRelay(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Relay ---")
	cfg.Relay.ExportPath = promptString(reader, "Export signals CSV (- to disable)", cfg.Relay.ExportPath)
	cfg.Relay.SignalURL = promptString(reader, "Signal URL (- to disable)", cfg.Relay.SignalURL)
}

// saveConfig refuses to persist a window or timezone the engine would reject.
func saveConfig(path string, cfg *config.Config) error {
	if _, err := cfg.Strategy.Settings(zerolog.Nop()); err != nil {
		return err
	}
	return config.Save(path, cfg)
}

func launch(reader *bufio.Reader, pkg string, args ...string) {
	fmt.Printf("Launching %s (Ctrl+C to stop)...\n", pkg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", append([]string{"run", pkg}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	switch line = strings.TrimSpace(line); line {
	case "":
		return current
	case "-":
		return ""
	}
	return line
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptBool(reader *bufio.Reader, label string, current bool) *bool {
	fmt.Printf("%s [%v]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return &current
	}
	val, err := strconv.ParseBool(line)
	if err != nil {
		fmt.Printf("invalid value, keeping %v\n", current)
		return &current
	}
	return &val
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
