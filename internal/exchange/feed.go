// Package exchange hosts bar sources: CSV replays, synthetic bars and Binance klines.
package exchange

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic minute bars (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderCSV replays a datetime,open,high,low,close,volume file.
	ProviderCSV = "csv"
	// ProviderBinance streams closed klines from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderBinanceHistory pages historical klines from the Binance REST API.
	ProviderBinanceHistory = "binance_history"
)

// Feed represents a pluggable bar source for one symbol.
type Feed struct {
	provider string
	symbol   string
	log      zerolog.Logger
	location *time.Location

	csvPath string

	stubInterval time.Duration
	stubStart    time.Time
	stubBars     int

	interval     string
	streamURL    string
	restBaseURL  string
	historyStart time.Time
	historyEnd   time.Time
	limiter      *rate.Limiter
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultStubInterval = 500 * time.Millisecond
	defaultInterval     = "1m"
	defaultStreamURL    = "wss://stream.binance.com:9443/ws"
)

// WithCSVPath sets the file replayed by the csv provider.
func WithCSVPath(path string) Option {
	return func(f *Feed) { f.csvPath = path }
}

// WithLocation sets the zone used to read naive timestamps and to mark session starts.
func WithLocation(loc *time.Location) Option {
	return func(f *Feed) {
		if loc != nil {
			f.location = loc
		}
	}
}

// WithStubInterval overrides the cadence of synthetic bars.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// WithStubBars stops the stub provider after n bars starting at start.
func WithStubBars(start time.Time, n int) Option {
	return func(f *Feed) {
		f.stubStart = start
		f.stubBars = n
	}
}

// WithKlineInterval sets the Binance kline interval (1m, 5m, ...).
func WithKlineInterval(interval string) Option {
	return func(f *Feed) {
		if interval != "" {
			f.interval = interval
		}
	}
}

// WithStreamURL overrides the websocket base URL.
func WithStreamURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.streamURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHistory configures the REST backfill range and optional base URL.
func WithHistory(baseURL string, start, end time.Time) Option {
	return func(f *Feed) {
		f.restBaseURL = strings.TrimSuffix(baseURL, "/")
		f.historyStart = start
		f.historyEnd = end
	}
}

// WithRateLimit paces REST requests.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *Feed) {
		if perSecond > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider, symbol string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:     strings.ToLower(strings.TrimSpace(provider)),
		symbol:       strings.ToUpper(strings.TrimSpace(symbol)),
		log:          log.With().Str("component", "feed").Logger(),
		location:     time.UTC,
		stubInterval: defaultStubInterval,
		interval:     defaultInterval,
		streamURL:    defaultStreamURL,
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Symbol returns the instrument the feed serves.
func (f *Feed) Symbol() string { return f.symbol }

// Run pushes bars onto out until the source is exhausted or ctx is cancelled. The caller
// owns out and closes it after Run returns.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Bar) error {
	switch f.provider {
	case ProviderCSV:
		return f.runCSV(ctx, out)
	case ProviderBinance:
		return f.runBinance(ctx, out)
	case ProviderBinanceHistory:
		return f.runHistory(ctx, out)
	case ProviderStub:
		return f.runStub(ctx, out)
	default:
		return fmt.Errorf("unknown feed provider %q", f.provider)
	}
}

// sessionMarker flags the first bar of each calendar date.
type sessionMarker struct {
	loc  *time.Location
	last string
}

func (m *sessionMarker) mark(bar *signal.Bar) {
	key := bar.Ts.In(m.loc).Format(time.DateOnly)
	if key != m.last {
		bar.SessionStart = true
		m.last = key
	}
}

func send(ctx context.Context, out chan<- signal.Bar, bar signal.Bar) error {
	select {
	case out <- bar:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Bar) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	start := f.stubStart
	if start.IsZero() {
		y, m, d := time.Now().In(f.location).Date()
		start = time.Date(y, m, d, 9, 0, 0, 0, f.location)
	}
	marker := &sessionMarker{loc: f.location}
	px := 100.0
	for i := 0; f.stubBars <= 0 || i < f.stubBars; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		bar := StubBar(f.symbol, start.Add(time.Duration(i)*time.Minute), i, px)
		px = bar.Close
		marker.mark(&bar)
		if err := send(ctx, out, bar); err != nil {
			return err
		}
	}
	return nil
}

// StubBar produces the i-th synthetic bar: a slow oscillation with an upward drift so
// the moving average leaves the opening range.
func StubBar(symbol string, ts time.Time, i int, prevClose float64) signal.Bar {
	open := prevClose
	close := 100 + 1.5*math.Sin(float64(i)/6) + 0.05*float64(i)
	high := math.Max(open, close) + 0.2
	low := math.Min(open, close) - 0.2
	return signal.Bar{Symbol: symbol, Ts: ts, Open: open, High: high, Low: low, Close: close, Volume: 1}
}
