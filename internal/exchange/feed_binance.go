package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

type binanceKlineEvent struct {
	Event  string       `json:"e"`
	Symbol string       `json:"s"`
	Kline  binanceKline `json:"k"`
}

type binanceKline struct {
	StartTime int64  `json:"t"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Bar) error {
	if f.symbol == "" {
		return fmt.Errorf("binance feed requires a symbol")
	}

	url := fmt.Sprintf("%s/%s@kline_%s", f.streamURL, strings.ToLower(f.symbol), f.interval)
	marker := &sessionMarker{loc: f.location}
	backoff := newReconnectBackoff()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeKlineStream(ctx, url, marker, out, backoff.Reset); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := backoff.Next()
			f.log.Warn().Err(err).Dur("retry_in", wait).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
}

// reconnectBackoff grows the delay between failed dials and starts over once a
// connection is established.
type reconnectBackoff struct {
	cur, min, max time.Duration
}

func newReconnectBackoff() *reconnectBackoff {
	return &reconnectBackoff{cur: time.Second, min: time.Second, max: 30 * time.Second}
}

// Next returns the delay to wait now and grows the following one.
func (b *reconnectBackoff) Next() time.Duration {
	d := b.cur
	b.cur = time.Duration(math.Min(float64(b.max), float64(b.cur)*1.8))
	return d
}

// Reset starts the sequence over.
func (b *reconnectBackoff) Reset() { b.cur = b.min }

func (f *Feed) consumeKlineStream(ctx context.Context, url string, marker *sessionMarker, out chan<- signal.Bar, connected func()) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	connected()

	f.log.Info().Str("provider", ProviderBinance).Str("symbol", f.symbol).Str("interval", f.interval).Msg("connected market data feed")

	// Kline events arrive every ~2s, so a quiet minute means a dead connection.
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var ev binanceKlineEvent
		if err := json.Unmarshal(message, &ev); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		if ev.Event != "kline" || !ev.Kline.Closed {
			continue
		}
		bar, err := klineBar(f.symbol, ev.Kline.StartTime, ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume)
		if err != nil {
			f.log.Warn().Err(err).Msg("invalid kline from binance")
			continue
		}
		marker.mark(&bar)
		if err := send(ctx, out, bar); err != nil {
			return err
		}
	}
}

// klineBar converts Binance's string-encoded OHLCV into a bar stamped at the kline open time.
func klineBar(symbol string, openTime int64, open, high, low, close, volume string) (signal.Bar, error) {
	var px [5]float64
	for i, raw := range []string{open, high, low, close, volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return signal.Bar{}, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		px[i] = v
	}
	return signal.Bar{
		Symbol: symbol,
		Ts:     time.UnixMilli(openTime).UTC(),
		Open:   px[0],
		High:   px[1],
		Low:    px[2],
		Close:  px[3],
		Volume: px[4],
	}, nil
}
