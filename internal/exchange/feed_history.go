package exchange

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/cyrilsofdevpro/ninjapy-trader-web/internal/signal"
)

const (
	historyPageLimit  = 1000
	historyMaxRetries = 3
)

// newFuturesClient builds an unauthenticated USD-M futures client; klines are public.
func (f *Feed) newFuturesClient() *futures.Client {
	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	if f.restBaseURL != "" {
		client.BaseURL = f.restBaseURL
	}
	return client
}

func (f *Feed) runHistory(ctx context.Context, out chan<- signal.Bar) error {
	if f.historyStart.IsZero() {
		return fmt.Errorf("binance history feed requires a start time")
	}
	end := f.historyEnd
	if end.IsZero() {
		end = time.Now()
	}
	client := f.newFuturesClient()
	marker := &sessionMarker{loc: f.location}

	cursor := f.historyStart.UnixMilli()
	endMs := end.UnixMilli()
	pages, total := 0, 0
	for cursor < endMs {
		klines, err := f.fetchKlines(ctx, client, cursor, endMs)
		if err != nil {
			return fmt.Errorf("fetch klines: %w", err)
		}
		pages++
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := klineBar(f.symbol, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
			if err != nil {
				f.log.Warn().Err(err).Int64("open_time", k.OpenTime).Msg("invalid historical kline")
				continue
			}
			marker.mark(&bar)
			if err := send(ctx, out, bar); err != nil {
				return err
			}
			total++
		}
		next := klines[len(klines)-1].CloseTime + 1
		if next <= cursor {
			break
		}
		cursor = next
	}
	f.log.Info().Int("pages", pages).Int("bars", total).Str("symbol", f.symbol).Msg("historical replay finished")
	return nil
}

// fetchKlines pages one request through the limiter, retrying with exponential backoff.
func (f *Feed) fetchKlines(ctx context.Context, client *futures.Client, startMs, endMs int64) ([]*futures.Kline, error) {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= historyMaxRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		klines, err := client.NewKlinesService().
			Symbol(f.symbol).
			Interval(f.interval).
			StartTime(startMs).
			EndTime(endMs).
			Limit(historyPageLimit).
			Do(ctx)
		if err == nil {
			return klines, nil
		}
		lastErr = err
		if attempt == historyMaxRetries {
			break
		}
		f.log.Debug().Err(err).Int("attempt", attempt+1).Msg("kline request failed, backing off")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(math.Pow(2, float64(attempt))) * backoff):
		}
	}
	return nil, lastErr
}
