package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Count of bars ingested"},
		[]string{"symbol"},
	)
	BarsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_rejected_total", Help: "Bars skipped without state mutation"},
		[]string{"reason"},
	)
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intents_total", Help: "Intents emitted by the engine"},
		[]string{"kind", "reason"},
	)
	IntentsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intents_rejected_total", Help: "Intents the execution layer refused"},
		[]string{"kind"},
	)
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sessions_total", Help: "Trading sessions started"},
		[]string{"symbol"},
	)
	ReversalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reversals_total", Help: "Reversals by detection path"},
		[]string{"path"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Fill notifications received"},
		[]string{"state"},
	)
	RangeWidth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "range_width", Help: "Width of the captured opening range"},
		[]string{"symbol"},
	)
	SignalsRelayedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_relayed_total", Help: "Signal records delivered by sink"},
		[]string{"sink", "event"},
	)
	RelayErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_errors_total", Help: "Signal records a sink failed to deliver"},
		[]string{"sink"},
	)
	SignalsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_received_total", Help: "Signals accepted by the relay server"},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(
		BarsTotal, BarsRejectedTotal, IntentsTotal, IntentsRejectedTotal,
		SessionsTotal, ReversalsTotal, FillsTotal, RangeWidth,
		SignalsRelayedTotal, RelayErrorsTotal, SignalsReceivedTotal,
	)
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
