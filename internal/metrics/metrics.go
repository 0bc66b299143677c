// Package metrics registers the pipeline's prometheus counters and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Quotes received from streaming feeds"},
		[]string{"symbol"},
	)
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Closed bars published as data events"},
		[]string{"symbol"},
	)
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_total", Help: "Events dispatched by the director"},
		[]string{"kind"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by the signal generator"},
		[]string{"symbol", "direction"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted to the venue"},
		[]string{"symbol", "side"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rejections_total", Help: "Events dropped by a pipeline stage"},
		[]string{"stage", "reason"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, BarsTotal, EventsTotal, SignalsTotal, OrdersTotal, RejectionsTotal)
}

// Reject counts one dropped event.
func Reject(stage, reason string) {
	RejectionsTotal.WithLabelValues(stage, reason).Inc()
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
