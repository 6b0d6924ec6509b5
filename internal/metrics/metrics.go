package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"provider"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals processed by pipeline result"},
		[]string{"result"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Per-user entry decisions"},
		[]string{"action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"side"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exits_total", Help: "Position exits by reason"},
		[]string{"reason"},
	)
	ProviderErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "safety_provider_errors_total", Help: "Safety provider fetch failures"},
	)
	QueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "intake_queue_dropped_total", Help: "Signals dropped because the intake queue was full"},
	)
	ReconcileNeeded = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "positions_reconcile_needed_total", Help: "Positions sold but not recorded closed, awaiting manual reconciliation"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Currently open positions"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, SignalsTotal, DecisionsTotal, OrdersTotal,
		ExitsTotal, ProviderErrors, QueueDropped, ReconcileNeeded, OpenPositions,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
