// Package telemetry holds the process-wide Prometheus metrics. Collectors
// are registered once at package init and safe for concurrent use.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesSimulated counts closed trades produced across all backtest runs.
	TradesSimulated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_trades_simulated_total",
		Help: "Total number of closed trades produced by backtest runs",
	})

	// SymbolFailures counts per-symbol backtest failures (insufficient data,
	// provider errors).
	SymbolFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_symbol_failures_total",
		Help: "Total number of per-symbol backtest failures",
	})

	// TrialsCompleted counts optimizer trials that finished evaluation.
	TrialsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradeforge_trials_completed_total",
		Help: "Total number of completed optimization trials",
	})

	// RunDuration observes wall-clock duration of optimization runs.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradeforge_optimization_run_seconds",
		Help:    "Duration of optimization runs in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	})
)
