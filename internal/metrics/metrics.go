package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keeper"

// Outcome label values for LiquidationAttempts.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeReverted = "reverted"
	OutcomeSkipped  = "skipped"
	OutcomeDryRun   = "dry_run"
)

var (
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total number of keeper cycles by result",
		},
		[]string{"result"},
	)

	QueryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_retries_total",
			Help:      "Health factor queries retried after a failure",
		},
	)

	VaultsScanned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vaults_scanned",
			Help:      "Vaults returned by the hub in the last cycle",
		},
	)

	VaultsLiquidatable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vaults_liquidatable",
			Help:      "Vaults below the health factor threshold in the last cycle",
		},
	)

	LiquidationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidation_attempts_total",
			Help:      "Liquidation attempts by outcome",
		},
		[]string{"outcome"},
	)

	LiquidationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "liquidation_duration_seconds",
			Help:      "Time from submission to inclusion of a liquidation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full keeper cycle",
		},
	)

	LastCycleTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the last cycle finished",
		},
	)
)
