// Package metrics registers the Prometheus collectors of the turn pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts finished turns by outcome: completed, failed or cancelled.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "design_desk",
			Subsystem: "turn",
			Name:      "turns_total",
			Help:      "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "design_desk",
			Subsystem: "turn",
			Name:      "turn_duration_seconds",
			Help:      "Time from submission to the persisted reply",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// DirectivesTotal counts the action selected for each routed turn.
	DirectivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "design_desk",
			Subsystem: "routing",
			Name:      "directives_total",
			Help:      "Dispatched actions by kind",
		},
		[]string{"action"},
	)

	HandlerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "design_desk",
			Subsystem: "routing",
			Name:      "handler_runs_total",
			Help:      "Task handler invocations by handler and status",
		},
		[]string{"handler", "status"},
	)

	FragmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "design_desk",
			Subsystem: "turn",
			Name:      "fragments_total",
			Help:      "Fragments forwarded to clients",
		},
	)
)
