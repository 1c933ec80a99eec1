// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "huebridged"

var (
	// CommitsTotal counts staged commands dispatched to the backend.
	CommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Total staged light commands dispatched to the backend",
	})

	// ThrottleVetoesTotal counts commits suppressed by the throttle gate.
	ThrottleVetoesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttle_vetoes_total",
		Help:      "Total commits vetoed as redundant or too frequent",
	})

	// RefreshesTotal counts completed backend state refreshes.
	RefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refreshes_total",
		Help:      "Total backend state refreshes reconciled into persisted state",
	})

	// DispatchErrorsTotal counts failed backend dispatches.
	DispatchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_errors_total",
		Help:      "Total backend dispatch failures during commit",
	})
)
