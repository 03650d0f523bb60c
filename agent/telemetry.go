package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts processed requests.
	// Labels: operation, outcome (ok, invalid, unsupported, error)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "engine",
		Name:      "operations_total",
		Help:      "Total reasoning operations processed by outcome",
	}, []string{"operation", "outcome"})

	// autoReasonSteps records how many iterations each automatic run took.
	autoReasonSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hrm",
		Subsystem: "engine",
		Name:      "auto_reason_steps",
		Help:      "Iterations executed per automatic reasoning run",
		Buckets:   []float64{1, 2, 4, 8, 12, 16, 24, 32, 48},
	})

	// haltsTotal counts automatic runs by halt trigger.
	haltsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "engine",
		Name:      "halts_total",
		Help:      "Total automatic reasoning runs by halt trigger",
	}, []string{"trigger"})

	// duplicateThoughts counts suppressed low-level thoughts.
	duplicateThoughts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "engine",
		Name:      "duplicate_thoughts_total",
		Help:      "Total low-level thoughts suppressed as duplicates",
	})

	// frameworkLookups counts framework detection calls.
	// Labels: result (ok, skipped, failed, cached)
	frameworkLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "framework",
		Name:      "lookups_total",
		Help:      "Total framework detection lookups by result",
	}, []string{"result"})
)
