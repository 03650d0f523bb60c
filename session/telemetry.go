package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sessionsCreated counts fresh and reset sessions.
	// Labels: kind (new, reset)
	sessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "sessions",
		Name:      "created_total",
		Help:      "Total reasoning sessions created or reset",
	}, []string{"kind"})

	// sessionsEvicted counts sessions removed by the store.
	// Labels: reason (capacity, ttl)
	sessionsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "sessions",
		Name:      "evicted_total",
		Help:      "Total reasoning sessions evicted by capacity or expiry",
	}, []string{"reason"})
)
