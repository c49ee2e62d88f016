package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrackRequests counts admission decisions by outcome
	// (added, rule_violation, cooldown_active, duplicate_in_queue).
	TrackRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "track_requests_total",
		Help:      "Track requests by admission outcome.",
	}, []string{"outcome"})

	// Votes counts ledger writes by outcome (inserted, switched, unchanged).
	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "votes_total",
		Help:      "Votes by ledger outcome.",
	}, []string{"outcome"})

	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "evictions_total",
		Help:      "Queue items deleted during advance because of downvotes.",
	})

	Advances = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jukebox",
		Name:      "queue_advances_total",
		Help:      "Times the queue advanced to the next track.",
	})
)
