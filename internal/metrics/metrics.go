// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "classroom"

var (
	// IndexProjections counts slot index projections by result (indexed, lagged, requeued).
	IndexProjections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_projections_total",
		Help:      "Slot index projections by result.",
	}, []string{"result"})

	ConflictChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflict_checks_total",
		Help:      "Conflict detector lookups by result (free, occupied, skipped).",
	}, []string{"result"})

	ResyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "index_resync_duration_seconds",
		Help:      "Duration of full slot index rebuilds.",
		Buckets:   prometheus.DefBuckets,
	})

	PresenceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "presence_marks_total",
		Help:      "Presence marks by attendance status.",
	}, []string{"status"})

	BonusUnits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "streak_bonus_units_total",
		Help:      "Streak bonus units granted.",
	})

	// CacheFallbacks counts operations served without the cache.
	CacheFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_fallbacks_total",
		Help:      "Operations that fell back to the authoritative store.",
	}, []string{"op"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})
)
