package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// ReportsCreated counts persisted reports by authority.
	ReportsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "reports",
		Name:      "created_total",
		Help:      "Reports persisted, labeled by routed authority.",
	}, []string{"authority"})

	// Audits counts resolution audits by outcome (accepted, rejected, error).
	Audits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "reports",
		Name:      "resolution_audits_total",
		Help:      "Resolution audits, labeled by result.",
	}, []string{"result"})

	// DetectDuration is the wall time of a detector call as seen by the service.
	DetectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pothole",
		Subsystem: "detector",
		Name:      "duration_seconds",
		Help:      "Time spent waiting for the defect detector.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})

	// GeocodeLookups counts reverse-geocode lookups by result (hit, miss, error).
	GeocodeLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "geocoder",
		Name:      "lookups_total",
		Help:      "Reverse geocoding lookups, labeled by result.",
	}, []string{"result"})

	// RateLimited counts requests rejected by a rate limiter.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pothole",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429, labeled by limiter.",
	}, []string{"limiter"})
)

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			ReportsCreated,
			Audits,
			DetectDuration,
			GeocodeLookups,
			RateLimited,
		)
	})
}
