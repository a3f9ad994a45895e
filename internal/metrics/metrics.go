package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (validation or dependency issues).
	OutcomeError = "error"
	// OutcomeTimeout labels operations that exceeded their deadline.
	OutcomeTimeout = "timeout"

	// ModeBasic and ModeEnhanced label cross-reference runs.
	ModeBasic    = "basic"
	ModeEnhanced = "enhanced"
	// ModeSuggest labels suggestion runs.
	ModeSuggest = "suggest"
)

var (
	correlationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firewall_mcp",
			Name:      "correlations_total",
			Help:      "Total number of correlation requests handled, partitioned by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	correlationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "firewall_mcp",
			Name:      "correlation_seconds",
			Help:      "Correlation latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"mode"},
	)

	entitySearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firewall_mcp",
			Name:      "entity_searches_total",
			Help:      "Entity searches dispatched upstream, partitioned by entity type and outcome.",
		},
		[]string{"entity_type", "outcome"},
	)

	entitySearchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "firewall_mcp",
			Name:      "entity_search_seconds",
			Help:      "Entity search latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
		},
		[]string{"entity_type"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firewall_mcp",
			Name:      "search_cache_lookups_total",
			Help:      "Search cache lookups, partitioned by result (hit or miss).",
		},
		[]string{"result"},
	)
)

// Register attaches firewall-mcp collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		correlationsTotal,
		correlationDurationSeconds,
		entitySearchesTotal,
		entitySearchDurationSeconds,
		cacheLookupsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCorrelation records a correlation duration and outcome label for mode.
func ObserveCorrelation(mode string, duration time.Duration, outcome string) {
	correlationsTotal.WithLabelValues(mode, normaliseOutcome(outcome)).Inc()
	correlationDurationSeconds.WithLabelValues(mode).Observe(clamp(duration).Seconds())
}

// ObserveEntitySearch records one upstream search.
func ObserveEntitySearch(entityType string, duration time.Duration, outcome string) {
	entitySearchesTotal.WithLabelValues(entityType, normaliseOutcome(outcome)).Inc()
	entitySearchDurationSeconds.WithLabelValues(entityType).Observe(clamp(duration).Seconds())
}

// ObserveCacheLookup records a search cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

func normaliseOutcome(outcome string) string {
	switch outcome {
	case OutcomeError, OutcomeTimeout:
		return outcome
	default:
		return OutcomeSuccess
	}
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
