// Package telemetry holds the Prometheus instruments for the matching
// pipeline. Everything hangs off a private registry so tests can build
// isolated instances without collisions.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's instruments.
type Metrics struct {
	registry *prometheus.Registry

	RegistrationsTotal   *prometheus.CounterVec
	RegistrationDuration prometheus.Histogram
	ChunksStored         prometheus.Counter
	ChunksSkipped        prometheus.Counter

	ComparisonsTotal   *prometheus.CounterVec
	ComparisonDuration prometheus.Histogram
	MatchesFound       prometheus.Counter
}

// New builds the instrument set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echotrace_registrations_total",
			Help: "Reference registrations by outcome.",
		}, []string{"status"}),
		RegistrationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echotrace_registration_duration_seconds",
			Help:    "End to end reference registration latency.",
			Buckets: prometheus.DefBuckets,
		}),
		ChunksStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "echotrace_reference_chunks_stored_total",
			Help: "Chunks written to the vector index.",
		}),
		ChunksSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "echotrace_chunks_skipped_total",
			Help: "Chunks dropped by embedding or query failures.",
		}),
		ComparisonsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echotrace_comparisons_total",
			Help: "Comparison requests by outcome.",
		}, []string{"status"}),
		ComparisonDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echotrace_comparison_duration_seconds",
			Help:    "End to end comparison latency.",
			Buckets: prometheus.DefBuckets,
		}),
		MatchesFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "echotrace_matches_found_total",
			Help: "Merged match intervals returned to callers.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
