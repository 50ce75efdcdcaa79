package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Ingestion metrics
	IngestEvents      *prometheus.CounterVec
	AtomsProcessed    prometheus.Counter
	FragmentsAbsorbed prometheus.Counter
	IngestQueueDepth  prometheus.Gauge

	// Oracle metrics
	OracleRequests *prometheus.CounterVec
	OracleLatency  prometheus.Histogram

	// Dispatcher metrics
	ScheduleFirings *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// Inbound typing events by result: processed, snapshot_skipped, dropped
		IngestEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "typira_ingest_events_total",
			Help: "Total number of typing events by handling result",
		}, []string{"result"}),

		AtomsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "typira_atoms_processed_total",
			Help: "Total number of sentence atoms processed by the ingestion engine",
		}),

		FragmentsAbsorbed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "typira_fragments_absorbed_total",
			Help: "Total number of expansion absorptions (merge instead of insert)",
		}),

		IngestQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "typira_ingest_queue_depth",
			Help: "Events currently queued across all per-key ingestion workers",
		}),

		// Oracle calls by kind (canonicalize, generate) and outcome (ok, fallback, error)
		OracleRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "typira_oracle_requests_total",
			Help: "Total number of Oracle calls by kind and outcome",
		}, []string{"kind", "outcome"}),

		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "typira_oracle_request_duration_seconds",
			Help:    "Oracle request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, // generation can take a while
		}),

		// Schedule firings by outcome: fired, generation_failed, claim_error,
		// misconfigured, panic
		ScheduleFirings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "typira_schedule_firings_total",
			Help: "Total number of schedule firing attempts by outcome",
		}, []string{"outcome"}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
