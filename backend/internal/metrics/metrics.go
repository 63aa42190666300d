// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mimic_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 5, 30},
		},
		[]string{"method", "path"},
	)

	// Ingestion metrics
	BatchesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mimic_batches_ingested_total",
			Help: "Total ingestion calls that wrote at least one message",
		},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mimic_messages_stored_total",
			Help: "Total StoredMessage nodes created",
		},
	)

	WriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_graph_write_failures_total",
			Help: "Graph writes that failed and were skipped",
		},
		[]string{"kind"},
	)

	TopicExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mimic_topic_extractions_total",
			Help: "Topic steps by the method that produced the topics",
		},
		[]string{"method"}, // llm, frequency, none
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mimic_ingest_duration_seconds",
			Help:    "Wall time of one ingestion call",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
	)
)
