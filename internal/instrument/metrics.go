package instrument

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// OperationDuration times core operations by span.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formflow_operation_duration_seconds",
			Help:    "Duration of core operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"component", "action", "status"},
	)

	FormsDefined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formflow_forms_defined_total",
			Help: "Total number of forms defined",
		},
	)

	// RecordWrites counts successful record writes by operation (insert, update).
	RecordWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_record_writes_total",
			Help: "Total number of record writes",
		},
		[]string{"op"},
	)

	// ApprovalOutcomes counts approve calls by resulting status or failure code.
	ApprovalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_approval_outcomes_total",
			Help: "Total number of approval attempts by outcome",
		},
		[]string{"outcome"},
	)

	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formflow_storage_retries_total",
			Help: "Total number of retried transient storage errors",
		},
		[]string{"op"},
	)
)
