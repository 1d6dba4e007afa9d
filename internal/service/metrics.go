package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_operation_duration_seconds",
			Help:    "Duration of search engine calls by operation and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	degradedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_degraded_responses_total",
			Help: "Total number of empty results served because the search engine failed",
		},
		[]string{"operation"},
	)

	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_requests_total",
			Help: "Query cache lookups by operation and result (hit, miss, error)",
		},
		[]string{"operation", "result"},
	)

	syncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_sync_operations_total",
			Help: "Index synchronization operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
