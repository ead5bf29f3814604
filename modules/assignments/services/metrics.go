package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assignmentMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignments",
		Name:      "mutations_total",
		Help:      "Total number of assignment mutations broken down by operation and result.",
	}, []string{"operation", "result"})

	assignmentRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignments",
		Name:      "records_total",
		Help:      "Total number of assignment records created, adjusted or deleted.",
	}, []string{"action"})

	assignmentCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignments",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total number of current-owner cache lookups broken down by hit/miss.",
	}, []string{"result"})

	assignmentWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "assignments",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Total number of assignment write conflicts broken down by kind.",
	}, []string{"kind"})

	assignmentBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "assignments",
		Name:      "batch_size",
		Help:      "Number of entities per batch mutation.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
	}, []string{"operation"})
)

func recordMutation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	assignmentMutations.WithLabelValues(operation, result).Inc()
}

func recordRecords(action string, n int) {
	if n <= 0 {
		return
	}
	assignmentRecords.WithLabelValues(action).Add(float64(n))
}

func recordCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	assignmentCacheRequests.WithLabelValues(result).Inc()
}

func recordWriteConflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	assignmentWriteConflicts.WithLabelValues(kind).Inc()
}

func observeBatchSize(operation string, n int) {
	assignmentBatchSize.WithLabelValues(operation).Observe(float64(n))
}
