// Package metrics relabels the teacher's sync.Once-guarded Prometheus
// registration (metrics.go) from proxy/cache/write-batch concerns onto
// connection/request/signal concerns: connect attempts, request
// round-trips by kind, rows streamed, and pending signal queue depth.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectAttemptsTotal counts connect_async attempts by outcome.
	ConnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgwire_connect_attempts_total",
			Help: "Total number of connect_async attempts",
		},
		[]string{"outcome"},
	)

	// ConnectLatency tracks time from connect_async to connected/failure.
	ConnectLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgwire_connect_latency_seconds",
			Help:    "Time to reach the connected or failure state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// RequestTotal counts requests by kind ("simple", "prepare",
	// "describe", "execute", "unprepare", "pipeline") and outcome.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgwire_request_total",
			Help: "Total number of requests submitted to the connection",
		},
		[]string{"kind", "outcome"},
	)

	// RequestLatency tracks time from request submission to ReadyForQuery.
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgwire_request_latency_seconds",
			Help:    "Time from request submission to ReadyForQuery",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// RowsStreamedTotal counts DataRow messages delivered to callers.
	RowsStreamedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgwire_rows_streamed_total",
			Help: "Total number of rows streamed out of for_each/row",
		},
		[]string{"kind"},
	)

	// PipelineBatchSize tracks how many bound executes share one Sync.
	PipelineBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgwire_pipeline_batch_size",
			Help:    "Number of bound executes flushed behind a single Sync",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
	)

	// SignalQueueDepth is the current length of the notice or
	// notification queue, sampled on push.
	SignalQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgwire_signal_queue_depth",
			Help: "Current depth of the notice or notification queue",
		},
		[]string{"queue"},
	)

	// PlanCacheLookupsTotal counts pgcache hits and misses.
	PlanCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgwire_plan_cache_lookups_total",
			Help: "Total plan cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	once sync.Once
)

// Init registers every metric with the default Prometheus registry.
// It is safe to call more than once; only the first call registers.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(ConnectAttemptsTotal)
		prometheus.MustRegister(ConnectLatency)
		prometheus.MustRegister(RequestTotal)
		prometheus.MustRegister(RequestLatency)
		prometheus.MustRegister(RowsStreamedTotal)
		prometheus.MustRegister(PipelineBatchSize)
		prometheus.MustRegister(SignalQueueDepth)
		prometheus.MustRegister(PlanCacheLookupsTotal)
	})
}

// Handler returns the Prometheus HTTP handler for a metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
