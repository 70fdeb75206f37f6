package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the query coordinator.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Search metrics
	SearchLatency       prometheus.Histogram
	SearchResultSize    prometheus.Histogram
	SearchQueriesTotal  prometheus.Counter
	PartitionsScanned   prometheus.Histogram
	NprobeUsed          prometheus.Histogram
	FilterSelectivity   prometheus.Histogram
	ForcedBatchedTotal  prometheus.Counter

	// Worker pool metrics
	WorkerQueueDepth  prometheus.Gauge
	WorkerPoolSize    prometheus.Gauge
	WorkerJobsTotal   prometheus.Counter

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	// System metrics
	GoroutinesCount prometheus.Gauge
	MemoryUsage     prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics returns the process-wide Metrics. The first call creates all
// Prometheus metrics and registers them with the default registry; later
// calls return that same instance, since the default registry rejects a
// second registration of the same metric names.
func NewMetrics() *Metrics {
	defaultMetricsOnce.Do(func() { defaultMetrics = newMetrics() })
	return defaultMetrics
}

func newMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ivfcoord_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ivfcoord_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ivfcoord_request_errors_total",
				Help: "Total number of request errors by method and error kind",
			},
			[]string{"method", "error_kind"},
		),

		SearchLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ivfcoord_search_latency_seconds",
				Help:    "Search call latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchResultSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ivfcoord_search_result_size",
				Help:    "Number of non-sentinel results returned per Search call, summed over its query rows",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
		),
		SearchQueriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivfcoord_search_queries_total",
				Help: "Total number of query rows processed across all Search calls",
			},
		),
		PartitionsScanned: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ivfcoord_partitions_scanned",
				Help:    "Number of distinct partitions visited per Search call",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
		),
		NprobeUsed: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ivfcoord_nprobe_used",
				Help:    "nprobe value used per Search call (IVF mode only)",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		FilterSelectivity: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ivfcoord_filter_selectivity",
				Help:    "Fraction of scanned candidates surviving an attribute filter",
				Buckets: []float64{.01, .05, .1, .25, .5, .75, .9, .95, .99, 1.0},
			},
		),
		ForcedBatchedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivfcoord_forced_batched_total",
				Help: "Total number of Search calls where flat (null-parent) mode forced BatchedScan",
			},
		),

		WorkerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivfcoord_worker_queue_depth",
				Help: "Current number of queued scan jobs awaiting a worker",
			},
		),
		WorkerPoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivfcoord_worker_pool_size",
				Help: "Configured number of worker goroutines (0 = inline mode)",
			},
		),
		WorkerJobsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivfcoord_worker_jobs_total",
				Help: "Total number of scan jobs executed by the worker pool",
			},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivfcoord_cache_hits_total",
				Help: "Total number of query result cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ivfcoord_cache_misses_total",
				Help: "Total number of query result cache misses",
			},
		),
		CacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivfcoord_cache_size",
				Help: "Current number of entries in the query result cache",
			},
		),

		GoroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivfcoord_goroutines",
				Help: "Current number of goroutines",
			},
		),
		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ivfcoord_memory_bytes",
				Help: "Memory usage in bytes",
			},
		),
	}

	return m
}

// RecordRequest records an HTTP request with duration and status.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records a request error by kind (see ivf.ErrorKind).
func (m *Metrics) RecordError(method, errorKind string) {
	m.RequestErrors.WithLabelValues(method, errorKind).Inc()
}

// RecordSearch records a single Search call's headline metrics.
func (m *Metrics) RecordSearch(duration time.Duration, numQueries int, resultSize int, partitionsScanned int, nprobe int, forcedBatched bool) {
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
	m.SearchQueriesTotal.Add(float64(numQueries))
	m.PartitionsScanned.Observe(float64(partitionsScanned))
	if nprobe > 0 {
		m.NprobeUsed.Observe(float64(nprobe))
	}
	if forcedBatched {
		m.ForcedBatchedTotal.Inc()
	}
}

// RecordFilterSelectivity records the fraction of scanned candidates that
// survived an attribute predicate.
func (m *Metrics) RecordFilterSelectivity(surviving, total int) {
	if total == 0 {
		return
	}
	m.FilterSelectivity.Observe(float64(surviving) / float64(total))
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// UpdateCacheSize updates the cache size gauge.
func (m *Metrics) UpdateCacheSize(size int) {
	m.CacheSize.Set(float64(size))
}

// UpdateWorkerPoolSize updates the configured worker pool size gauge.
func (m *Metrics) UpdateWorkerPoolSize(n int) {
	m.WorkerPoolSize.Set(float64(n))
}

// UpdateWorkerQueueDepth updates the current queue depth gauge.
func (m *Metrics) UpdateWorkerQueueDepth(depth int) {
	m.WorkerQueueDepth.Set(float64(depth))
}

// RecordWorkerJob records one completed scan job.
func (m *Metrics) RecordWorkerJob() {
	m.WorkerJobsTotal.Inc()
}

// UpdateGoroutineCount updates goroutine count.
func (m *Metrics) UpdateGoroutineCount(count int) {
	m.GoroutinesCount.Set(float64(count))
}

// UpdateMemoryUsage updates memory usage.
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}
