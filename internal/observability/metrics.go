package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	MetricQueryTotal      = "txn_ai_queries_total"
	MetricQueryDuration   = "txn_ai_query_duration_seconds"
	MetricSafetyRejection = "txn_ai_safety_rejections_total"
	MetricLLMRequests     = "txn_ai_llm_requests_total"
	MetricLLMDuration     = "txn_ai_llm_request_duration_seconds"
	MetricExecutions      = "txn_ai_sql_executions_total"
	MetricExecDuration    = "txn_ai_sql_execution_duration_seconds"
	MetricResultRows      = "txn_ai_result_rows"
	MetricCharts          = "txn_ai_charts_total"
	MetricCacheLookups    = "txn_ai_cache_lookups_total"
	MetricHTTPRequests    = "txn_ai_http_requests_total"
	MetricHTTPDuration    = "txn_ai_http_request_duration_seconds"
	MetricHTTPSize        = "txn_ai_http_response_size_bytes"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing, so components can be built without instrumentation.
type Metrics struct {
	queries          *prometheus.CounterVec
	queryDuration    prometheus.Histogram
	safetyRejections *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmDuration      *prometheus.HistogramVec
	executions       *prometheus.CounterVec
	execDuration     *prometheus.HistogramVec
	resultRows       prometheus.Histogram
	charts           *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpSize         prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricQueryTotal,
			Help: "Natural language queries processed, by outcome.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "End to end query pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
		safetyRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSafetyRejection,
			Help: "Generated SQL rejected by the safety validator, by rule.",
		}, []string{"rule"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricLLMRequests,
			Help: "Completion service calls, by operation and status.",
		}, []string{"operation", "status"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricLLMDuration,
			Help:    "Completion service latency.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 15, 30},
		}, []string{"operation"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricExecutions,
			Help: "SQL statements executed against a dataset, by backend and status.",
		}, []string{"backend", "status"}),
		execDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricExecDuration,
			Help:    "SQL execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend"}),
		resultRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricResultRows,
			Help:    "Rows returned per executed query.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 10000},
		}),
		charts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCharts,
			Help: "Chart recommendations, by chart type and source.",
		}, []string{"chart_type", "source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheLookups,
			Help: "Cache lookups, by cache and result.",
		}, []string{"cache", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequests,
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPDuration,
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricHTTPSize,
			Help:    "HTTP response sizes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.queries, m.queryDuration, m.safetyRejections,
			m.llmRequests, m.llmDuration,
			m.executions, m.execDuration, m.resultRows,
			m.charts, m.cacheLookups,
			m.httpRequests, m.httpDuration, m.httpSize,
		)
	}
	return m
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns a Metrics registered with the default Prometheus
// registry, created on first use.
func DefaultMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RecordQuery records one pipeline run. outcome is "success" or an error code.
func (m *Metrics) RecordQuery(duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(duration.Seconds())
}

// RecordSafetyRejection counts a validator rejection
func (m *Metrics) RecordSafetyRejection(rule string) {
	if m == nil {
		return
	}
	m.safetyRejections.WithLabelValues(rule).Inc()
}

// RecordLLM records a completion call
func (m *Metrics) RecordLLM(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, statusOf(err)).Inc()
	m.llmDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordExecution records a SQL execution
func (m *Metrics) RecordExecution(backend string, duration time.Duration, rows int, err error) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(backend, statusOf(err)).Inc()
	m.execDuration.WithLabelValues(backend).Observe(duration.Seconds())
	if err == nil {
		m.resultRows.Observe(float64(rows))
	}
}

// RecordChart records which chart family was chosen and by what path
func (m *Metrics) RecordChart(chartType, source string) {
	if m == nil {
		return
	}
	m.charts.WithLabelValues(chartType, source).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordHTTP records metrics for HTTP requests
func (m *Metrics) RecordHTTP(method, path string, statusCode int, duration time.Duration, responseSize int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if responseSize > 0 {
		m.httpSize.Observe(float64(responseSize))
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
