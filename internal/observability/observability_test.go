package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogger_ContextFields tests that context values land in the entry
func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("processor").WithOutput(&buf).WithLevel(LevelDebug)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithDatasetID(ctx, "transactions")
	logger.Error(ctx, "execution failed", errors.New("boom"), map[string]interface{}{"rows": 0})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, "corr-1", entry.CorrelationID)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, "transactions", entry.DatasetID)
	assert.Equal(t, "processor", entry.Component)
	assert.Equal(t, "boom", entry.Fields["error"])
}

// TestLogger_LevelFiltering tests that entries below the minimum level are dropped
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("test").WithOutput(&buf).WithLevel(ParseLevel("WARN"))

	logger.Info(context.Background(), "hidden", nil)
	logger.Warn(context.Background(), "shown", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

// TestMetrics_Record tests the Prometheus collectors
func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordQuery(120*time.Millisecond, "success")
	m.RecordQuery(10*time.Millisecond, "UNSAFE_SQL")
	m.RecordSafetyRejection("forbidden_keyword")
	m.RecordLLM("translate", time.Second, errors.New("timeout"))
	m.RecordExecution("postgres", time.Millisecond, 42, nil)
	m.RecordChart("bar", "rules")
	m.RecordCacheLookup("chart_recommendation", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("UNSAFE_SQL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.safetyRejections.WithLabelValues("forbidden_keyword")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("translate", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("postgres", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.charts.WithLabelValues("bar", "rules")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("chart_recommendation", "hit")))
}

// TestMetrics_NilSafe tests that a nil collector is a no-op
func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordQuery(time.Second, "success")
		m.RecordHTTP("GET", "/health", 200, time.Millisecond, 10)
	})
}

// TestHealthChecker tests status aggregation
func TestHealthChecker(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		redisErr error
		want     HealthStatus
		code     int
	}{
		{"all healthy", nil, nil, HealthStatusHealthy, http.StatusOK},
		{"redis down degrades", nil, errors.New("refused"), HealthStatusDegraded, http.StatusOK},
		{"database down is unhealthy", errors.New("refused"), nil, HealthStatusUnhealthy, http.StatusServiceUnavailable},
	}

	gin.SetMode(gin.TestMode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("transactions-ai", "test")
			checker.Register("database", DatabaseHealthCheck(func(context.Context) error { return tt.dbErr }))
			checker.Register("redis", RedisHealthCheck(func(context.Context) error { return tt.redisErr }))

			assert.Equal(t, tt.want, checker.GetOverallStatus(context.Background()))

			router := gin.New()
			router.GET("/health", HealthHandler(checker))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

// TestRequestLoggingMiddleware tests correlation ID propagation
func TestRequestLoggingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := NewLogger("http").WithOutput(&buf)

	router := gin.New()
	router.Use(RecoveryMiddleware(logger), RequestLoggingMiddleware(logger, NewMetrics(prometheus.NewRegistry())))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetCorrelationID(c.Request.Context()))
	})
	router.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "HTTP request completed")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
