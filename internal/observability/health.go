package observability

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheckFunc is a function that performs a health check
type HealthCheckFunc func(context.Context) *HealthCheck

// HealthChecker performs health checks on dependencies
type HealthChecker struct {
	service string
	version string
	checks  map[string]HealthCheckFunc
	cache   map[string]*HealthCheck
	mu      sync.Mutex
	ttl     time.Duration
}

// NewHealthChecker creates a new health checker. Results are cached for 5s.
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		service: service,
		version: version,
		checks:  make(map[string]HealthCheckFunc),
		cache:   make(map[string]*HealthCheck),
		ttl:     5 * time.Second,
	}
}

// Register registers a health check
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check performs all health checks
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	results := make(map[string]*HealthCheck, len(hc.checks))
	now := time.Now()

	for name, checkFunc := range hc.checks {
		if cached, ok := hc.cache[name]; ok && now.Sub(cached.LastChecked) < hc.ttl {
			results[name] = cached
			continue
		}

		result := checkFunc(ctx)
		result.LastChecked = time.Now()
		hc.cache[name] = result
		results[name] = result
	}

	return results
}

// overall folds individual results into one status
func overall(checks map[string]*HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// GetOverallStatus determines the overall health status
func (hc *HealthChecker) GetOverallStatus(ctx context.Context) HealthStatus {
	return overall(hc.Check(ctx))
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
	Metadata  map[string]interface{}  `json:"metadata,omitempty"`
}

// GetHealthResponse returns a complete health response
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)

	return &HealthResponse{
		Status:    overall(checks),
		Timestamp: time.Now(),
		Checks:    checks,
		Metadata: map[string]interface{}{
			"version": hc.version,
			"service": hc.service,
		},
	}
}

// pingCheck runs ping under timeout and reports failed with the given status
func pingCheck(name string, timeout time.Duration, failed HealthStatus, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := ping(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:     name,
				Status:   failed,
				Message:  fmt.Sprintf("%s check failed: %v", name, err),
				Duration: duration,
			}
		}

		return &HealthCheck{
			Name:     name,
			Status:   HealthStatusHealthy,
			Message:  fmt.Sprintf("%s reachable", name),
			Duration: duration,
			Metadata: map[string]interface{}{
				"response_time_ms": duration.Milliseconds(),
			},
		}
	}
}

// DatabaseHealthCheck creates a health check for the dataset connection
func DatabaseHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("database", 2*time.Second, HealthStatusUnhealthy, ping)
}

// RedisHealthCheck creates a health check for Redis connectivity.
// The cache is optional, so a failure only degrades the service.
func RedisHealthCheck(ping func(context.Context) error) HealthCheckFunc {
	return pingCheck("redis", 2*time.Second, HealthStatusDegraded, ping)
}

// LLMHealthCheck creates a health check for the completion service.
// Without it SQL generation fails but charts and insights still fall back to rules.
func LLMHealthCheck(check func(context.Context) error) HealthCheckFunc {
	return pingCheck("llm_service", 5*time.Second, HealthStatusDegraded, check)
}

// MemoryHealthCheck reports heap usage against limitBytes
func MemoryHealthCheck(limitBytes uint64) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		usagePercent := float64(stats.HeapAlloc) / float64(limitBytes) * 100

		status := HealthStatusHealthy
		message := "Memory usage normal"
		if usagePercent > 90 {
			status = HealthStatusUnhealthy
			message = "Memory usage critical"
		} else if usagePercent > 75 {
			status = HealthStatusDegraded
			message = "Memory usage high"
		}

		return &HealthCheck{
			Name:    "memory",
			Status:  status,
			Message: message,
			Metadata: map[string]interface{}{
				"heap_alloc_bytes": stats.HeapAlloc,
				"limit_bytes":      limitBytes,
				"usage_percent":    usagePercent,
				"goroutines":       runtime.NumGoroutine(),
			},
		}
	}
}
