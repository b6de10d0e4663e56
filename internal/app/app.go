// Package app wires the pipeline from configuration. The HTTP service and
// the command line client share it.
package app

import (
	"context"
	"database/sql"
	"io"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"

	"github.com/seanankenbruck/transactions-ai/internal/auth"
	"github.com/seanankenbruck/transactions-ai/internal/cache"
	"github.com/seanankenbruck/transactions-ai/internal/charts"
	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/history"
	"github.com/seanankenbruck/transactions-ai/internal/insights"
	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/processor"
	"github.com/seanankenbruck/transactions-ai/internal/profiler"
	"github.com/seanankenbruck/transactions-ai/internal/safety"
	"github.com/seanankenbruck/transactions-ai/internal/session"
	"github.com/seanankenbruck/transactions-ai/internal/translator"
)

const memoryLimit = 1 << 30

// App is a fully wired pipeline
type App struct {
	Config      *config.Config
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Health      *observability.HealthChecker
	Processor   *processor.QueryProcessor
	Auth        *auth.AuthManager
	Connections []processor.DatasetConnection
	LLMEnabled  bool

	closers []func() error
}

// Option adjusts the build
type Option func(*App)

// WithLogOutput sends every component's logs to w
func WithLogOutput(w io.Writer) Option {
	return func(a *App) {
		a.Logger.WithOutput(w)
	}
}

// WithLogLevel overrides the configured log level
func WithLogLevel(level observability.LogLevel) Option {
	return func(a *App) {
		a.Logger.WithLevel(level)
	}
}

// Build creates every component cfg enables. Missing optional services
// (LLM, Redis, history) degrade the pipeline instead of failing the build.
func Build(ctx context.Context, cfg *config.Config, service, version string, opts ...Option) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  observability.NewLogger(service).WithLevel(observability.ParseLevel(cfg.Server.LogLevel)),
		Metrics: observability.DefaultMetrics(),
		Health:  observability.NewHealthChecker(service, version),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.Health.Register("memory", observability.MemoryHealthCheck(memoryLimit))

	llmClient, err := a.buildLLM(ctx)
	if err != nil {
		return nil, err
	}

	// Cache for translated SQL and chart recommendations
	var store cache.Store = cache.NewMemoryStore()
	var sessions *session.Manager
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		store = cache.NewRedisStore(rdb, "txnai:")
		sessions = session.NewManager(rdb, cfg.Auth.SessionExpiry)
		a.Health.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}

	// Query history and few-shot examples
	var historyStore *history.Store
	var examples processor.ExampleCatalog
	if cfg.Query.HistoryEnabled {
		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		historyStore = history.NewStore(db).WithLogger(a.Logger.Named("history"))
		if llmClient != nil {
			historyStore.WithEmbedder(llmClient)
			examples = historyStore
		}
		a.Health.Register("database", observability.DatabaseHealthCheck(historyStore.Ping))
	}

	a.Connections = []processor.DatasetConnection{processor.DefaultConnection(cfg)}
	if cfg.Dataset.ConnectionsFile != "" {
		extra, err := processor.LoadConnections(cfg.Dataset.ConnectionsFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Connections = append(a.Connections, extra...)
	}
	registry := processor.NewRegistry(a.Connections, processor.NewAgentFactory(llmClient, translator.Config{
		Timeout:     cfg.Query.TranslateTimeout,
		Temperature: cfg.LLM.Temperature,
		RowLimit:    cfg.Query.DefaultLimit,
		MaxExamples: cfg.Query.FewShotExamples,
		Model:       cfg.LLM.Model,
	}, examples, a.Metrics))
	a.closers = append(a.closers, func() error {
		registry.Close()
		return nil
	})

	caps := profiler.Capabilities{Kurtosis: cfg.Visualization.EnableKurtosis}
	components := processor.Components{
		Registry:  registry,
		Validator: safety.NewValidator(cfg.Query.MaxSQLLength),
		Profiler:  profiler.New(caps),
		Selector: charts.NewSelector(llmClient, store, charts.SelectorConfig{
			MaxRows:    cfg.Visualization.MaxRows,
			MaxColumns: cfg.Visualization.MaxColumns,
			UseLLM:     cfg.Visualization.UseLLM,
			Model:      cfg.Visualization.RecommendationModel,
			Timeout:    cfg.Visualization.SelectionTimeout,
			CacheTTL:   cfg.Visualization.RecommendationTTL,
		}).WithLogger(a.Logger.Named("charts")).WithMetrics(a.Metrics),
		Renderer: charts.NewRenderer(caps),
		Narrator: insights.New(llmClient, insights.Config{
			MinRows: cfg.Visualization.InsightsMinRowsForAI,
			Timeout: cfg.Visualization.InsightsTimeout,
			Model:   cfg.Visualization.RecommendationModel,
		}).WithLogger(a.Logger.Named("insights")),
		Cache: store,
	}
	if historyStore != nil {
		components.History = historyStore
	}

	a.Processor = processor.NewQueryProcessor(components, processor.ProcessorConfig{
		RowLimit:     cfg.Query.DefaultLimit,
		QueryTimeout: cfg.Query.Timeout,
		CacheTTL:     cfg.Query.CacheTTL,
		Visualize:    cfg.Visualization.Enabled,
	}).WithLogger(a.Logger.Named("query-processor")).WithMetrics(a.Metrics)
	a.Processor.SetHealthChecker(a.Health)

	a.Auth = auth.NewAuthManager(auth.ConfigFrom(cfg.Auth), sessions).WithLogger(a.Logger.Named("auth"))
	return a, nil
}

// buildLLM returns nil when no provider is configured; translation then
// reports a configuration error while charts and insights use rules
func (a *App) buildLLM(ctx context.Context) (llm.Client, error) {
	cfg := a.Config.LLM
	if !cfg.Enabled() {
		a.Logger.Warn(ctx, "LLM provider not configured, SQL generation is disabled", map[string]interface{}{
			"provider": cfg.Provider,
		})
		return nil, nil
	}

	base, err := llm.New(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries > 0 {
		retry := llm.DefaultRetryConfig
		retry.MaxRetries = cfg.MaxRetries
		base = llm.NewRetryClient(base, retry)
	}
	breaker := llm.NewCircuitBreakerClient(base, "llm-"+cfg.Provider, llm.DefaultCircuitBreakerConfig)
	a.Health.Register("llm", observability.LLMHealthCheck(func(ctx context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return gobreaker.ErrOpenState
		}
		return nil
	}))
	a.LLMEnabled = true
	return llm.NewInstrumentedClient(breaker, a.Metrics, a.Logger.Named("llm")), nil
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
