package processor

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/seanankenbruck/transactions-ai/internal/cache"
	"github.com/seanankenbruck/transactions-ai/internal/charts"
	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/history"
	"github.com/seanankenbruck/transactions-ai/internal/insights"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/profiler"
	"github.com/seanankenbruck/transactions-ai/internal/safety"
	"golang.org/x/sync/errgroup"
)

// QueryRequest represents an incoming natural language question
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	DatasetID string `json:"dataset_id,omitempty"`
	// Visualize defaults to true
	Visualize *bool `json:"visualize,omitempty"`
}

// ErrorBody is the error member of a response
type ErrorBody struct {
	Code       errors.ErrorCode `json:"code"`
	Message    string           `json:"message"`
	Details    string           `json:"details,omitempty"`
	Suggestion string           `json:"suggestion,omitempty"`
}

// QueryResponse is returned for successful and failed runs alike. Data is
// always an array; SQL is set as soon as translation produced it.
type QueryResponse struct {
	Data             *dataset.ResultSet `json:"data"`
	SQL              string             `json:"sql"`
	Error            *ErrorBody         `json:"error"`
	RowCount         int                `json:"row_count"`
	Visualization    *charts.Chart      `json:"visualization"`
	ProcessingTimeMS int64              `json:"processing_time_ms"`
	Cached           bool               `json:"cached"`
}

// HistoryRecorder is the audit log of pipeline runs
type HistoryRecorder interface {
	Record(ctx context.Context, e history.Entry) error
	Recent(ctx context.Context, datasetID string, limit int) ([]history.Entry, error)
}

// ChartRenderer draws a result set as the selected chart family
type ChartRenderer interface {
	Render(rs *dataset.ResultSet, family charts.Family, opts charts.Options, profile *profiler.Profile) (*charts.Chart, error)
}

// Components are the shared pipeline stages. Agents come from the registry.
type Components struct {
	Registry  *Registry
	Validator *safety.Validator
	Profiler  *profiler.Profiler
	Selector  *charts.Selector
	Renderer  ChartRenderer
	Narrator  *insights.Narrator
	Cache     cache.Store
	History   HistoryRecorder
}

// ProcessorConfig holds configuration for the query processor
type ProcessorConfig struct {
	RowLimit     int
	QueryTimeout time.Duration
	CacheTTL     time.Duration
	Visualize    bool
}

// QueryProcessor is the main service struct
type QueryProcessor struct {
	Components
	config        ProcessorConfig
	logger        *observability.Logger
	metrics       *observability.Metrics
	healthChecker *observability.HealthChecker
}

// NewQueryProcessor creates a new query processor instance
func NewQueryProcessor(c Components, config ProcessorConfig) *QueryProcessor {
	if config.RowLimit <= 0 {
		config.RowLimit = 1000
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = 30 * time.Second
	}
	if c.Validator == nil {
		c.Validator = safety.NewValidator(0)
	}
	if c.Profiler == nil {
		c.Profiler = profiler.New(profiler.Capabilities{})
	}
	return &QueryProcessor{
		Components: c,
		config:     config,
		logger:     observability.NewLogger("query-processor"),
	}
}

// WithLogger replaces the component logger
func (qp *QueryProcessor) WithLogger(logger *observability.Logger) *QueryProcessor {
	qp.logger = logger
	return qp
}

// WithMetrics enables pipeline metrics
func (qp *QueryProcessor) WithMetrics(metrics *observability.Metrics) *QueryProcessor {
	qp.metrics = metrics
	return qp
}

// SetHealthChecker sets the health checker served on /health
func (qp *QueryProcessor) SetHealthChecker(healthChecker *observability.HealthChecker) {
	qp.healthChecker = healthChecker
}

// ProcessQuery runs text through translate, validate, execute and
// visualize. The response is never nil; err is set for terminal failures
// and mirrors resp.Error.
func (qp *QueryProcessor) ProcessQuery(ctx context.Context, req *QueryRequest) (resp *QueryResponse, err error) {
	start := time.Now()
	datasetID := req.DatasetID
	if datasetID == "" {
		datasetID = qp.Registry.DefaultID()
	}
	ctx = observability.WithDatasetID(ctx, datasetID)

	resp = &QueryResponse{Data: dataset.New(nil, nil)}
	qp.logger.Info(ctx, "Processing query", map[string]interface{}{
		"query": req.Query,
	})

	defer func() {
		duration := time.Since(start)
		resp.ProcessingTimeMS = duration.Milliseconds()
		outcome := "success"
		if err != nil {
			outcome = "internal_error"
			if code := errors.CodeOf(err); code != "" {
				outcome = strings.ToLower(string(code))
			}
			resp.Error = errorBody(err)
			resp.Data = dataset.New(nil, nil)
			resp.RowCount = 0
			resp.Visualization = nil
			qp.logger.Error(ctx, "Query processing failed", err, map[string]interface{}{
				"query":       req.Query,
				"sql":         resp.SQL,
				"duration_ms": duration.Milliseconds(),
			})
		} else {
			qp.logger.Info(ctx, "Query processed successfully", map[string]interface{}{
				"rows":        resp.RowCount,
				"duration_ms": duration.Milliseconds(),
				"cached":      resp.Cached,
			})
		}
		qp.metrics.RecordQuery(duration, outcome)
		qp.recordHistory(ctx, datasetID, req.Query, resp, err, duration)
	}()

	if strings.TrimSpace(req.Query) == "" {
		return resp, errors.NewEmptyInputError("query")
	}

	agent, err := qp.Registry.Agent(ctx, datasetID)
	if err != nil {
		return resp, err
	}

	runCtx, cancel := context.WithTimeout(ctx, qp.config.QueryTimeout)
	defer cancel()

	sql, cached, err := qp.translate(runCtx, agent, req.Query)
	resp.SQL = sql
	resp.Cached = cached
	if err != nil {
		return resp, err
	}

	rs, sql, err := qp.execute(runCtx, agent, sql)
	resp.SQL = sql
	if err != nil {
		return resp, err
	}
	if !cached {
		qp.cacheSQL(runCtx, agent, req.Query, sql)
	}

	resp.Data = rs
	resp.RowCount = rs.Len()
	if qp.config.Visualize && (req.Visualize == nil || *req.Visualize) {
		resp.Visualization = qp.visualize(runCtx, req.Query, sql, rs)
	}
	return resp, nil
}

// execute validates, bounds and runs sql. The returned statement is the one
// that was run, or the rejected one.
func (qp *QueryProcessor) execute(ctx context.Context, agent *Agent, sql string) (*dataset.ResultSet, string, error) {
	verdict := qp.Validator.Validate(sql)
	if !verdict.Safe {
		qp.metrics.RecordSafetyRejection(string(verdict.Rule))
		return nil, sql, errors.NewUnsafeSQLError(string(verdict.Rule), verdict.Reason, sql)
	}
	sql = safety.EnsureLimit(sql, qp.config.RowLimit)

	rs, err := agent.Executor.Execute(ctx, sql)
	if err != nil {
		return nil, sql, err
	}
	return rs, sql, nil
}

func (qp *QueryProcessor) translate(ctx context.Context, agent *Agent, text string) (string, bool, error) {
	key := sqlCacheKey(agent, text)
	if qp.Cache != nil {
		var sql string
		found, err := qp.Cache.Get(ctx, key, &sql)
		if err != nil {
			qp.logger.Warn(ctx, "SQL cache read failed", map[string]interface{}{"error": err.Error()})
		}
		qp.metrics.RecordCacheLookup("sql", found)
		if found && sql != "" {
			return sql, true, nil
		}
	}

	sql, err := agent.Translator.Translate(ctx, text)
	return sql, false, err
}

func (qp *QueryProcessor) cacheSQL(ctx context.Context, agent *Agent, text, sql string) {
	if qp.Cache == nil || qp.config.CacheTTL <= 0 {
		return
	}
	if err := qp.Cache.Set(ctx, sqlCacheKey(agent, text), sql, qp.config.CacheTTL); err != nil {
		qp.logger.Warn(ctx, "SQL cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func sqlCacheKey(agent *Agent, text string) string {
	return cache.Key("sql", agent.Connection.ID, agent.Connection.Fingerprint(), strings.ToLower(strings.TrimSpace(text)))
}

// visualize never fails the request; any problem means no chart
func (qp *QueryProcessor) visualize(ctx context.Context, text, sql string, rs *dataset.ResultSet) *charts.Chart {
	if qp.Selector == nil || qp.Renderer == nil || !qp.Selector.ShouldVisualize(text, sql, rs) {
		return nil
	}

	profile := qp.Profiler.Analyze(rs)
	rec := qp.Selector.Select(ctx, text, sql, rs, profile)

	var (
		chart     *charts.Chart
		renderErr error
		narrative string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		chart, renderErr = qp.Renderer.Render(rs, rec.Primary, charts.Options{Extra: rec.SuggestedConfig}, profile)
		return nil
	})
	g.Go(func() error {
		if qp.Narrator != nil {
			narrative = qp.Narrator.Narrate(gctx, rs, rec.Primary, text, profile)
		} else {
			narrative = insights.Baseline(rs, rec.Primary, profile)
		}
		return nil
	})
	_ = g.Wait()

	if renderErr != nil {
		qp.logger.Warn(ctx, "Chart generation failed", map[string]interface{}{
			"chart_type": rec.Primary,
			"error":      renderErr.Error(),
		})
		// no figure, but the narrative still describes the rows
		return &charts.Chart{Enabled: false, Insights: narrative, Recommendation: &rec}
	}
	if chart == nil {
		return nil
	}

	chart.Insights = narrative
	chart.Recommendation = &rec
	return chart
}

func (qp *QueryProcessor) recordHistory(ctx context.Context, datasetID, text string, resp *QueryResponse, runErr error, duration time.Duration) {
	if qp.History == nil || strings.TrimSpace(text) == "" {
		return
	}
	entry := history.Entry{
		DatasetID:   datasetID,
		UserQuery:   text,
		SQL:         resp.SQL,
		Status:      history.StatusSuccess,
		RowCount:    resp.RowCount,
		ExecutionMS: duration.Milliseconds(),
	}
	if runErr != nil {
		entry.Status = history.StatusError
		entry.Error = runErr.Error()
	}
	if resp.Visualization != nil {
		entry.ChartType = string(resp.Visualization.ChartType)
	}
	if err := qp.History.Record(ctx, entry); err != nil {
		qp.logger.Warn(ctx, "Failed to record query history", map[string]interface{}{"error": err.Error()})
	}
}

func errorBody(err error) *ErrorBody {
	var enhanced *errors.EnhancedError
	if stderrors.As(err, &enhanced) {
		return &ErrorBody{
			Code:       enhanced.Code,
			Message:    enhanced.Message,
			Details:    enhanced.Details,
			Suggestion: enhanced.Suggestion,
		}
	}
	return &ErrorBody{Code: "INTERNAL_ERROR", Message: err.Error()}
}
