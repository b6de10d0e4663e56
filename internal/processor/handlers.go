package processor

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
)

const defaultHistoryLimit = 50

// AuthMiddleware is an interface for authentication middleware
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
}

// SetupRoutes configures HTTP routes with optional authentication. Extra
// route groups, such as the auth handlers, are mounted under /api/v1.
func (qp *QueryProcessor) SetupRoutes(authMiddleware AuthMiddleware, mounts ...func(*gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	r.Use(observability.RecoveryMiddleware(qp.logger))
	r.Use(observability.RequestLoggingMiddleware(qp.logger, qp.metrics))
	r.Use(observability.CORSWithLogging(qp.logger))

	r.GET("/health", qp.handleHealth)
	r.GET("/metrics", observability.MetricsHandler())

	public := r.Group("/api/v1")
	for _, mount := range mounts {
		mount(public)
	}

	api := r.Group("/api/v1")
	if authMiddleware != nil {
		api.Use(authMiddleware.Middleware())
	}
	{
		api.GET("/transactions/query", qp.handleTransactionsQuery)
		api.POST("/query", qp.handleQuery)

		api.GET("/datasets", qp.handleListDatasets)
		api.POST("/datasets/:id/tools/:tool", qp.handleTool)

		api.DELETE("/cache", qp.handleClearCache)
		api.GET("/history", qp.handleGetHistory)
	}

	return r
}

func (qp *QueryProcessor) handleHealth(c *gin.Context) {
	if qp.healthChecker != nil {
		observability.HealthHandler(qp.healthChecker)(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "query-processor",
	})
}

// handleTransactionsQuery runs a question from the q parameter on the
// default dataset and answers in JSON or CSV
func (qp *QueryProcessor) handleTransactionsQuery(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		err := errors.NewEmptyInputError("q")
		c.JSON(http.StatusBadRequest, &QueryResponse{Data: dataset.New(nil, nil), Error: errorBody(err)})
		return
	}

	resp, err := qp.ProcessQuery(c.Request.Context(), &QueryRequest{Query: q})
	if err != nil {
		c.JSON(getErrorStatusCode(err), resp)
		return
	}

	if c.Query("format") == "csv" {
		if resp.Data.IsEmpty() {
			c.String(http.StatusNotFound, "No data found")
			return
		}
		writeCSV(c, resp.Data)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (qp *QueryProcessor) handleQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		enhancedErr := errors.NewInvalidInputError("request body", err.Error())
		c.JSON(http.StatusBadRequest, &QueryResponse{Data: dataset.New(nil, nil), Error: errorBody(enhancedErr)})
		return
	}

	resp, err := qp.ProcessQuery(c.Request.Context(), &req)
	if err != nil {
		c.JSON(getErrorStatusCode(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (qp *QueryProcessor) handleListDatasets(c *gin.Context) {
	conns := qp.Registry.Connections()
	c.JSON(http.StatusOK, gin.H{
		"datasets": conns,
		"default":  qp.Registry.DefaultID(),
		"count":    len(conns),
	})
}

func (qp *QueryProcessor) handleTool(c *gin.Context) {
	kind, err := ParseTool(c.Param("tool"))
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	var req ToolRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			enhancedErr := errors.NewInvalidInputError("request body", err.Error())
			c.JSON(http.StatusBadRequest, formatErrorResponse(enhancedErr))
			return
		}
	}

	ctx := observability.WithDatasetID(c.Request.Context(), c.Param("id"))
	result, err := qp.RunTool(ctx, c.Param("id"), kind, req)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tool":   kind.String(),
		"result": result,
	})
}

func (qp *QueryProcessor) handleClearCache(c *gin.Context) {
	var datasetID *string
	if id, ok := c.GetQuery("dataset_id"); ok && id != "" {
		datasetID = &id
	}
	removed := qp.Registry.ClearCache(datasetID)

	// cached SQL is keyed by dataset, so it goes with the agents
	prefix := "sql:"
	if datasetID != nil {
		prefix = "sql:" + *datasetID + ":"
	}
	var purged int
	if qp.Cache != nil {
		n, err := qp.Cache.DeletePrefix(c.Request.Context(), prefix)
		if err != nil {
			qp.logger.Warn(c.Request.Context(), "Failed to purge SQL cache", map[string]interface{}{"error": err.Error()})
		}
		purged = n
	}

	c.JSON(http.StatusOK, gin.H{
		"agents_removed": removed,
		"entries_purged": purged,
	})
}

func (qp *QueryProcessor) handleGetHistory(c *gin.Context) {
	if qp.History == nil {
		c.JSON(http.StatusOK, gin.H{"queries": []interface{}{}, "count": 0})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, formatErrorResponse(errors.NewInvalidInputError("limit", "must be a positive integer")))
			return
		}
		limit = n
	}

	entries, err := qp.History.Recent(c.Request.Context(), c.Query("dataset_id"), limit)
	if err != nil {
		enhancedErr := errors.NewDatabaseQueryError(err, "fetching query history")
		c.JSON(http.StatusInternalServerError, formatErrorResponse(enhancedErr))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queries": entries,
		"count":   len(entries),
	})
}

func writeCSV(c *gin.Context, rs *dataset.ResultSet) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="transactions.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(rs.Columns)
	record := make([]string, len(rs.Columns))
	for _, row := range rs.Rows {
		for i, col := range rs.Columns {
			record[i] = dataset.Label(row[col])
		}
		_ = w.Write(record)
	}
	w.Flush()
}

// formatErrorResponse formats an error into a user-friendly response
func formatErrorResponse(err error) gin.H {
	return gin.H{"error": errorBody(err)}
}

// getErrorStatusCode returns the appropriate HTTP status code for an error
func getErrorStatusCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.ErrCodeEmptyInput, errors.ErrCodeInvalidInput, errors.ErrCodeUnsafeSQL, errors.ErrCodeUnknownTool:
		return http.StatusBadRequest
	case errors.ErrCodeInvalidCredentials, errors.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case errors.ErrCodeDatasetNotFound:
		return http.StatusNotFound
	case errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeTranslation:
		return http.StatusBadGateway
	case errors.ErrCodeConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
