package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/seanankenbruck/transactions-ai/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type denyAll struct{}

func (denyAll) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

func serve(t *testing.T, router *gin.Engine, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type responseBody struct {
	Data     []map[string]interface{} `json:"data"`
	SQL      string                   `json:"sql"`
	Error    *ErrorBody               `json:"error"`
	RowCount int                      `json:"row_count"`
	Viz      map[string]interface{}   `json:"visualization"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) responseBody {
	t.Helper()
	var body responseBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// TestTransactionsQueryEndpoint tests the GET query endpoint in JSON and CSV
func TestTransactionsQueryEndpoint(t *testing.T) {
	t.Run("missing q", func(t *testing.T) {
		f := newFixture(t, ProcessorConfig{})
		w := serve(t, f.qp.SetupRoutes(nil), http.MethodGet, "/api/v1/transactions/query", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `[]`, string(mustField(t, w, "data")))
		body := decode(t, w)
		assert.Equal(t, "", body.SQL)
		require.NotNil(t, body.Error)
		assert.Equal(t, "EMPTY_INPUT", string(body.Error.Code))
	})

	t.Run("json", func(t *testing.T) {
		f := newFixture(t, ProcessorConfig{Visualize: true})
		f.translateTo(bankTotalsSQL)
		f.db.ExpectQuery("SELECT").WillReturnRows(bankRows())

		w := serve(t, f.qp.SetupRoutes(nil), http.MethodGet, "/api/v1/transactions/query?q=total+by+bank", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Nil(t, body.Error)
		assert.Equal(t, 3, body.RowCount)
		require.Len(t, body.Data, 3)
		assert.Equal(t, "Halyk Bank", body.Data[0]["issuer_bank_name"])
		assert.Equal(t, "bar", body.Viz["chart_type"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("csv", func(t *testing.T) {
		f := newFixture(t, ProcessorConfig{})
		f.translateTo(bankTotalsSQL)
		f.db.ExpectQuery("SELECT").WillReturnRows(bankRows())

		w := serve(t, f.qp.SetupRoutes(nil), http.MethodGet, "/api/v1/transactions/query?q=total+by+bank&format=csv", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "transactions.csv")

		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "issuer_bank_name,total_kzt", lines[0])
		assert.Equal(t, "Halyk Bank,5000", lines[1])
	})

	t.Run("csv without rows", func(t *testing.T) {
		f := newFixture(t, ProcessorConfig{})
		f.translateTo(bankTotalsSQL)
		f.db.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"issuer_bank_name", "total_kzt"}))

		w := serve(t, f.qp.SetupRoutes(nil), http.MethodGet, "/api/v1/transactions/query?q=nothing&format=csv", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unsafe SQL is returned", func(t *testing.T) {
		f := newFixture(t, ProcessorConfig{})
		f.translateTo("SELECT 1; DROP TABLE mcp_transactions")

		w := serve(t, f.qp.SetupRoutes(nil), http.MethodGet, "/api/v1/transactions/query?q=drop", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "SELECT 1; DROP TABLE mcp_transactions", body.SQL)
		assert.Equal(t, "UNSAFE_SQL", string(body.Error.Code))
		assert.Empty(t, body.Data)
	})
}

func mustField(t *testing.T, w *httptest.ResponseRecorder, field string) json.RawMessage {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	return raw[field]
}

// TestQueryEndpoint tests the POST query endpoint
func TestQueryEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		setup      func(f *fixture)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing query",
			body:       map[string]string{"dataset_id": "transactions"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "unknown dataset",
			body:       QueryRequest{Query: "total", DatasetID: "nope"},
			wantStatus: http.StatusNotFound,
			wantCode:   "DATASET_NOT_FOUND",
		},
		{
			name: "success",
			body: QueryRequest{Query: "total by bank", DatasetID: "transactions"},
			setup: func(f *fixture) {
				f.translateTo(bankTotalsSQL)
				f.db.ExpectQuery("SELECT").WillReturnRows(bankRows())
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ProcessorConfig{})
			if tt.setup != nil {
				tt.setup(f)
			}

			w := serve(t, f.qp.SetupRoutes(nil), http.MethodPost, "/api/v1/query", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			if tt.wantCode == "" {
				assert.Nil(t, body.Error)
				return
			}
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, string(body.Error.Code))
			assert.NotNil(t, body.Data)
		})
	}
}

// TestToolEndpoint tests tool dispatch over HTTP
func TestToolEndpoint(t *testing.T) {
	f := newFixture(t, ProcessorConfig{})
	router := f.qp.SetupRoutes(nil)

	w := serve(t, router, http.MethodPost, "/api/v1/datasets/transactions/tools/drop_table", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNKNOWN_TOOL")

	f.db.ExpectQuery("FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("mcp_transactions"))
	w = serve(t, router, http.MethodPost, "/api/v1/datasets/transactions/tools/list_tables", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tool":"list_tables","result":{"tables":["mcp_transactions"]}}`, w.Body.String())

	w = serve(t, router, http.MethodPost, "/api/v1/datasets/archive/tools/list_tables", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, router, http.MethodPost, "/api/v1/datasets/transactions/tools/run_query", ToolRequest{SQL: "DROP TABLE mcp_transactions"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "UNSAFE_SQL")
}

// TestDatasetsAndCacheEndpoints tests listing datasets and clearing caches
func TestDatasetsAndCacheEndpoints(t *testing.T) {
	f := newFixture(t, ProcessorConfig{CacheTTL: time.Minute})
	router := f.qp.SetupRoutes(nil)

	w := serve(t, router, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Datasets []map[string]interface{} `json:"datasets"`
		Default  string                   `json:"default"`
		Count    int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Equal(t, 2, listing.Count)
	assert.Equal(t, "transactions", listing.Default)
	assert.NotContains(t, listing.Datasets[0], "uri")

	f.translateTo(bankTotalsSQL)
	f.db.ExpectQuery("SELECT").WillReturnRows(bankRows())
	_, err := f.qp.ProcessQuery(context.Background(), &QueryRequest{Query: "total by bank"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())

	w = serve(t, router, http.MethodDelete, "/api/v1/cache?dataset_id=transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"agents_removed":1,"entries_purged":1}`, w.Body.String())
	assert.Zero(t, f.store.Len())
}

// TestHistoryEndpoint tests listing recent runs
func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t, ProcessorConfig{})
	f.history.entries = []history.Entry{
		{DatasetID: "transactions", UserQuery: "first", Status: history.StatusSuccess},
		{DatasetID: "transactions", UserQuery: "second", Status: history.StatusError},
	}
	router := f.qp.SetupRoutes(nil)

	w := serve(t, router, http.MethodGet, "/api/v1/history?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Queries []history.Entry `json:"queries"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Count)
	assert.Equal(t, "second", out.Queries[0].UserQuery)

	w = serve(t, router, http.MethodGet, "/api/v1/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestRoutes_Auth tests that protected routes go through the auth middleware
func TestRoutes_Auth(t *testing.T) {
	f := newFixture(t, ProcessorConfig{})
	mounted := false
	router := f.qp.SetupRoutes(denyAll{}, func(g *gin.RouterGroup) {
		mounted = true
		g.GET("/auth/status", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	})
	assert.True(t, mounted)

	assert.Equal(t, http.StatusUnauthorized, serve(t, router, http.MethodGet, "/api/v1/datasets", nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, router, http.MethodGet, "/api/v1/auth/status", nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, router, http.MethodGet, "/health", nil).Code)
}
