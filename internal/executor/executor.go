// Package executor runs validated SQL against a dataset backend and
// materializes the rows as a dataset.ResultSet.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"
	"github.com/seanankenbruck/transactions-ai/internal/dataset"
	"github.com/seanankenbruck/transactions-ai/internal/errors"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
)

// Backend names the database engine behind an executor
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendDuckDB   Backend = "duckdb"
)

// Executor is the read side of a dataset connection
type Executor interface {
	Execute(ctx context.Context, sql string) (*dataset.ResultSet, error)
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string, sampleRows int) (*TableInfo, error)
	Backend() Backend
	Ping(ctx context.Context) error
	Close() error
}

// ColumnInfo describes one column of a table
type ColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// TableInfo is the answer of DescribeTable
type TableInfo struct {
	Name    string             `json:"name"`
	Columns []ColumnInfo       `json:"columns"`
	Sample  *dataset.ResultSet `json:"sample_rows,omitempty"`
}

// SQLExecutor runs statements over database/sql
type SQLExecutor struct {
	db            *sql.DB
	backend       Backend
	includeTables []string
	metrics       *observability.Metrics
	logger        *observability.Logger
}

// New wraps an open database handle
func New(db *sql.DB, backend Backend) *SQLExecutor {
	return &SQLExecutor{
		db:      db,
		backend: backend,
		logger:  observability.NewLogger("executor"),
	}
}

// WithIncludeTables restricts ListTables and DescribeTable to the named tables
func (e *SQLExecutor) WithIncludeTables(tables []string) *SQLExecutor {
	e.includeTables = tables
	return e
}

// WithMetrics enables execution metrics
func (e *SQLExecutor) WithMetrics(m *observability.Metrics) *SQLExecutor {
	e.metrics = m
	return e
}

// WithLogger replaces the component logger
func (e *SQLExecutor) WithLogger(logger *observability.Logger) *SQLExecutor {
	e.logger = logger
	return e
}

// Backend returns the engine name
func (e *SQLExecutor) Backend() Backend {
	return e.backend
}

// DB exposes the underlying handle for health checks
func (e *SQLExecutor) DB() *sql.DB {
	return e.db
}

// Ping checks connectivity
func (e *SQLExecutor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close releases the connection pool
func (e *SQLExecutor) Close() error {
	return e.db.Close()
}

// Execute runs sql exactly as given. The row cap is whatever LIMIT the
// statement carries; nothing is truncated here and nothing is retried.
func (e *SQLExecutor) Execute(ctx context.Context, sqlText string) (*dataset.ResultSet, error) {
	start := time.Now()
	rs, err := e.query(ctx, sqlText)
	duration := time.Since(start)
	e.metrics.RecordExecution(string(e.backend), duration, rs.Len(), err)

	if err != nil {
		e.logger.Warn(ctx, "Query execution failed", map[string]interface{}{
			"backend":     e.backend,
			"error":       err.Error(),
			"duration_ms": duration.Milliseconds(),
		})
		return nil, errors.NewExecutionError(err)
	}

	e.logger.Debug(ctx, "Query executed", map[string]interface{}{
		"backend":     e.backend,
		"rows":        rs.Len(),
		"duration_ms": duration.Milliseconds(),
	})
	return rs, nil
}

func (e *SQLExecutor) query(ctx context.Context, sqlText string, args ...any) (*dataset.ResultSet, error) {
	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	records := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return dataset.FromRecords(columns, records)
}

const listTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = current_schema()
	ORDER BY table_name`

// ListTables returns the visible tables and views
func (e *SQLExecutor) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "listing tables")
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewDatabaseQueryError(err, "scanning table name")
		}
		if e.visible(name) {
			tables = append(tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryError(err, "listing tables")
	}
	return tables, nil
}

const describeTableQuery = `
	SELECT column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema = current_schema()
	  AND table_name = $1
	ORDER BY ordinal_position`

// DescribeTable returns the column list and up to sampleRows example rows
func (e *SQLExecutor) DescribeTable(ctx context.Context, table string, sampleRows int) (*TableInfo, error) {
	if !e.visible(table) {
		return nil, errors.NewInvalidInputError("table", fmt.Sprintf("table %s is not available", table))
	}

	rows, err := e.db.QueryContext(ctx, describeTableQuery, table)
	if err != nil {
		return nil, errors.NewDatabaseQueryError(err, "describing table")
	}
	defer func() { _ = rows.Close() }()

	info := &TableInfo{Name: table, Columns: make([]ColumnInfo, 0)}
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, errors.NewDatabaseQueryError(err, "scanning column")
		}
		col.Nullable = nullable == "YES"
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryError(err, "describing table")
	}
	if len(info.Columns) == 0 {
		return nil, errors.NewInvalidInputError("table", fmt.Sprintf("table %s does not exist", table))
	}

	if sampleRows > 0 {
		sample, err := e.query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), sampleRows))
		if err != nil {
			return nil, errors.NewDatabaseQueryError(err, "sampling table")
		}
		info.Sample = sample
	}
	return info, nil
}

func (e *SQLExecutor) visible(table string) bool {
	if len(e.includeTables) == 0 {
		return true
	}
	for _, t := range e.includeTables {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

type float64er interface {
	Float64() float64
}

// normalizeValues maps driver values onto the scalar set ResultSet rows carry.
// lib/pq hands NUMERIC back as []byte text and text columns as string.
func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64,
		uint8, uint16, uint32, uint64, time.Time:
		return typed
	case []byte:
		return normalizeBytes(typed)
	case duckdb.Decimal:
		return typed.Float64()
	case *big.Int:
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case float64er:
		return typed.Float64()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func normalizeBytes(b []byte) any {
	if len(b) == 16 && !utf8.Valid(b) {
		if id, err := uuid.FromBytes(b); err == nil {
			return id.String()
		}
	}
	s := string(b)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
