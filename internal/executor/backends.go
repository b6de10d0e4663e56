package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// PoolConfig sizes the connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig is used for the postgres backend
var DefaultPoolConfig = PoolConfig{
	MaxOpenConns:    25,
	MaxIdleConns:    5,
	ConnMaxLifetime: 5 * time.Minute,
}

// OpenPostgres connects to a PostgreSQL dataset through lib/pq
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*SQLExecutor, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return New(db, BackendPostgres), nil
}

// OpenDuckDB starts an in-memory DuckDB and exposes the parquet files at
// parquetPath (a path or glob) as a view named table.
func OpenDuckDB(ctx context.Context, parquetPath, table string) (*SQLExecutor, error) {
	if strings.TrimSpace(parquetPath) == "" {
		return nil, fmt.Errorf("parquet path is required")
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
		quoteIdent(table), quoteString(parquetPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create view for table %q: %w", table, err)
	}
	return New(db, BackendDuckDB).WithIncludeTables([]string{table}), nil
}

// Open picks the backend by driver name
func Open(ctx context.Context, driver, uri, table string) (*SQLExecutor, error) {
	switch Backend(driver) {
	case BackendPostgres, "":
		return OpenPostgres(ctx, uri, DefaultPoolConfig)
	case BackendDuckDB:
		return OpenDuckDB(ctx, uri, table)
	default:
		return nil, fmt.Errorf("unsupported dataset driver: %s", driver)
	}
}
