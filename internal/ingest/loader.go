package ingest

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"
	"github.com/parquet-go/parquet-go"

	"github.com/seanankenbruck/transactions-ai/internal/observability"
)

// DefaultBatchSize is the number of rows copied per transaction
const DefaultBatchSize = 10000

// Record is one row of the transactions export. Nullable columns are
// pointers so NULL stays NULL instead of becoming 0 or "". A missing
// timestamp reads as the zero time and is copied as NULL.
type Record struct {
	TransactionID        string    `parquet:"transaction_id"`
	TransactionTimestamp time.Time `parquet:"transaction_timestamp,timestamp,optional"`
	CardID               *int64    `parquet:"card_id"`
	ExpiryDate           *string   `parquet:"expiry_date"`
	IssuerBankName       *string   `parquet:"issuer_bank_name"`
	MerchantID           *int64    `parquet:"merchant_id"`
	MerchantMCC          *int64    `parquet:"merchant_mcc"`
	MCCCategory          *string   `parquet:"mcc_category"`
	MerchantCity         *string   `parquet:"merchant_city"`
	TransactionType      *string   `parquet:"transaction_type"`
	TransactionAmountKZT *float64  `parquet:"transaction_amount_kzt"`
	OriginalAmount       *float64  `parquet:"original_amount"`
	TransactionCurrency  *string   `parquet:"transaction_currency"`
	AcquirerCountryISO   *string   `parquet:"acquirer_country_iso"`
	POSEntryMode         *string   `parquet:"pos_entry_mode"`
	WalletType           *string   `parquet:"wallet_type"`
}

// Columns is the target column order used by COPY
var Columns = []string{
	"transaction_id", "transaction_timestamp", "card_id", "expiry_date", "issuer_bank_name",
	"merchant_id", "merchant_mcc", "mcc_category", "merchant_city", "transaction_type",
	"transaction_amount_kzt", "original_amount", "transaction_currency", "acquirer_country_iso",
	"pos_entry_mode", "wallet_type",
}

func (r Record) values() []interface{} {
	var ts interface{}
	if !r.TransactionTimestamp.IsZero() {
		ts = r.TransactionTimestamp.UTC()
	}
	return []interface{}{
		r.TransactionID, ts, orNull(r.CardID), orNull(r.ExpiryDate), orNull(r.IssuerBankName),
		orNull(r.MerchantID), orNull(r.MerchantMCC), orNull(r.MCCCategory), orNull(r.MerchantCity),
		orNull(r.TransactionType), orNull(r.TransactionAmountKZT), orNull(r.OriginalAmount),
		orNull(r.TransactionCurrency), orNull(r.AcquirerCountryISO), orNull(r.POSEntryMode),
		orNull(r.WalletType),
	}
}

// orNull dereferences p; a nil pointer is copied as NULL
func orNull[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// Options controls a load
type Options struct {
	BatchSize int
	// Limit stops after this many rows; 0 loads everything
	Limit int
	// Progress is called after every committed batch
	Progress func(Stats)
}

// Stats counts rows through a load
type Stats struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Loader copies records into the transactions table
type Loader struct {
	db     *sql.DB
	table  string
	logger *observability.Logger
}

// NewLoader creates a loader for table
func NewLoader(db *sql.DB, table string) *Loader {
	return &Loader{db: db, table: table, logger: observability.NewLogger("ingest")}
}

// WithLogger replaces the component logger
func (l *Loader) WithLogger(logger *observability.Logger) *Loader {
	l.logger = logger
	return l
}

// Clear deletes every row and returns how many were removed
func (l *Loader) Clear(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, "DELETE FROM "+pq.QuoteIdentifier(l.table))
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", l.table, err)
	}
	return res.RowsAffected()
}

// Count returns the current row count
func (l *Loader) Count(ctx context.Context) (int64, error) {
	var n int64
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(l.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", l.table, err)
	}
	return n, nil
}

// Load reads src in batches and copies each into the table. Rows without a
// transaction id are skipped; rows whose id already exists are ignored.
func (l *Loader) Load(ctx context.Context, src io.ReaderAt, opts Options) (Stats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	reader := parquet.NewGenericReader[Record](src)
	defer func() { _ = reader.Close() }()

	var stats Stats
	buf := make([]Record, opts.BatchSize)
	for {
		if opts.Limit > 0 && stats.Read >= opts.Limit {
			break
		}
		want := buf
		if opts.Limit > 0 && opts.Limit-stats.Read < len(want) {
			want = buf[:opts.Limit-stats.Read]
		}

		n, readErr := reader.Read(want)
		if readErr != nil && !stderrors.Is(readErr, io.EOF) {
			return stats, fmt.Errorf("failed to read parquet rows: %w", readErr)
		}
		stats.Read += n

		batch := make([]Record, 0, n)
		for _, rec := range want[:n] {
			if rec.TransactionID == "" {
				stats.Skipped++
				continue
			}
			batch = append(batch, rec)
		}
		if len(batch) > 0 {
			inserted, err := l.copyBatch(ctx, batch)
			if err != nil {
				return stats, err
			}
			stats.Inserted += inserted
			stats.Skipped += len(batch) - inserted
			if opts.Progress != nil {
				opts.Progress(stats)
			}
		}

		if stderrors.Is(readErr, io.EOF) || n == 0 {
			break
		}
	}

	l.logger.Info(ctx, "Load completed", map[string]interface{}{
		"table":    l.table,
		"read":     stats.Read,
		"inserted": stats.Inserted,
		"skipped":  stats.Skipped,
	})
	return stats, nil
}

// copyBatch COPYs into a staging table and moves new rows across, so
// duplicate ids are ignored instead of aborting the batch
func (l *Loader) copyBatch(ctx context.Context, batch []Record) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	staging := l.table + "_staging"
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pq.QuoteIdentifier(staging), pq.QuoteIdentifier(l.table),
	)); err != nil {
		return 0, fmt.Errorf("failed to create staging table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(staging, Columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, rec := range batch {
		if _, err := stmt.ExecContext(ctx, rec.values()...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("failed to copy row %s: %w", rec.TransactionID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM %s ON CONFLICT (transaction_id) DO NOTHING",
		pq.QuoteIdentifier(l.table), pq.QuoteIdentifier(staging),
	))
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return int(inserted), nil
}
