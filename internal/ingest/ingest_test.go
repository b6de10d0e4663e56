package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/parquet-go/parquet-go"
	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parquetFile(t *testing.T, records []Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[Record](&buf)
	_, err := w.Write(records)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func ptr[T any](v T) *T { return &v }

func sampleRecords() []Record {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	return []Record{
		{TransactionID: "t-1", TransactionTimestamp: ts, CardID: ptr(int64(1)), IssuerBankName: ptr("Halyk Bank"),
			TransactionAmountKZT: ptr(5000.0), OriginalAmount: ptr(12.5), TransactionCurrency: ptr("USD"), WalletType: ptr("Apple Pay")},
		{TransactionID: "", TransactionTimestamp: ts, IssuerBankName: ptr("Kaspi Bank")},
		{TransactionID: "t-3", TransactionTimestamp: ts, CardID: ptr(int64(3)), IssuerBankName: ptr("ForteBank"), TransactionAmountKZT: ptr(700.0)},
	}
}

var copyStaging = regexp.QuoteMeta(`COPY "mcp_transactions_staging"`)

func expectBatch(mockDB sqlmock.Sqlmock, rows int, inserted int64) {
	mockDB.ExpectBegin()
	mockDB.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "mcp_transactions_staging" (LIKE "mcp_transactions"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mockDB.ExpectPrepare(copyStaging)
	for i := 0; i < rows; i++ {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	}
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mockDB.ExpectExec(regexp.QuoteMeta(`INSERT INTO "mcp_transactions" SELECT * FROM "mcp_transactions_staging" ON CONFLICT (transaction_id) DO NOTHING`)).
		WillReturnResult(sqlmock.NewResult(0, inserted))
	mockDB.ExpectCommit()
}

// TestLoad tests copying a parquet file with skipped and duplicate rows
func TestLoad(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// one row lacks an id, one of the remaining two already exists
	expectBatch(mockDB, 2, 1)

	var progress []Stats
	stats, err := NewLoader(db, "mcp_transactions").Load(context.Background(),
		bytes.NewReader(parquetFile(t, sampleRecords())),
		Options{BatchSize: 10, Progress: func(s Stats) { progress = append(progress, s) }})

	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 3, Inserted: 1, Skipped: 2}, stats)
	assert.Len(t, progress, 1)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

// TestLoad_BatchesAndLimit tests batch boundaries and the row limit
func TestLoad_BatchesAndLimit(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	records := sampleRecords()
	records[1].TransactionID = "t-2"

	expectBatch(mockDB, 2, 2)

	stats, err := NewLoader(db, "mcp_transactions").Load(context.Background(),
		bytes.NewReader(parquetFile(t, records)), Options{BatchSize: 2, Limit: 2})

	require.NoError(t, err)
	assert.Equal(t, Stats{Read: 2, Inserted: 2}, stats)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

// TestRecordValues tests COPY value mapping of optional fields
func TestRecordValues(t *testing.T) {
	records := sampleRecords()

	full := records[0].values()
	require.Len(t, full, len(Columns))
	assert.Equal(t, 12.5, full[11])
	assert.Equal(t, "Apple Pay", full[15])

	sparse := records[2].values()
	assert.Equal(t, int64(3), sparse[2])
	assert.Equal(t, 700.0, sparse[10])
	assert.Nil(t, sparse[11])
	assert.Nil(t, sparse[15])

	// every optional column of a bare record is NULL, never a zero value
	bare := Record{TransactionID: "x"}.values()
	assert.Equal(t, "x", bare[0])
	for i, v := range bare[1:] {
		assert.Nil(t, v, Columns[i+1])
	}
}

// TestLoad_NullsSurviveParquet tests that missing optional values read back as nil
func TestLoad_NullsSurviveParquet(t *testing.T) {
	data := parquetFile(t, []Record{{TransactionID: "t-9", CardID: ptr(int64(0)), MerchantCity: ptr("")}})

	reader := parquet.NewGenericReader[Record](bytes.NewReader(data))
	defer reader.Close()
	rows := make([]Record, 1)
	n, _ := reader.Read(rows)
	require.Equal(t, 1, n)

	got := rows[0]
	require.NotNil(t, got.CardID)
	assert.Equal(t, int64(0), *got.CardID)
	require.NotNil(t, got.MerchantCity)
	assert.Equal(t, "", *got.MerchantCity)
	assert.Nil(t, got.MerchantMCC)
	assert.Nil(t, got.IssuerBankName)
	assert.Nil(t, got.TransactionAmountKZT)

	values := got.values()
	assert.Nil(t, values[1])
	assert.Equal(t, int64(0), values[2])
	assert.Nil(t, values[6])
}

// TestClearAndCount tests table maintenance statements
func TestClearAndCount(t *testing.T) {
	db, mockDB, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mockDB.ExpectExec(regexp.QuoteMeta(`DELETE FROM "mcp_transactions"`)).WillReturnResult(sqlmock.NewResult(0, 5))
	mockDB.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "mcp_transactions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	loader := NewLoader(db, "mcp_transactions")
	removed, err := loader.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)

	n, err := loader.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mockDB.ExpectationsWereMet())
}

// TestParseLocation tests local and object storage references
func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    Location
		wantErr bool
	}{
		{raw: "data/example_dataset.parquet", want: Location{Path: "data/example_dataset.parquet"}},
		{raw: "s3://datasets/kz/transactions.parquet", want: Location{Bucket: "datasets", Key: "kz/transactions.parquet"}},
		{raw: "s3://datasets", wantErr: true},
		{raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

// TestOpen tests opening local files and the storage requirement for s3
func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tx.parquet")
	require.NoError(t, os.WriteFile(path, parquetFile(t, sampleRecords()), 0o600))

	src, err := Open(context.Background(), Location{Path: path}, config.StorageConfig{})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	_, err = Open(context.Background(), Location{Path: filepath.Join(t.TempDir(), "missing.parquet")}, config.StorageConfig{})
	assert.Error(t, err)

	_, err = Open(context.Background(), Location{Bucket: "b", Key: "k"}, config.StorageConfig{})
	assert.ErrorContains(t, err, "STORAGE_ENDPOINT")
}
