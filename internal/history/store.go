// Package history keeps the audit log of pipeline runs in query_history and
// serves past successful questions as few-shot examples.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/seanankenbruck/transactions-ai/internal/llm"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/translator"
)

// Run outcomes
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultMinSimilarity is the cosine similarity a past question needs to be used as an example
const DefaultMinSimilarity = 0.8

// Entry is one pipeline run
type Entry struct {
	ID          string    `json:"id"`
	DatasetID   string    `json:"dataset_id"`
	UserQuery   string    `json:"user_query"`
	SQL         string    `json:"sql"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	RowCount    int       `json:"row_count"`
	ChartType   string    `json:"chart_type,omitempty"`
	ExecutionMS int64     `json:"execution_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Embedder turns a question into a vector; llm.Client satisfies it
type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Store writes and reads query_history
type Store struct {
	db            *sql.DB
	embedder      Embedder
	minSimilarity float64
	logger        *observability.Logger
}

// NewStore creates a store over an open connection; the caller owns db
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:            db,
		minSimilarity: DefaultMinSimilarity,
		logger:        observability.NewLogger("history"),
	}
}

// WithEmbedder enables question embeddings and similarity search
func (s *Store) WithEmbedder(e Embedder) *Store {
	s.embedder = e
	return s
}

// WithMinSimilarity overrides the example similarity threshold
func (s *Store) WithMinSimilarity(v float64) *Store {
	s.minSimilarity = v
	return s
}

// WithLogger replaces the component logger
func (s *Store) WithLogger(logger *observability.Logger) *Store {
	s.logger = logger
	return s
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record inserts a run. Successful runs also store the question embedding
// when an embedder is configured; an embedding failure only drops the vector.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var embedding interface{}
	if e.Status == StatusSuccess {
		if v := s.embed(ctx, e.UserQuery); v != nil {
			embedding = *v
		}
	}

	query := `
		INSERT INTO query_history (id, dataset_id, user_query, sql_query, status, error_message,
			row_count, chart_type, execution_ms, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.DatasetID, e.UserQuery, e.SQL, e.Status, nullString(e.Error),
		e.RowCount, nullString(e.ChartType), e.ExecutionMS, embedding, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record query history: %w", err)
	}
	return nil
}

func (s *Store) embed(ctx context.Context, text string) *pgvector.Vector {
	if s.embedder == nil || text == "" {
		return nil
	}
	values, err := s.embedder.GetEmbedding(ctx, text)
	if err != nil {
		s.logger.Warn(ctx, "Failed to embed question", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if len(values) != llm.EmbeddingDimensions {
		s.logger.Warn(ctx, "Embedding has unexpected size", map[string]interface{}{
			"dimensions": len(values),
			"expected":   llm.EmbeddingDimensions,
		})
		return nil
	}
	v := pgvector.NewVector(values)
	return &v
}

// Recent lists the latest runs, optionally for one dataset
func (s *Store) Recent(ctx context.Context, datasetID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, dataset_id, user_query, sql_query, status, COALESCE(error_message, ''),
		       row_count, COALESCE(chart_type, ''), execution_ms, created_at
		FROM query_history
		WHERE ($1 = '' OR dataset_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, datasetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.DatasetID, &e.UserQuery, &e.SQL, &e.Status, &e.Error,
			&e.RowCount, &e.ChartType, &e.ExecutionMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return entries, nil
}

// Examples returns the few-shot source for one dataset
func (s *Store) Examples(datasetID string) translator.ExampleSource {
	return datasetExamples{store: s, datasetID: datasetID}
}

type datasetExamples struct {
	store     *Store
	datasetID string
}

func (d datasetExamples) SimilarExamples(ctx context.Context, question string, limit int) ([]translator.Example, error) {
	return d.store.SimilarExamples(ctx, d.datasetID, question, limit)
}

// SimilarExamples finds past successful questions on datasetID close to question
func (s *Store) SimilarExamples(ctx context.Context, datasetID, question string, limit int) ([]translator.Example, error) {
	if s.embedder == nil || limit <= 0 {
		return nil, nil
	}
	values, err := s.embedder.GetEmbedding(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	vector := pgvector.NewVector(values)

	query := `
		SELECT user_query, sql_query, 1 - (embedding <=> $1) AS similarity
		FROM query_history
		WHERE dataset_id = $2 AND status = 'success' AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) > $3
		ORDER BY similarity DESC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, vector, datasetID, s.minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar questions: %w", err)
	}
	defer rows.Close()

	var examples []translator.Example
	seen := map[string]bool{}
	for rows.Next() {
		var ex translator.Example
		var similarity float64
		if err := rows.Scan(&ex.Question, &ex.SQL, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan similar question row: %w", err)
		}
		if seen[ex.Question] {
			continue
		}
		seen[ex.Question] = true
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar question rows: %w", err)
	}
	return examples, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
