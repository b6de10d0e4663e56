package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/ingest"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type options struct {
	file      string
	table     string
	batchSize int
	limit     int
	clear     bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:           "load-transactions",
		Short:         "Load the transactions parquet export into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.file, "file", "", "parquet file: a local path or s3://bucket/key (defaults to DATASET_PARQUET_PATH)")
	flags.StringVar(&opts.table, "table", "mcp_transactions", "target table")
	flags.IntVar(&opts.batchSize, "batch-size", ingest.DefaultBatchSize, "rows per COPY batch")
	flags.IntVar(&opts.limit, "limit", 0, "stop after this many rows; 0 loads everything")
	flags.BoolVar(&opts.clear, "clear", false, "delete existing rows before loading")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := observability.NewLogger("load-transactions").WithLevel(observability.ParseLevel(cfg.Server.LogLevel))
	p := message.NewPrinter(language.English)

	if opts.file == "" {
		opts.file = cfg.Dataset.ParquetPath
	}
	loc, err := ingest.ParseLocation(opts.file)
	if err != nil {
		return err
	}

	src, err := ingest.Open(ctx, loc, cfg.Storage)
	if err != nil {
		return err
	}
	defer src.Close()

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	loader := ingest.NewLoader(db, opts.table).WithLogger(logger)
	if opts.clear {
		removed, err := loader.Clear(ctx)
		if err != nil {
			return err
		}
		p.Printf("Cleared %d existing rows\n", removed)
	}

	p.Printf("Loading %s into %s\n", loc, opts.table)
	start := time.Now()
	stats, err := loader.Load(ctx, src, ingest.Options{
		BatchSize: opts.batchSize,
		Limit:     opts.limit,
		Progress: func(s ingest.Stats) {
			p.Printf("  read %d, inserted %d, skipped %d\n", s.Read, s.Inserted, s.Skipped)
		},
	})
	if err != nil {
		return err
	}

	total, err := loader.Count(ctx)
	if err != nil {
		return err
	}
	p.Printf("✓ Inserted %d of %d rows in %s (%d skipped); %s now holds %d rows\n",
		stats.Inserted, stats.Read, time.Since(start).Round(time.Millisecond), stats.Skipped, opts.table, total)
	return nil
}
