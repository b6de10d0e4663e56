package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/database"
	"github.com/spf13/cobra"
)

var migrationsPath string

func main() {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the transactions-ai database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&migrationsPath, "path", "./migrations", "directory holding the migration files")

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(mg *database.Migrator) error {
				if err := mg.Down(steps); err != nil {
					return err
				}
				fmt.Println("✓ Rolled back")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back; 0 rolls back all")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(mg *database.Migrator) error {
					if err := mg.Up(); err != nil {
						return err
					}
					fmt.Println("✓ Database migrations completed successfully!")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd.Context(), func(mg *database.Migrator) error {
					v, dirty, err := mg.Version()
					if err != nil {
						return err
					}
					fmt.Printf("version %d (dirty: %t)\n", v, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Check pgvector and the migrated tables",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd.Context())
				if err != nil {
					return err
				}
				db, err := sql.Open("postgres", cfg.Database.DSN())
				if err != nil {
					return err
				}
				defer db.Close()
				if err := database.HealthCheck(cmd.Context(), db); err != nil {
					return err
				}
				fmt.Println("✓ Database is ready")
				return nil
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func withMigrator(ctx context.Context, fn func(*database.Migrator) error) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	d := cfg.Database
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", d.Username, d.Host, d.Port, d.Database)

	db, err := sql.Open("postgres", d.DSN())
	if err != nil {
		return err
	}
	err = database.VerifyDatabase(ctx, db, d.Database)
	db.Close()
	if err != nil {
		return fmt.Errorf("database connectivity failed: %w", err)
	}

	mg, err := database.NewMigrator(database.MigrationConfig{
		DatabaseURL:    d.URL(),
		MigrationsPath: migrationsPath,
	})
	if err != nil {
		return err
	}
	defer mg.Close()
	return fn(mg)
}
