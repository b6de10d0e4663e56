package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seanankenbruck/transactions-ai/internal/app"
	"github.com/seanankenbruck/transactions-ai/internal/cli"
	"github.com/seanankenbruck/transactions-ai/internal/config"
	"github.com/seanankenbruck/transactions-ai/internal/executor"
	"github.com/seanankenbruck/transactions-ai/internal/observability"
	"github.com/seanankenbruck/transactions-ai/internal/processor"
	"github.com/seanankenbruck/transactions-ai/internal/safety"
)

const version = "1.0.0"

type globals struct {
	dataset string
	format  string
	verbose bool
}

// session loads config, builds the pipeline and hands both to fn
func (g *globals) session(ctx context.Context, out io.Writer, fn func(*app.App, *cli.Printer) error) error {
	format, err := cli.ParseFormat(g.format)
	if err != nil {
		return err
	}
	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := observability.LevelError
	if g.verbose {
		level = observability.LevelDebug
	}
	a, err := app.Build(ctx, cfg, "txnq", version, app.WithLogOutput(os.Stderr), app.WithLogLevel(level))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, cli.NewPrinter(out, format))
}

func newAskCmd(g *globals) *cobra.Command {
	var (
		chartPath string
		noViz     bool
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Translate a question to SQL, run it and summarize the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd.Context(), cmd.OutOrStdout(), func(a *app.App, p *cli.Printer) error {
				visualize := !noViz
				resp, runErr := a.Processor.ProcessQuery(cmd.Context(), &processor.QueryRequest{
					Query:     strings.Join(args, " "),
					DatasetID: g.dataset,
					Visualize: &visualize,
				})
				if err := p.Response(resp); err != nil {
					return err
				}
				if runErr != nil {
					return errSilent
				}
				if chartPath != "" {
					return writeChart(chartPath, resp)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&chartPath, "chart", "", "write the chart figure as JSON to this file")
	cmd.Flags().BoolVar(&noViz, "no-viz", false, "skip chart selection and insights")
	return cmd
}

func newSQLCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sql STATEMENT",
		Short: "Validate and run a SQL statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd.Context(), cmd.OutOrStdout(), func(a *app.App, p *cli.Printer) error {
				out, err := a.Processor.RunTool(cmd.Context(), g.dataset, processor.ToolRunQuery, processor.ToolRequest{SQL: args[0]})
				if err != nil {
					return err
				}
				res := out.(processor.RunQueryResult)
				return p.ResultSet(res.Data)
			})
		},
	}
}

func newValidateCmd(g *globals) *cobra.Command {
	var maxLength int
	cmd := &cobra.Command{
		Use:   "validate STATEMENT",
		Short: "Check a SQL statement against the safety rules without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(g.format)
			if err != nil {
				return err
			}
			violations := safety.NewValidator(maxLength).Violations(args[0])
			if err := cli.NewPrinter(cmd.OutOrStdout(), format).Verdicts(args[0], violations); err != nil {
				return err
			}
			if len(violations) > 0 {
				return errSilent
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxLength, "max-length", 0, "maximum statement length (0 uses the default)")
	return cmd
}

func newTablesCmd(g *globals) *cobra.Command {
	var sampleRows int
	cmd := &cobra.Command{
		Use:   "tables [TABLE]",
		Short: "List tables, or describe one table with sample rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd.Context(), cmd.OutOrStdout(), func(a *app.App, p *cli.Printer) error {
				if len(args) == 0 {
					out, err := a.Processor.RunTool(cmd.Context(), g.dataset, processor.ToolListTables, processor.ToolRequest{})
					if err != nil {
						return err
					}
					return p.Tables(out.(processor.TablesResult).Tables)
				}
				out, err := a.Processor.RunTool(cmd.Context(), g.dataset, processor.ToolTableInfo, processor.ToolRequest{
					Table:      args[0],
					SampleRows: sampleRows,
				})
				if err != nil {
					return err
				}
				return p.TableInfo(out.(*executor.TableInfo))
			})
		},
	}
	cmd.Flags().IntVar(&sampleRows, "sample", 0, "sample rows to show (0 uses the dataset default)")
	return cmd
}

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd.Context(), cmd.OutOrStdout(), func(a *app.App, p *cli.Printer) error {
				if a.Processor.History == nil {
					return fmt.Errorf("query history is disabled (set HISTORY_ENABLED=true)")
				}
				entries, err := a.Processor.History.Recent(cmd.Context(), g.dataset, limit)
				if err != nil {
					return err
				}
				return p.History(entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func newDatasetsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List configured datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.session(cmd.Context(), cmd.OutOrStdout(), func(a *app.App, p *cli.Printer) error {
				return p.Datasets(a.Processor.Registry.Connections(), a.Processor.Registry.DefaultID())
			})
		},
	}
}

func writeChart(path string, resp *processor.QueryResponse) error {
	if resp.Visualization == nil || resp.Visualization.Figure == nil {
		fmt.Fprintln(os.Stderr, "No chart for this result")
		return nil
	}
	data, err := json.MarshalIndent(resp.Visualization, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Chart written to %s\n", path)
	return nil
}
