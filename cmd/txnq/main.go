// txnq asks the transactions pipeline questions from the terminal
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// errSilent exits non-zero after the command already reported the failure
var errSilent = errors.New("silent")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "txnq",
		Short:         "Query card transactions in natural language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&g.dataset, "dataset", "d", "", "dataset id (defaults to the configured dataset)")
	flags.StringVarP(&g.format, "format", "f", "table", "output format: table, json, csv or markdown")
	flags.BoolVar(&g.verbose, "verbose", false, "write debug logs to stderr")

	root.AddCommand(
		newAskCmd(g),
		newSQLCmd(g),
		newValidateCmd(g),
		newTablesCmd(g),
		newHistoryCmd(g),
		newDatasetsCmd(g),
	)
	return root
}
