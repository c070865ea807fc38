package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Filter and summarize ENEM results against municipal GDP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().String("data", "", "dataset path (CSV, compressed CSV or .xlsx); overrides config")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error; overrides config")

	root.AddCommand(newOptionsCmd(), newSummaryCmd(), newExportCmd())
	return root
}
