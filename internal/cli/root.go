// Package cli implements the golease command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/golease/internal/config"
	"github.com/mihaimyh/golease/internal/logger"
)

var version = "0.1.0"

// NewRootCommand builds the command tree around cfg.
func NewRootCommand(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "golease",
		Short: "Lease invoicing: due occurrences, issuance and EUR/RON rates",
		Long: `golease computes the invoices that lease contracts make due each month,
prices them in RON with BNR exchange rates and records what was issued.

Storage, rate policy and logging are configured through environment
variables (a .env file in the working directory is loaded first):
  GOLEASE_STORAGE         memory, postgres, firestore or sql
  GOLEASE_CONTRACTS_FILE  JSON array of contracts loaded on startup
  RATE_POLICY             contract, daily or issue-date
  REDIS_ADDR              enables the shared rate tier`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("json", false, "Print results as JSON")

	root.AddCommand(
		newDueCommand(cfg),
		newIssueCommand(cfg),
		newDeleteCommand(cfg),
		newRateCommand(cfg),
		newPrognosisCommand(cfg),
		newTotalsCommand(cfg),
		newValidateCommand(),
		newServeCommand(cfg),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(cfg).ExecuteContext(ctx); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// withApp wires the components for one command and releases them afterwards.
func withApp(cmd *cobra.Command, cfg *config.Config, run func(context.Context, *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(ctx, a)
}
