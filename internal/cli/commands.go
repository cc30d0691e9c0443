package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mihaimyh/golease/internal/config"
	"github.com/mihaimyh/golease/internal/logger"
	"github.com/mihaimyh/golease/pkg/golease"
)

func newDueCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List the occurrences due in a month that have not been issued",
		Example: `  golease due --year 2024 --month 6
  golease due --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				year, month, err := yearMonthFlags(cmd, a)
				if err != nil {
					return err
				}
				occs, err := a.manager.ComputeDueOccurrences(ctx, year, month)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), occs)
				}
				if len(occs) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Nothing due in %d-%02d\n", year, int(month))
					return nil
				}
				return printOccurrences(cmd.OutOrStdout(), occs)
			})
		},
	}
	cmd.Flags().Int("year", 0, "Year (default: current year)")
	cmd.Flags().Int("month", 0, "Month 1-12 (default: current month)")
	return cmd
}

func newIssueCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue the invoice for a due occurrence",
		Example: `  golease issue --contract c-1 --issued-at 2024-06-15
  golease issue --contract c-1 --issued-at 2024-06-15 --partner acme --rate 4.97`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			contractID, _ := cmd.Flags().GetString("contract")
			partner, _ := cmd.Flags().GetString("partner")
			issuedAt, err := dateFlag(cmd, "issued-at")
			if err != nil {
				return err
			}
			if contractID == "" || issuedAt.IsZero() {
				return errors.New("--contract and --issued-at are required")
			}

			var opts []golease.IssueOption
			if cmd.Flags().Changed("rate") {
				override, _ := cmd.Flags().GetFloat64("rate")
				rateDate, err := dateFlag(cmd, "rate-date")
				if err != nil {
					return err
				}
				if rateDate.IsZero() {
					rateDate = issuedAt
				}
				opts = append(opts, golease.WithRateOverride(override, rateDate))
			}

			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				occ := golease.DueOccurrence{ContractID: contractID, IssuedAt: issuedAt, PartnerID: partner}
				inv, err := a.manager.IssueOccurrence(ctx, occ, opts...)
				if err != nil {
					return err
				}
				log := logger.WithComponent("issue")
				log.Info().
					Str("invoice", inv.ID).
					Str("contract", inv.ContractID).
					Str("issuedAt", inv.IssuedAt.String()).
					Msg("Invoice issued")

				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), inv)
				}
				return printInvoice(cmd.OutOrStdout(), inv)
			})
		},
	}
	cmd.Flags().String("contract", "", "Contract ID")
	cmd.Flags().String("issued-at", "", "Issue date (YYYY-MM-DD)")
	cmd.Flags().String("partner", "", "Partner ID or name, for split contracts")
	cmd.Flags().Float64("rate", 0, "EUR/RON rate overriding the resolved one")
	cmd.Flags().String("rate-date", "", "Date of the override rate (default: issue date)")
	return cmd
}

func newDeleteCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every invoice issued for a contract on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			contractID, _ := cmd.Flags().GetString("contract")
			issuedAt, err := dateFlag(cmd, "issued-at")
			if err != nil {
				return err
			}
			if contractID == "" || issuedAt.IsZero() {
				return errors.New("--contract and --issued-at are required")
			}

			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				n, err := a.manager.DeleteIssuedInvoice(ctx, contractID, issuedAt)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]int{"deleted": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d invoice(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().String("contract", "", "Contract ID")
	cmd.Flags().String("issued-at", "", "Issue date (YYYY-MM-DD)")
	return cmd
}

func newRateCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Resolve the EUR/RON exchange rate for a date",
		Example: `  golease rate --date 2024-06-15
  golease rate --date 2024-06-15 --no-fallback
  golease rate --daily --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			daily, _ := cmd.Flags().GetBool("daily")
			force, _ := cmd.Flags().GetBool("force")
			noFallback, _ := cmd.Flags().GetBool("no-fallback")
			date, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}

			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				resolver := a.manager.Rates()
				var quote *golease.RateQuote
				if daily || date.IsZero() {
					quote, err = resolver.DailyRate(ctx, force)
				} else {
					quote, err = resolver.Resolve(ctx, date, !noFallback)
				}
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), quote)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s RON/EUR on %s (%s)\n", rateString(quote.Rate), quote.Date, quote.Source)
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "Date (YYYY-MM-DD); empty means today's rate")
	cmd.Flags().Bool("daily", false, "Today's rate in the business timezone")
	cmd.Flags().Bool("force", false, "With --daily, ask the live source before the cache")
	cmd.Flags().Bool("no-fallback", false, "Fail instead of using an earlier published rate")
	return cmd
}

func newPrognosisCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prognosis",
		Short: "Expected monthly totals for a year across active contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				year, _ := cmd.Flags().GetInt("year")
				if year == 0 {
					year = a.manager.Rates().Today().Year
				}
				p, err := a.manager.Prognosis(ctx, year)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), p)
				}
				return printPrognosis(cmd.OutOrStdout(), p)
			})
		},
	}
	cmd.Flags().Int("year", 0, "Year (default: current year)")
	return cmd
}

func newTotalsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Totals of the invoices issued for a contract in a year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			contractID, _ := cmd.Flags().GetString("contract")
			if contractID == "" {
				return errors.New("--contract is required")
			}
			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				year, _ := cmd.Flags().GetInt("year")
				if year == 0 {
					year = a.manager.Rates().Today().Year
				}
				t, err := a.manager.YearlyTotals(ctx, contractID, year)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), t)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d: %d invoice(s), %s EUR, %s RON net, %s RON VAT, %s RON total\n",
					t.ContractID, t.Year, t.Invoices, money(t.AmountEUR), money(t.NetRON), money(t.VATRON), money(t.TotalRON))
				return nil
			})
		},
	}
	cmd.Flags().String("contract", "", "Contract ID")
	cmd.Flags().Int("year", 0, "Year (default: current year)")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [contracts-file]",
		Short: "Validate a JSON file of contracts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read contracts file: %w", err)
			}
			var contracts []golease.Contract
			if err := json.Unmarshal(data, &contracts); err != nil {
				return fmt.Errorf("failed to decode contracts: %w", err)
			}

			invalid := 0
			for i := range contracts {
				c := &contracts[i]
				if err := golease.ValidateContract(c); err != nil {
					invalid++
					fmt.Fprintf(cmd.OutOrStdout(), "INVALID %s: %v\n", c.ID, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok      %s\n", c.ID)
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d contracts are invalid", invalid, len(contracts))
			}
			return nil
		},
	}
}

func yearMonthFlags(cmd *cobra.Command, a *app) (int, time.Month, error) {
	year, _ := cmd.Flags().GetInt("year")
	month, _ := cmd.Flags().GetInt("month")
	today := a.manager.Rates().Today()
	if year == 0 {
		year = today.Year
	}
	if month == 0 {
		month = int(today.Month)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: %d", golease.ErrInvalidMonth, month)
	}
	return year, time.Month(month), nil
}

func dateFlag(cmd *cobra.Command, name string) (golease.Date, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return golease.Date{}, nil
	}
	d, err := golease.ParseDate(raw)
	if err != nil {
		return golease.Date{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}
