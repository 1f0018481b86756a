package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"budgeteer/internal/core"
	"budgeteer/internal/services"
	"budgeteer/internal/voice"

	"github.com/spf13/cobra"
)

func newAddCmd(s *session) *cobra.Command {
	var category, direction string

	cmd := &cobra.Command{
		Use:   "add <description> <amount>",
		Short: "Add a transaction",
		Example: `  budgetctl add lunch 12.50 -c food
  budgetctl add salary 2000 -c work -t income`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := s.app.Service.AddEntry(cmd.Context(), services.EntryRequest{
				Description: args[0],
				Amount:      args[1],
				Category:    category,
				Direction:   direction,
			})
			if err != nil {
				return err
			}
			symbol := s.app.Service.Settings().Currency
			fmt.Fprintf(cmd.OutOrStdout(), "added #%d %s %s (%s)\n",
				tx.ID, tx.Description, tx.Amount.Display(symbol), core.DisplayCategory(tx.Category))
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "category, defaults to Other")
	cmd.Flags().StringVarP(&direction, "type", "t", string(core.Expense), "expense or income")
	return cmd
}

func newRemoveCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove a transaction by id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid transaction id %q", args[0])
			}
			if err := s.app.Service.RemoveEntry(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed #%d\n", id)
			return nil
		},
	}
}

func newListCmd(s *session) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			txs := s.app.Service.Transactions(search)
			return writeTransactions(cmd.OutOrStdout(), txs, s.app.Service.Settings().Currency)
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only descriptions containing this text")
	return cmd
}

func writeTransactions(out io.Writer, txs []core.Transaction, symbol string) error {
	if len(txs) == 0 {
		_, err := fmt.Fprintln(out, "no transactions")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tDESCRIPTION\tAMOUNT")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, core.DisplayCategory(tx.Category), tx.Description, tx.Amount.Display(symbol))
	}
	return tw.Flush()
}

func newSummaryCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals, limit progress and spending by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.app.Service.Dashboard(cmd.Context(), "")
			if err != nil {
				return err
			}
			symbol := d.Settings.Currency
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Balance  %s\n", d.Totals.Balance.Display(symbol))
			fmt.Fprintf(out, "Income   %s\n", d.Totals.Income.Display(symbol))
			fmt.Fprintf(out, "Expense  %s\n", d.Totals.Expense.Display(symbol))
			if d.Settings.LimitSet() {
				fmt.Fprintf(out, "Limit    %s (%.0f%% used, %s left, %s)\n",
					d.Progress.Limit.Display(symbol), d.Progress.Ratio,
					d.Progress.Remaining.Display(symbol), d.Progress.Severity)
			} else {
				fmt.Fprintln(out, "Limit    not set")
			}
			fmt.Fprintf(out, "State    %s\n", d.State)

			if len(d.Categories) > 0 {
				fmt.Fprintln(out)
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, c := range d.Categories {
					fmt.Fprintf(tw, "%s\t%s\n", c.Label, c.Amount.Display(symbol))
				}
				return tw.Flush()
			}
			return nil
		},
	}
}

func newLimitCmd(s *session) *cobra.Command {
	var clearLimit bool

	cmd := &cobra.Command{
		Use:   "limit [amount]",
		Short: "Show or set the monthly spending limit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := s.app.Service
			switch {
			case clearLimit:
				if err := svc.SetLimit(cmd.Context(), ""); err != nil {
					return err
				}
			case len(args) == 1:
				if err := svc.SetLimit(cmd.Context(), args[0]); err != nil {
					return err
				}
			}

			settings := svc.Settings()
			if !settings.LimitSet() {
				fmt.Fprintln(cmd.OutOrStdout(), "monthly limit: not set")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monthly limit: %s\n", settings.MonthlyLimit.Display(settings.Currency))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearLimit, "clear", false, "remove the limit")
	return cmd
}

func newCurrencyCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "currency <symbol>",
		Short: "Set the currency symbol used for display",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.Service.SetCurrency(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "currency: %s\n", s.app.Service.Settings().Currency)
			return nil
		},
	}
}

func newVoiceCmd(s *session) *cobra.Command {
	var submit bool

	cmd := &cobra.Command{
		Use:     "voice <transcript...>",
		Short:   "Parse a spoken sentence into a transaction",
		Example: `  budgetctl voice spent 12 dollars on pizza --submit`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.app.Service.SubmitVoice(cmd.Context(), strings.Join(args, " "), submit)
			out := cmd.OutOrStdout()
			if errors.Is(err, voice.ErrNoAmountFound) {
				fmt.Fprintf(out, "heard %q but found no amount\n", res.Draft.Description)
				return nil
			}
			if err != nil {
				return err
			}

			symbol := s.app.Service.Settings().Currency
			d := res.Draft
			if res.Transaction != nil {
				fmt.Fprintf(out, "added #%d %s %s (%s)\n", res.Transaction.ID,
					res.Transaction.Description, res.Transaction.Amount.Display(symbol),
					core.DisplayCategory(res.Transaction.Category))
				return nil
			}
			fmt.Fprintf(out, "draft: %s %s %s (%s)\n",
				d.Direction, d.Description, d.Amount.Display(symbol), core.DisplayCategory(d.Category))
			return nil
		},
	}
	cmd.Flags().BoolVar(&submit, "submit", false, "store the transaction when the draft is complete")
	return cmd
}

func newMonthEndCmd(s *session) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "month-end",
		Short: "Evaluate the month against the limit",
		Long: `Evaluate compares this month's expenses with the limit. With --yes the
ledger is then cleared for the next month; the limit and currency stay.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := s.app.Service
			v, err := svc.EvaluateMonth(cmd.Context())
			if err != nil {
				return err
			}
			symbol := svc.Settings().Currency
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", v.Title, v.Message)
			fmt.Fprintf(out, "spent %s of %s\n", v.Expense.Display(symbol), v.Limit.Display(symbol))

			if !confirm {
				return nil
			}
			if _, err := svc.AcknowledgeMonth(cmd.Context(), true); err != nil {
				return err
			}
			fmt.Fprintln(out, "ledger cleared for the new month")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirm, "yes", "y", false, "clear the ledger after the verdict")
	return cmd
}

func newExportCmd(s *session) *cobra.Command {
	var output string
	var toSheets bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as CSV or to Google Sheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if toSheets {
				exp, err := s.app.SheetExporter(cmd.Context())
				if err != nil {
					return err
				}
				updated, err := s.app.Service.ExportSheets(cmd.Context(), exp)
				if err != nil {
					return fmt.Errorf("export to google sheets: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", updated)
				return nil
			}

			if output == "" || output == "-" {
				return s.app.Service.ExportCSV(cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := s.app.Service.ExportCSV(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "budget_data.csv", "CSV file to write, - for stdout")
	cmd.Flags().BoolVar(&toSheets, "sheets", false, "mirror the ledger to the configured spreadsheet instead")
	return cmd
}
