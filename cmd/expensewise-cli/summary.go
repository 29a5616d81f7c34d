package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"expensewise/internal/aggregate"
	"expensewise/internal/core"
	"expensewise/internal/services"
)

func summaryCmd() *cobra.Command {
	var email string
	var f aggregate.Filter
	var mode string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print category totals for a date window",
		Long: `Print the total and per-category breakdown for one user, or for every user
when --email is omitted. The window follows the dashboard filter modes.`,
		Example: `  expensewise-cli summary --email asha@example.com --mode month --month 2024-01
  expensewise-cli summary --mode week --date 2024-03-14`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f.Mode = aggregate.ParseMode(mode)

			cfg, res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Cleanup()
			svc := services.NewExpenseService(res.Store, nil, cfg.FilterOptions())

			var users []string
			if email != "" {
				u, err := userByEmail(cmd, res.Store, email)
				if err != nil {
					return err
				}
				users = []string{u.ID}
			} else if users, err = res.Store.ListUserIDs(ctx); err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}

			sums, err := summarize(ctx, svc, users, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, uid := range users {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printSummary(out, uid, sums[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (default: every user)")
	cmd.Flags().StringVar(&mode, "mode", "month", "filter mode (today, week, month, custom)")
	cmd.Flags().StringVar(&f.Month, "month", "", "month as YYYY-MM (month mode)")
	cmd.Flags().StringVar(&f.Date, "date", "", "day as YYYY-MM-DD (today and week modes)")
	cmd.Flags().StringVar(&f.Start, "start", "", "window start as YYYY-MM-DD (custom and week modes)")
	cmd.Flags().StringVar(&f.End, "end", "", "window end as YYYY-MM-DD (custom and week modes)")
	return cmd
}

// summarize computes every user's summary concurrently, preserving order.
func summarize(ctx context.Context, svc *services.ExpenseService, users []string, f aggregate.Filter) ([]aggregate.Summary, error) {
	sums := make([]aggregate.Summary, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, uid := range users {
		g.Go(func() error {
			s, err := svc.Summary(gctx, uid, f)
			if err != nil {
				return fmt.Errorf("summary for %s: %w", uid, err)
			}
			sums[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

func printSummary(out io.Writer, uid string, s aggregate.Summary) {
	fmt.Fprintf(out, "user %s  %s to %s\n", uid,
		s.Range.Start.Format("2006-01-02"), s.Range.End.Format("2006-01-02"))
	if len(s.Categories) == 0 {
		fmt.Fprintln(out, "  no expenses in this period")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "  CATEGORY\tTOTAL\tSHARE\t")
	for _, c := range s.Categories {
		fmt.Fprintf(w, "  %s\t%s\t%s\t\n", c.Category, core.FormatINR(c.Total.Cents), aggregate.FormatPercent(c.Percentage, 1))
	}
	fmt.Fprintf(w, "  %s\t%s\t%s\t\n", "Total", core.FormatINR(s.Total.Cents), "")
	_ = w.Flush()
}

func categoriesCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List a user's categories",
		Long:  `List the fixed categories followed by the user's custom ones, in add-form order.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			u, err := userByEmail(cmd, res.Store, email)
			if err != nil {
				return err
			}
			svc := services.NewExpenseService(res.Store, nil, cfg.FilterOptions())
			names, err := svc.CategoryNames(ctx, u.ID)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
