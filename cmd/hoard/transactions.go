package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

func transactionsCmd() *cobra.Command {
	var (
		account  string
		since    string
		until    string
		limit    int
		unvalued bool
	)

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List committed ledger transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			filter := service.TransactionFilter{Account: account, Limit: limit}
			if since != "" {
				t, err := time.Parse(model.RateDateLayout, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: %w", since, err)
				}
				filter.StartDate = &t
			}
			if until != "" {
				t, err := time.Parse(model.RateDateLayout, until)
				if err != nil {
					return fmt.Errorf("invalid --until %q: %w", until, err)
				}
				filter.EndDate = &t
			}
			if unvalued {
				pending := true
				filter.ValuationPending = &pending
			}

			txns, err := a.store.ListTransactions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				cmd.Println("no transactions")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			writeRow(w, "DATE", "TYPE", "QUANTITY", "ASSET", "ACCOUNT", "USD", "VND", "TAG")
			for _, t := range txns {
				usd, vnd := "-", "-"
				if t.AmountUSD != nil {
					usd = t.AmountUSD.StringFixed(2)
				}
				if t.AmountVND != nil {
					vnd = t.AmountVND.StringFixed(0)
				}
				writeRow(w, t.Date.Format(model.RateDateLayout), string(t.Type),
					t.Quantity.String(), t.Asset, t.Account, usd, vnd, t.Tag)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "filter by vault")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "end date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	cmd.Flags().BoolVar(&unvalued, "valuation-pending", false, "only transactions awaiting rate backfill")
	return cmd
}

func revalueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revalue",
		Short: "Backfill valuations committed while the rate provider was down",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			resolved, err := a.committer.Revalue(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("revalued %d transactions\n", resolved)
			return nil
		},
	}
}
