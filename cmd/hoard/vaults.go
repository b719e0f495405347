package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func vaultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaults",
		Short: "Inspect vaults and balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			vaults, err := a.store.ListVaults(cmd.Context())
			if err != nil {
				return err
			}
			if len(vaults) == 0 {
				cmd.Println("no vaults yet; the first committed action creates them")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			writeRow(w, "VAULT", "ASSET", "BALANCE", "OVERDRAFT")
			for _, vault := range vaults {
				balances, err := a.store.ListVaultBalances(cmd.Context(), vault.Name)
				if err != nil {
					return err
				}

				overdraft := "no"
				if vault.AllowOverdraft {
					overdraft = "yes"
				}

				if len(balances) == 0 {
					writeRow(w, vault.Name, "-", "0", overdraft)
					continue
				}
				for _, b := range balances {
					writeRow(w, vault.Name, b.Asset, b.Balance.String(), overdraft)
				}
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(vaultEntriesCmd())
	return cmd
}

func vaultEntriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entries <vault>",
		Short: "List a vault's entry history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.store.ListVaultEntries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("no entries")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			writeRow(w, "WHEN", "DIRECTION", "ASSET", "AMOUNT", "USD VALUE", "TRANSACTION")
			for _, e := range entries {
				usd := "-"
				if e.USDValue != nil {
					usd = e.USDValue.StringFixed(2)
				}
				writeRow(w, e.CreatedAt.Format("2006-01-02 15:04"),
					string(e.Direction), e.Asset, e.Amount.String(), usd, e.TransactionID)
			}
			return w.Flush()
		},
	}
}
