package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minhpq/hoard/internal/ofx"
)

func importOFXCmd() *cobra.Command {
	var processedAt string

	cmd := &cobra.Command{
		Use:   "import-ofx <statement.ofx>",
		Short: "Import a bank statement export (OFX/QFX)",
		Long: `Imports an OFX or QFX download. Rows are keyed by the bank's FITID, so
re-importing the same download is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open statement: %w", err)
			}
			defer file.Close()

			rows, err := ofx.NewParser(a.logger).ParseRows(cmd.Context(), file)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("statement has no transactions")
			}

			when, err := resolveProcessedAt(processedAt, args[0])
			if err != nil {
				return err
			}

			return runImport(cmd, a, args[0], rows, when)
		},
	}

	cmd.Flags().StringVar(&processedAt, "processed-at", "", "statement export time, RFC3339 (default: file modification time)")
	return cmd
}
