package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/minhpq/hoard/internal/model"
)

// importChunkSize bounds how many rows go through the pipeline per call so
// the progress bar advances while a large statement imports.
const importChunkSize = 20

func importCmd() *cobra.Command {
	var processedAt string

	cmd := &cobra.Command{
		Use:   "import <statement.csv>",
		Short: "Import a bank statement export (CSV)",
		Long: `Imports a CSV bank statement. Every row becomes its own pending action
under one batch; re-importing the same file is a no-op. The CSV needs a
header row naming at least reference, date, and description columns, with
debit/credit (or amount) and an optional currency column.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open statement: %w", err)
			}
			defer file.Close()

			rows, err := readStatementCSV(file)
			if err != nil {
				return err
			}

			when, err := resolveProcessedAt(processedAt, args[0])
			if err != nil {
				return err
			}

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			return runImport(cmd, a, args[0], rows, when)
		},
	}

	cmd.Flags().StringVar(&processedAt, "processed-at", "", "statement export time, RFC3339 (default: file modification time)")
	return cmd
}

// runImport pushes rows through the pipeline in chunks under one
// deterministic batch id and prints the batch summary.
func runImport(cmd *cobra.Command, a *app, sourceName string, rows []model.StatementRow, processedAt time.Time) error {
	bar := progressbar.NewOptions(len(rows),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var (
		batchID string
		staged  int
		dupes   int
		failed  int
	)

	for start := 0; start < len(rows); start += importChunkSize {
		end := start + importChunkSize
		if end > len(rows) {
			end = len(rows)
		}

		id, results, err := a.engine.IngestRows(cmd.Context(), sourceName, rows[start:end], processedAt)
		if err != nil {
			return err
		}
		batchID = id

		for _, r := range results {
			switch {
			case !r.Created:
				dupes++
			case r.Pending.Action == nil:
				failed++
			default:
				staged++
			}
		}
		_ = bar.Add(end - start)
	}
	_ = bar.Finish()

	cmd.Printf("batch %s: %d staged, %d duplicates, %d need manual entry\n",
		batchID, staged, dupes, failed)
	if staged > 0 {
		cmd.Printf("review with: hoard pending list --batch %s\n", batchID)
	}
	return nil
}

// resolveProcessedAt keys the import batch. The file's modification time is
// a stable default, so re-running the import on an unchanged file lands in
// the same batch.
func resolveProcessedAt(flag, path string) (time.Time, error) {
	if flag != "" {
		when, err := time.Parse(time.RFC3339, flag)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --processed-at %q: %w", flag, err)
		}
		return when, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// statement column aliases, matched case-insensitively against the header.
var csvColumns = map[string][]string{
	"reference":   {"reference", "ref", "transaction id", "id"},
	"date":        {"date", "transaction date", "posted"},
	"description": {"description", "details", "memo", "narrative"},
	"debit":       {"debit", "withdrawal", "out"},
	"credit":      {"credit", "deposit", "in"},
	"amount":      {"amount"},
	"currency":    {"currency", "ccy"},
}

// readStatementCSV maps a headered CSV into statement rows. A single signed
// amount column is split into debit/credit by sign.
func readStatementCSV(r io.Reader) ([]model.StatementRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for column, aliases := range csvColumns {
			for _, alias := range aliases {
				if name == alias {
					if _, taken := index[column]; !taken {
						index[column] = i
					}
				}
			}
		}
	}

	for _, required := range []string{"date", "description"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing a %s column", required)
		}
	}
	if _, hasAmount := index["amount"]; !hasAmount {
		_, hasDebit := index["debit"]
		_, hasCredit := index["credit"]
		if !hasDebit && !hasCredit {
			return nil, fmt.Errorf("CSV header needs debit/credit columns or an amount column")
		}
	}

	cell := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []model.StatementRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row := model.StatementRow{
			Reference:   cell(record, "reference"),
			Date:        cell(record, "date"),
			Description: cell(record, "description"),
			Debit:       cell(record, "debit"),
			Credit:      cell(record, "credit"),
			Currency:    cell(record, "currency"),
		}

		if amount := cell(record, "amount"); amount != "" && row.Debit == "" && row.Credit == "" {
			if strings.HasPrefix(amount, "-") {
				row.Debit = strings.TrimPrefix(amount, "-")
			} else {
				row.Credit = strings.TrimPrefix(amount, "+")
			}
		}

		// Rows without a bank reference fall back to their line number so
		// batch idempotency still keys on something stable.
		if row.Reference == "" {
			row.Reference = fmt.Sprintf("line-%d", line)
		}

		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("statement has no data rows")
	}
	return rows, nil
}
