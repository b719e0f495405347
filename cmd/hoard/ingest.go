package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/minhpq/hoard/internal/llm"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest informal financial reports",
	}
	cmd.AddCommand(ingestTextCmd())
	cmd.AddCommand(ingestImageCmd())
	return cmd
}

func ingestTextCmd() *cobra.Command {
	var receivedAt string

	cmd := &cobra.Command{
		Use:   "text <report>",
		Short: "Ingest a free-form text report",
		Long: `Extracts a financial action from an informal text report like
"lunch 120k at McDo from Bank" and stages it for review.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			when, err := parseReceivedAt(receivedAt)
			if err != nil {
				return err
			}

			result, err := a.engine.IngestText(cmd.Context(), strings.Join(args, " "), when)
			if err != nil {
				return err
			}

			printIngestResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&receivedAt, "received-at", "", "report receipt time, RFC3339 (default: now)")
	return cmd
}

func ingestImageCmd() *cobra.Command {
	var (
		caption    string
		receivedAt string
	)

	cmd := &cobra.Command{
		Use:   "image <file>",
		Short: "Ingest a receipt photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			mediaType := mime.TypeByExtension(filepath.Ext(args[0]))
			if mediaType == "" {
				mediaType = "image/jpeg"
			}

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			when, err := parseReceivedAt(receivedAt)
			if err != nil {
				return err
			}

			result, err := a.engine.IngestImage(cmd.Context(), llm.Image{
				MediaType: mediaType,
				Data:      data,
			}, caption, when)
			if err != nil {
				return err
			}

			printIngestResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&caption, "caption", "", "optional caption accompanying the photo")
	cmd.Flags().StringVar(&receivedAt, "received-at", "", "report receipt time, RFC3339 (default: now)")
	return cmd
}

func parseReceivedAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	when, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --received-at %q: %w", raw, err)
	}
	return when, nil
}
