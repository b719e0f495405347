package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/minhpq/hoard/internal/engine"
	"github.com/minhpq/hoard/internal/model"
)

func printIngestResult(cmd *cobra.Command, result *engine.IngestResult) {
	p := result.Pending
	if !result.Created {
		cmd.Printf("duplicate delivery, already staged as %s\n", p.ID)
		return
	}

	if p.Action == nil {
		cmd.Printf("staged %s with no action (%s); review and enter manually\n",
			p.ID, p.Meta[engine.MetaReason])
		return
	}

	cmd.Printf("staged %s: %s (confidence %.2f)\n", p.ID, p.Action.Verb, p.Confidence)
	cmd.Printf("  batch: %s\n", p.BatchID)
}

func printPendingTable(cmd *cobra.Command, pending []model.PendingAction) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	writeRow(w, "ID", "STATUS", "VERB", "CONF", "SOURCE", "RAW")
	for _, p := range pending {
		verb := "-"
		if p.Action != nil {
			verb = string(p.Action.Verb)
		}
		writeRow(w, p.ID, string(p.Status), verb,
			fmt.Sprintf("%.2f", p.Confidence), string(p.Source), truncate(p.RawText, 48))
	}
}

func writeRow(w *tabwriter.Writer, cols ...string) {
	_, _ = fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
