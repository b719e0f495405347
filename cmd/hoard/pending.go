package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review staged actions",
	}
	cmd.AddCommand(pendingListCmd())
	cmd.AddCommand(pendingApproveCmd())
	cmd.AddCommand(pendingRejectCmd())
	cmd.AddCommand(pendingApproveBatchCmd())
	return cmd
}

func pendingListCmd() *cobra.Command {
	var (
		batchID     string
		statusName  string
		limit       int
		uncommitted bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged actions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if uncommitted {
				pending, err := a.store.ListUncommittedApproved(cmd.Context())
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("no approved actions awaiting commit")
					return nil
				}
				printPendingTable(cmd, pending)
				return nil
			}

			filter := service.PendingFilter{BatchID: batchID, Limit: limit}
			if statusName != "" {
				status := model.PendingStatus(statusName)
				filter.Status = &status
			}

			pending, err := a.store.ListPendingActions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("nothing staged")
				return nil
			}
			printPendingTable(cmd, pending)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "only show members of this batch")
	cmd.Flags().StringVar(&statusName, "status", "", "filter by status (pending, approved, rejected)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	cmd.Flags().BoolVar(&uncommitted, "uncommitted", false, "show approved actions whose ledger commit failed")
	return cmd
}

func pendingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a staged action and commit it to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, txn, err := a.engine.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if pending.Status != model.StatusApproved {
				cmd.Printf("%s is already %s\n", pending.ID, pending.Status)
				return nil
			}
			if txn == nil {
				cmd.Printf("approved %s\n", pending.ID)
				return nil
			}
			cmd.Printf("approved %s, committed transaction %s\n", pending.ID, txn.ID)
			if txn.ValuationPending {
				cmd.Println("valuation pending: rate provider was unavailable; run `hoard revalue` later")
			}
			return nil
		},
	}
}

func pendingRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a staged action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.engine.Reject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%s is %s\n", pending.ID, pending.Status)
			return nil
		},
	}
}

func pendingApproveBatchCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "approve-batch <batch-id>",
		Short: "Approve every member of a batch above a confidence threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.engine.ApproveBatch(cmd.Context(), args[0], threshold)
			if err != nil {
				return err
			}

			cmd.Printf("approved %d, committed %d, skipped %d\n",
				len(outcome.Approved), len(outcome.Committed), len(outcome.Skipped))
			if len(outcome.Uncommitted) > 0 {
				cmd.Printf("%d approved actions failed to commit:\n", len(outcome.Uncommitted))
				for _, p := range outcome.Uncommitted {
					cmd.Printf("  %s\n", p.ID)
				}
				return fmt.Errorf("batch partially committed")
			}
			if len(outcome.Skipped) > 0 {
				cmd.Println("skipped members stay pending for manual review")
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0.8, "minimum confidence to auto-approve")
	return cmd
}
