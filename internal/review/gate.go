// Package review owns the pending-action state machine. It is the only
// component that moves a staged action out of pending; both terminal states
// are final and records are never deleted.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

// Gate exposes single and bulk approve/reject operations over staged
// actions.
type Gate struct {
	store  service.Storage
	logger *slog.Logger
}

// NewGate creates a review gate.
func NewGate(store service.Storage, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, logger: logger}
}

// Approve transitions a pending action to approved. Approving an
// already-terminal record is a no-op that returns its existing state, so
// repeated approval requests are safe. An action-less record cannot be
// approved; there is nothing to commit.
func (g *Gate) Approve(ctx context.Context, id string) (*model.PendingAction, error) {
	pending, err := g.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}

	if pending.Status.Terminal() {
		g.logger.Debug("approve on terminal record is a no-op",
			"pending_id", id, "status", pending.Status)
		return pending, nil
	}

	if pending.Action == nil {
		return nil, fmt.Errorf("cannot approve %s: %w", id, common.ErrNullAction)
	}

	transitioned, err := g.store.TransitionPendingStatus(ctx, id, model.StatusApproved)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Lost the race to another reviewer; the existing terminal state wins
		return g.store.GetPendingAction(ctx, id)
	}

	pending.Status = model.StatusApproved
	g.logger.Info("approved pending action", "pending_id", id, "batch_id", pending.BatchID)
	return pending, nil
}

// Reject transitions a pending action to rejected, with the same no-op
// semantics for terminal records. Action-less records may be rejected.
func (g *Gate) Reject(ctx context.Context, id string) (*model.PendingAction, error) {
	pending, err := g.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}

	if pending.Status.Terminal() {
		g.logger.Debug("reject on terminal record is a no-op",
			"pending_id", id, "status", pending.Status)
		return pending, nil
	}

	transitioned, err := g.store.TransitionPendingStatus(ctx, id, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return g.store.GetPendingAction(ctx, id)
	}

	pending.Status = model.StatusRejected
	g.logger.Info("rejected pending action", "pending_id", id, "batch_id", pending.BatchID)
	return pending, nil
}

// BatchResult summarizes one bulk approval.
type BatchResult struct {
	Approved []model.PendingAction
	Skipped  []model.PendingAction
}

// ApproveBatch approves every pending member of the batch whose confidence
// meets the threshold. Members below the threshold, and members without an
// extracted action, are left pending for manual handling.
func (g *Gate) ApproveBatch(ctx context.Context, batchID string, threshold float64) (*BatchResult, error) {
	if batchID == "" {
		return nil, fmt.Errorf("batch id is required")
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %v", threshold)
	}

	status := model.StatusPending
	members, err := g.store.ListPendingActions(ctx, service.PendingFilter{
		BatchID: batchID,
		Status:  &status,
	})
	if err != nil {
		return nil, err
	}

	result := &BatchResult{}
	for i := range members {
		member := members[i]
		if member.Action == nil || member.Confidence < threshold {
			result.Skipped = append(result.Skipped, member)
			continue
		}

		transitioned, err := g.store.TransitionPendingStatus(ctx, member.ID, model.StatusApproved)
		if err != nil {
			return nil, fmt.Errorf("failed to approve %s in batch %s: %w", member.ID, batchID, err)
		}
		if !transitioned {
			// Raced with a concurrent reviewer; skip rather than double-count
			result.Skipped = append(result.Skipped, member)
			continue
		}

		member.Status = model.StatusApproved
		result.Approved = append(result.Approved, member)
	}

	g.logger.Info("bulk approval finished",
		"batch_id", batchID,
		"threshold", threshold,
		"approved", len(result.Approved),
		"skipped", len(result.Skipped))

	return result, nil
}
