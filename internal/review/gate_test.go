package review

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/storage"
)

func newTestGate(t *testing.T) (*Gate, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	return NewGate(store, nil), store
}

func stagePending(t *testing.T, store *storage.SQLiteStorage, i int, batchID string, confidence float64, withAction bool) *model.PendingAction {
	t.Helper()

	pending := &model.PendingAction{
		ID:         fmt.Sprintf("pending-%03d", i),
		BatchID:    batchID,
		Source:     model.SourceText,
		RawText:    "lunch 120k",
		Confidence: confidence,
		Status:     model.StatusPending,
		Signature:  fmt.Sprintf("sig-%03d", i),
	}
	if withAction {
		pending.Action = &model.Action{
			Verb: model.VerbSpend,
			Params: model.SpendParams{
				Amount:   decimal.NewFromInt(120000),
				Currency: "VND",
				Date:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		}
	}

	_, _, err := store.CreatePendingAction(context.Background(), pending)
	require.NoError(t, err)
	return pending
}

func TestApprove(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	pending := stagePending(t, store, 1, "batch-1", 0.9, true)

	got, err := gate.Approve(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	stored, err := store.GetPendingAction(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
}

func TestApproveIsIdempotent(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	pending := stagePending(t, store, 1, "batch-1", 0.9, true)

	_, err := gate.Approve(ctx, pending.ID)
	require.NoError(t, err)

	again, err := gate.Approve(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, again.Status)
}

func TestApproveAfterRejectIsNoOp(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	pending := stagePending(t, store, 1, "batch-1", 0.9, true)

	rejected, err := gate.Reject(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	// Terminal state wins; no error, no transition
	got, err := gate.Approve(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
}

func TestApproveNullAction(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	pending := stagePending(t, store, 1, "batch-1", 0, false)

	_, err := gate.Approve(ctx, pending.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNullAction)

	// Rejecting an action-less record is fine
	got, err := gate.Reject(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
}

func TestApproveUnknownID(t *testing.T) {
	gate, _ := newTestGate(t)

	_, err := gate.Approve(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApproveBatch(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	confident := stagePending(t, store, 1, "batch-1", 0.95, true)
	shaky := stagePending(t, store, 2, "batch-1", 0.4, true)
	broken := stagePending(t, store, 3, "batch-1", 0, false)
	stagePending(t, store, 4, "batch-2", 0.99, true)

	result, err := gate.ApproveBatch(ctx, "batch-1", 0.8)
	require.NoError(t, err)

	require.Len(t, result.Approved, 1)
	assert.Equal(t, confident.ID, result.Approved[0].ID)
	assert.Len(t, result.Skipped, 2)

	// Skipped members stay pending for manual handling
	for _, id := range []string{shaky.ID, broken.ID} {
		got, err := store.GetPendingAction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, got.Status)
	}

	// Other batches are untouched
	other, err := store.GetPendingAction(ctx, "pending-004")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, other.Status)
}

func TestApproveBatchSkipsTerminalMembers(t *testing.T) {
	gate, store := newTestGate(t)
	ctx := context.Background()

	first := stagePending(t, store, 1, "batch-1", 0.9, true)
	stagePending(t, store, 2, "batch-1", 0.9, true)

	_, err := gate.Reject(ctx, first.ID)
	require.NoError(t, err)

	result, err := gate.ApproveBatch(ctx, "batch-1", 0.5)
	require.NoError(t, err)
	assert.Len(t, result.Approved, 1)
}

func TestApproveBatchValidation(t *testing.T) {
	gate, _ := newTestGate(t)

	_, err := gate.ApproveBatch(context.Background(), "", 0.5)
	require.Error(t, err)

	_, err = gate.ApproveBatch(context.Background(), "batch-1", 1.5)
	require.Error(t, err)
}
