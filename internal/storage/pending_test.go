package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

func TestCreateAndGetPendingAction(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	pending := makeTestPending(1, "batch-1")
	pending.Meta = map[string]string{"bank_ref": "TX1"}

	created, wasCreated, err := store.CreatePendingAction(ctx, pending)
	if err != nil {
		t.Fatalf("Failed to create pending action: %v", err)
	}
	if !wasCreated {
		t.Fatal("Expected created=true for first insert")
	}

	got, err := store.GetPendingAction(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get pending action: %v", err)
	}
	if got.BatchID != "batch-1" {
		t.Errorf("BatchID = %q, want batch-1", got.BatchID)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.Action == nil || got.Action.Verb != model.VerbSpend {
		t.Errorf("Action round-trip failed: %+v", got.Action)
	}
	if got.Meta["bank_ref"] != "TX1" {
		t.Errorf("Meta round-trip failed: %+v", got.Meta)
	}

	params, ok := got.Action.Params.(model.SpendParams)
	if !ok {
		t.Fatalf("Params type = %T, want SpendParams", got.Action.Params)
	}
	if params.Amount.String() != "20000" {
		t.Errorf("Amount = %s, want 20000", params.Amount)
	}
}

func TestCreatePendingActionDuplicate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := makeTestPending(1, "batch-1")
	if _, _, err := store.CreatePendingAction(ctx, first); err != nil {
		t.Fatalf("Failed to create pending action: %v", err)
	}

	// Same batch and signature, different id: duplicate delivery
	dup := makeTestPending(2, "batch-1")
	dup.Signature = first.Signature

	got, created, err := store.CreatePendingAction(ctx, dup)
	if err != nil {
		t.Fatalf("Duplicate create should not error: %v", err)
	}
	if created {
		t.Fatal("Expected created=false for duplicate delivery")
	}
	if got.ID != first.ID {
		t.Errorf("Duplicate returned id %s, want %s", got.ID, first.ID)
	}

	// Same signature in a different batch is a fresh record
	other := makeTestPending(3, "batch-2")
	other.Signature = first.Signature
	_, created, err = store.CreatePendingAction(ctx, other)
	if err != nil {
		t.Fatalf("Cross-batch create failed: %v", err)
	}
	if !created {
		t.Fatal("Expected created=true in a different batch")
	}
}

func TestCreatePendingActionNullAction(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	pending := makeTestPending(1, "batch-1")
	pending.Action = nil
	pending.Confidence = 0
	pending.Meta = map[string]string{"reason": "unknown verb \"donate\""}

	if _, _, err := store.CreatePendingAction(ctx, pending); err != nil {
		t.Fatalf("Failed to create action-less pending: %v", err)
	}

	got, err := store.GetPendingAction(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Failed to get pending action: %v", err)
	}
	if got.Action != nil {
		t.Errorf("Expected nil action, got %+v", got.Action)
	}
	if got.Meta["reason"] == "" {
		t.Error("Expected failure reason in meta")
	}
}

func TestGetPendingActionNotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetPendingAction(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListPendingActionsFilters(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.CreatePendingAction(ctx, makeTestPending(i, "batch-1")); err != nil {
			t.Fatalf("Failed to create pending action: %v", err)
		}
	}
	if _, _, err := store.CreatePendingAction(ctx, makeTestPending(3, "batch-2")); err != nil {
		t.Fatalf("Failed to create pending action: %v", err)
	}

	if _, err := store.TransitionPendingStatus(ctx, "pending-000", model.StatusRejected); err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}

	all, err := store.ListPendingActions(ctx, service.PendingFilter{})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("len(all) = %d, want 4", len(all))
	}

	batch1, err := store.ListPendingActions(ctx, service.PendingFilter{BatchID: "batch-1"})
	if err != nil {
		t.Fatalf("Failed to list batch: %v", err)
	}
	if len(batch1) != 3 {
		t.Errorf("len(batch1) = %d, want 3", len(batch1))
	}

	status := model.StatusPending
	open, err := store.ListPendingActions(ctx, service.PendingFilter{BatchID: "batch-1", Status: &status})
	if err != nil {
		t.Fatalf("Failed to list by status: %v", err)
	}
	if len(open) != 2 {
		t.Errorf("len(open) = %d, want 2", len(open))
	}

	limited, err := store.ListPendingActions(ctx, service.PendingFilter{Limit: 2})
	if err != nil {
		t.Fatalf("Failed to list with limit: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("len(limited) = %d, want 2", len(limited))
	}
}

func TestTransitionPendingStatus(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	pending := makeTestPending(1, "batch-1")
	if _, _, err := store.CreatePendingAction(ctx, pending); err != nil {
		t.Fatalf("Failed to create pending action: %v", err)
	}

	ok, err := store.TransitionPendingStatus(ctx, pending.ID, model.StatusApproved)
	if err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}
	if !ok {
		t.Fatal("Expected first transition to succeed")
	}

	// Terminal records never move again
	ok, err = store.TransitionPendingStatus(ctx, pending.ID, model.StatusRejected)
	if err != nil {
		t.Fatalf("Second transition errored: %v", err)
	}
	if ok {
		t.Fatal("Expected transition on terminal record to report false")
	}

	got, err := store.GetPendingAction(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Failed to get pending action: %v", err)
	}
	if got.Status != model.StatusApproved {
		t.Errorf("Status = %q, want approved", got.Status)
	}
}

func TestTransitionPendingStatusRejectsNonTerminal(t *testing.T) {
	store := createTestStorage(t)

	if _, err := store.TransitionPendingStatus(context.Background(), "any", model.StatusPending); err == nil {
		t.Fatal("Expected error transitioning to pending")
	}
}

func TestListUncommittedApproved(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	committed := makeTestPending(1, "batch-1")
	stuck := makeTestPending(2, "batch-1")
	for _, p := range []*model.PendingAction{committed, stuck} {
		if _, _, err := store.CreatePendingAction(ctx, p); err != nil {
			t.Fatalf("Failed to create pending action: %v", err)
		}
		if _, err := store.TransitionPendingStatus(ctx, p.ID, model.StatusApproved); err != nil {
			t.Fatalf("Failed to approve: %v", err)
		}
	}

	mustCreateVault(t, store, "Bank", false)
	err := store.CommitLedger(ctx, makeTestTransaction("txn-1", committed.ID),
		[]model.VaultEntry{depositEntry("Bank", "VND", 120000)})
	if err != nil {
		t.Fatalf("Failed to commit ledger: %v", err)
	}

	uncommitted, err := store.ListUncommittedApproved(ctx)
	if err != nil {
		t.Fatalf("Failed to list uncommitted: %v", err)
	}
	if len(uncommitted) != 1 {
		t.Fatalf("len(uncommitted) = %d, want 1", len(uncommitted))
	}
	if uncommitted[0].ID != stuck.ID {
		t.Errorf("uncommitted[0].ID = %s, want %s", uncommitted[0].ID, stuck.ID)
	}
}
