package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
)

func stageApproved(t *testing.T, store *SQLiteStorage, i int) *model.PendingAction {
	t.Helper()
	ctx := context.Background()

	pending := makeTestPending(i, "batch-1")
	if _, _, err := store.CreatePendingAction(ctx, pending); err != nil {
		t.Fatalf("Failed to create pending action: %v", err)
	}
	if _, err := store.TransitionPendingStatus(ctx, pending.ID, model.StatusApproved); err != nil {
		t.Fatalf("Failed to approve: %v", err)
	}
	return pending
}

func TestCommitLedgerAppliesAtomically(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mustCreateVault(t, store, "Bank", false)
	pending := stageApproved(t, store, 1)

	// Seed a balance
	seed := stageApproved(t, store, 2)
	err := store.CommitLedger(ctx, makeTestTransaction("txn-seed", seed.ID),
		[]model.VaultEntry{depositEntry("Bank", "VND", 500000)})
	if err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	err = store.CommitLedger(ctx, makeTestTransaction("txn-1", pending.ID),
		[]model.VaultEntry{withdrawEntry("Bank", "VND", 120000)})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	balance, err := store.GetVaultBalance(ctx, "Bank", "VND")
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if balance.String() != "380000" {
		t.Errorf("Balance = %s, want 380000", balance)
	}

	entries, err := store.ListVaultEntries(ctx, "Bank")
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[1].TransactionID != "txn-1" {
		t.Errorf("entry TransactionID = %s, want txn-1", entries[1].TransactionID)
	}

	got, err := store.GetTransactionByPendingAction(ctx, pending.ID)
	if err != nil {
		t.Fatalf("Failed to get transaction: %v", err)
	}
	if got.ID != "txn-1" {
		t.Errorf("Transaction ID = %s, want txn-1", got.ID)
	}
}

func TestCommitLedgerOverdraftRejected(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mustCreateVault(t, store, "Bank", false)
	pending := stageApproved(t, store, 1)

	err := store.CommitLedger(ctx, makeTestTransaction("txn-1", pending.ID),
		[]model.VaultEntry{withdrawEntry("Bank", "VND", 120000)})
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// Nothing may be partially applied
	if _, err := store.GetTransactionByPendingAction(ctx, pending.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected no transaction after failed commit, got err = %v", err)
	}
	entries, err := store.ListVaultEntries(ctx, "Bank")
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
	balance, err := store.GetVaultBalance(ctx, "Bank", "VND")
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Balance = %s, want 0", balance)
	}
}

func TestCommitLedgerOverdraftAllowed(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mustCreateVault(t, store, "Borrowings", true)
	pending := stageApproved(t, store, 1)

	err := store.CommitLedger(ctx, makeTestTransaction("txn-1", pending.ID),
		[]model.VaultEntry{withdrawEntry("Borrowings", "VND", 2000000)})
	if err != nil {
		t.Fatalf("Overdraft-allowed withdraw failed: %v", err)
	}

	balance, err := store.GetVaultBalance(ctx, "Borrowings", "VND")
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if balance.String() != "-2000000" {
		t.Errorf("Balance = %s, want -2000000", balance)
	}
}

func TestCommitLedgerUnknownVault(t *testing.T) {
	store := createTestStorage(t)
	pending := stageApproved(t, store, 1)

	err := store.CommitLedger(context.Background(), makeTestTransaction("txn-1", pending.ID),
		[]model.VaultEntry{depositEntry("Nowhere", "VND", 1000)})
	if !errors.Is(err, common.ErrUnknownVault) {
		t.Fatalf("err = %v, want ErrUnknownVault", err)
	}
}

func TestCommitLedgerExactlyOnce(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mustCreateVault(t, store, "Bank", false)
	pending := stageApproved(t, store, 1)

	err := store.CommitLedger(ctx, makeTestTransaction("txn-1", pending.ID),
		[]model.VaultEntry{depositEntry("Bank", "VND", 100000)})
	if err != nil {
		t.Fatalf("First commit failed: %v", err)
	}

	err = store.CommitLedger(ctx, makeTestTransaction("txn-2", pending.ID),
		[]model.VaultEntry{depositEntry("Bank", "VND", 100000)})
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}

	// The duplicate attempt must not double-apply the balance
	balance, err := store.GetVaultBalance(ctx, "Bank", "VND")
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if balance.String() != "100000" {
		t.Errorf("Balance = %s, want 100000", balance)
	}
}

func TestCommitLedgerMultiEntryTransfer(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	mustCreateVault(t, store, "Bank", false)
	mustCreateVault(t, store, "Cash", false)
	pending := stageApproved(t, store, 1)
	seed := stageApproved(t, store, 2)

	if err := store.CommitLedger(ctx, makeTestTransaction("txn-seed", seed.ID),
		[]model.VaultEntry{depositEntry("Bank", "VND", 300000)}); err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	txn := makeTestTransaction("txn-1", pending.ID)
	txn.Type = model.VerbTransfer
	err := store.CommitLedger(ctx, txn, []model.VaultEntry{
		withdrawEntry("Bank", "VND", 200000),
		depositEntry("Cash", "VND", 200000),
	})
	if err != nil {
		t.Fatalf("Transfer commit failed: %v", err)
	}

	bank, _ := store.GetVaultBalance(ctx, "Bank", "VND")
	cash, _ := store.GetVaultBalance(ctx, "Cash", "VND")
	if bank.String() != "100000" || cash.String() != "200000" {
		t.Errorf("Balances = %s/%s, want 100000/200000", bank, cash)
	}
}

func TestCreateVaultDuplicate(t *testing.T) {
	store := createTestStorage(t)

	mustCreateVault(t, store, "Bank", false)
	err := store.CreateVault(context.Background(), &model.Vault{Name: "Bank"})
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
}

func TestGetVaultBalanceZeroWhenEmpty(t *testing.T) {
	store := createTestStorage(t)

	mustCreateVault(t, store, "Bank", false)
	balance, err := store.GetVaultBalance(context.Background(), "Bank", "VND")
	if err != nil {
		t.Fatalf("Failed to get balance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Balance = %s, want 0", balance)
	}
}
