package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/minhpq/hoard/internal/model"
)

// Helper function to create migrated test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return store
}

func makeTestPending(i int, batchID string) *model.PendingAction {
	amount := decimal.NewFromInt(int64(10000 * (i + 1)))
	return &model.PendingAction{
		ID:      fmt.Sprintf("pending-%03d", i),
		BatchID: batchID,
		Source:  model.SourceText,
		Action: &model.Action{
			Verb: model.VerbSpend,
			Params: model.SpendParams{
				Amount:   amount,
				Currency: "VND",
				Date:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		RawText:    fmt.Sprintf("spend %s", amount),
		Confidence: 0.9,
		Status:     model.StatusPending,
		Signature:  fmt.Sprintf("sig-%03d", i),
	}
}

func makeTestTransaction(id, pendingID string) *model.Transaction {
	return &model.Transaction{
		ID:              id,
		PendingActionID: pendingID,
		Type:            model.VerbSpend,
		Asset:           "VND",
		Account:         "Bank",
		Quantity:        decimal.NewFromInt(120000),
		PriceLocal:      decimal.NewFromInt(120000),
		LocalCurrency:   "VND",
		Date:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Now().UTC(),
	}
}

func mustCreateVault(t *testing.T, store *SQLiteStorage, name string, allowOverdraft bool) {
	t.Helper()
	err := store.CreateVault(context.Background(), &model.Vault{Name: name, AllowOverdraft: allowOverdraft})
	if err != nil {
		t.Fatalf("Failed to create vault %s: %v", name, err)
	}
}

func depositEntry(vault, asset string, amount int64) model.VaultEntry {
	return model.VaultEntry{
		Vault:     vault,
		Asset:     asset,
		Direction: model.EntryDeposit,
		Amount:    decimal.NewFromInt(amount),
	}
}

func withdrawEntry(vault, asset string, amount int64) model.VaultEntry {
	return model.VaultEntry{
		Vault:     vault,
		Asset:     asset,
		Direction: model.EntryWithdraw,
		Amount:    decimal.NewFromInt(amount),
	}
}
