// Package service defines the interfaces between the application's components.
package service

import (
	"context"
	"time"

	"github.com/minhpq/hoard/internal/model"
	"github.com/shopspring/decimal"
)

// PendingFilter narrows ListPendingActions results.
type PendingFilter struct {
	Status  *model.PendingStatus
	BatchID string
	Limit   int
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	StartDate        *time.Time
	EndDate          *time.Time
	Account          string
	ValuationPending *bool
	Limit            int
}

// Storage defines the contract for the persistence layer.
type Storage interface {
	// Pending action operations. CreatePendingAction is idempotent: a second
	// delivery with the same (batch_id, signature) returns the existing
	// record with created == false instead of inserting a duplicate.
	CreatePendingAction(ctx context.Context, action *model.PendingAction) (existing *model.PendingAction, created bool, err error)
	GetPendingAction(ctx context.Context, id string) (*model.PendingAction, error)
	ListPendingActions(ctx context.Context, filter PendingFilter) ([]model.PendingAction, error)
	// TransitionPendingStatus performs a compare-and-set from "pending" to a
	// terminal status. It reports false when the record was no longer pending.
	TransitionPendingStatus(ctx context.Context, id string, to model.PendingStatus) (bool, error)
	ListUncommittedApproved(ctx context.Context) ([]model.PendingAction, error)

	// Transaction operations. Committed transactions are immutable except for
	// late valuation backfill of fx columns, which never touches balances.
	GetTransactionByPendingAction(ctx context.Context, pendingActionID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransactionValuation(ctx context.Context, txn *model.Transaction) error

	// Vault operations.
	CreateVault(ctx context.Context, vault *model.Vault) error
	GetVault(ctx context.Context, name string) (*model.Vault, error)
	ListVaults(ctx context.Context) ([]model.Vault, error)
	GetVaultBalance(ctx context.Context, vault, asset string) (decimal.Decimal, error)
	ListVaultBalances(ctx context.Context, vault string) ([]model.VaultBalance, error)
	ListVaultEntries(ctx context.Context, vault string) ([]model.VaultEntry, error)

	// CommitLedger atomically inserts the transaction record and applies its
	// vault entries, updating running balances. Either everything is visible
	// or nothing is.
	CommitLedger(ctx context.Context, txn *model.Transaction, entries []model.VaultEntry) error

	// Rate cache operations. SaveRate is append-only and ignores duplicates.
	GetRate(ctx context.Context, from, to string, date time.Time) (*model.Rate, error)
	SaveRate(ctx context.Context, rate *model.Rate) error

	// Grounding support.
	ListKnownTags(ctx context.Context) ([]string, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations against external
// providers.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
