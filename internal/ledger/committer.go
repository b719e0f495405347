package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
	"github.com/minhpq/hoard/internal/valuation"
)

// Committer applies approved pending actions to the ledger. Commit is
// exactly-once per pending action: the storage layer enforces a unique
// transaction per pending action id, and a second commit returns the
// transaction the first one created.
type Committer struct {
	store    service.Storage
	resolver *valuation.Resolver
	router   *Router
	logger   *slog.Logger
}

// NewCommitter creates a committer.
func NewCommitter(store service.Storage, resolver *valuation.Resolver, router *Router, logger *slog.Logger) *Committer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Committer{store: store, resolver: resolver, router: router, logger: logger}
}

// Commit turns one approved pending action into a committed transaction plus
// its vault entries, atomically. A failed commit (unknown vault, overdraft)
// leaves the pending action approved but uncommitted so it can be corrected
// and retried.
func (c *Committer) Commit(ctx context.Context, pending *model.PendingAction) (*model.Transaction, error) {
	if pending == nil {
		return nil, fmt.Errorf("pending action is required")
	}
	if pending.Status != model.StatusApproved {
		return nil, fmt.Errorf("cannot commit pending action %s with status %s", pending.ID, pending.Status)
	}
	if pending.Action == nil {
		return nil, fmt.Errorf("cannot commit %s: %w", pending.ID, common.ErrNullAction)
	}

	if existing, err := c.store.GetTransactionByPendingAction(ctx, pending.ID); err == nil {
		c.logger.Debug("pending action already committed",
			"pending_id", pending.ID, "transaction_id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	routed, err := c.router.Plan(pending.Action)
	if err != nil {
		return nil, fmt.Errorf("failed to route %s: %w", pending.ID, err)
	}

	if err := c.ensureVaults(ctx, routed.vaults); err != nil {
		return nil, err
	}

	val, err := c.resolver.Resolve(ctx, routed.txn.Asset, routed.txn.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve valuation for %s: %w", pending.ID, err)
	}

	txn := routed.txn
	txn.ID = uuid.NewString()
	txn.PendingActionID = pending.ID
	txn.CreatedAt = time.Now().UTC()
	applyValuation(&txn, routed.fee, val)

	entries := make([]model.VaultEntry, len(routed.entries))
	for i, entry := range routed.entries {
		entry.TransactionID = txn.ID
		if val.FxToUSD != nil {
			usd := entry.Amount.Mul(*val.FxToUSD)
			entry.USDValue = &usd
		}
		entries[i] = entry
	}

	if err := c.store.CommitLedger(ctx, &txn, entries); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			// Raced with a concurrent commit of the same pending action
			return c.store.GetTransactionByPendingAction(ctx, pending.ID)
		}
		return nil, err
	}

	c.logger.Info("committed transaction",
		"transaction_id", txn.ID,
		"pending_id", pending.ID,
		"type", txn.Type,
		"asset", txn.Asset,
		"quantity", txn.Quantity,
		"valuation_pending", txn.ValuationPending)

	return &txn, nil
}

// ensureVaults creates any routed vault that does not exist yet. Overdraft
// permission is only ever granted at creation; an existing vault keeps its
// configured flag.
func (c *Committer) ensureVaults(ctx context.Context, vaults []model.Vault) error {
	for _, vault := range vaults {
		_, err := c.store.GetVault(ctx, vault.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		v := vault
		if err := c.store.CreateVault(ctx, &v); err != nil && !errors.Is(err, common.ErrDuplicateEntry) {
			return fmt.Errorf("failed to create vault %s: %w", vault.Name, err)
		}
		c.logger.Info("created vault", "vault", vault.Name, "allow_overdraft", vault.AllowOverdraft)
	}
	return nil
}

// Revalue backfills fx and derived amounts on transactions committed while
// the rate provider was unavailable. Balances are untouched; they live in
// the entry's native asset.
func (c *Committer) Revalue(ctx context.Context) (int, error) {
	pendingOnly := true
	txns, err := c.store.ListTransactions(ctx, service.TransactionFilter{ValuationPending: &pendingOnly})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range txns {
		txn := txns[i]
		val, err := c.resolver.Resolve(ctx, txn.Asset, txn.Date)
		if err != nil {
			return resolved, fmt.Errorf("failed to revalue transaction %s: %w", txn.ID, err)
		}
		if val.Pending {
			continue
		}

		// The local-currency fee is not stored, so backfill covers the
		// transaction amount only.
		applyValuation(&txn, decimal.Zero, val)
		if err := c.store.UpdateTransactionValuation(ctx, &txn); err != nil {
			return resolved, err
		}
		resolved++
		c.logger.Info("revalued transaction", "transaction_id", txn.ID, "asset", txn.Asset)
	}

	return resolved, nil
}

// applyValuation derives the USD and VND views of a transaction from its
// quantity, fee, and resolved rates.
func applyValuation(txn *model.Transaction, fee decimal.Decimal, val *valuation.Valuation) {
	txn.FxToUSD = val.FxToUSD
	txn.FxToVND = val.FxToVND
	txn.ValuationPending = val.Pending

	if val.FxToUSD != nil {
		amount := txn.Quantity.Mul(*val.FxToUSD)
		txn.AmountUSD = &amount
		if fee.Sign() > 0 {
			f := fee.Mul(*val.FxToUSD)
			txn.FeeUSD = &f
		}
	}
	if val.FxToVND != nil {
		amount := txn.Quantity.Mul(*val.FxToVND)
		txn.AmountVND = &amount
		if fee.Sign() > 0 {
			f := fee.Mul(*val.FxToVND)
			txn.FeeVND = &f
		}
	}
}
