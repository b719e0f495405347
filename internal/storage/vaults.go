package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/shopspring/decimal"
)

// CreateVault registers a new vault.
func (s *SQLiteStorage) CreateVault(ctx context.Context, vault *model.Vault) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if vault == nil {
		return fmt.Errorf("%w: vault", ErrNilParameter)
	}
	if err := validateString(vault.Name, "vault.Name"); err != nil {
		return err
	}

	if vault.CreatedAt.IsZero() {
		vault.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vaults (name, allow_overdraft, created_at) VALUES (?, ?, ?)
	`, vault.Name, vault.AllowOverdraft, vault.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("vault %s: %w", vault.Name, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create vault: %w", err)
	}
	return nil
}

// GetVault returns a vault by name.
func (s *SQLiteStorage) GetVault(ctx context.Context, name string) (*model.Vault, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var v model.Vault
	err := s.db.QueryRowContext(ctx, `
		SELECT name, allow_overdraft, created_at FROM vaults WHERE name = ?
	`, name).Scan(&v.Name, &v.AllowOverdraft, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vault %s: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}
	return &v, nil
}

// ListVaults returns all vaults ordered by name.
func (s *SQLiteStorage) ListVaults(ctx context.Context) ([]model.Vault, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, allow_overdraft, created_at FROM vaults ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Vault
	for rows.Next() {
		var v model.Vault
		if err := rows.Scan(&v.Name, &v.AllowOverdraft, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vault: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vaults: %w", err)
	}
	return out, nil
}

// GetVaultBalance returns the running balance of one asset within a vault.
// A vault with no entries for the asset has a zero balance.
func (s *SQLiteStorage) GetVaultBalance(ctx context.Context, vault, asset string) (decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return decimal.Zero, err
	}
	if err := validateString(vault, "vault"); err != nil {
		return decimal.Zero, err
	}
	if err := validateString(asset, "asset"); err != nil {
		return decimal.Zero, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM vault_balances WHERE vault_name = ? AND asset = ?
	`, vault, asset).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get vault balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance for %s/%s: %w", vault, asset, err)
	}
	return balance, nil
}

// ListVaultBalances returns all per-asset balances of a vault.
func (s *SQLiteStorage) ListVaultBalances(ctx context.Context, vault string) ([]model.VaultBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vault, "vault"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT vault_name, asset, balance FROM vault_balances WHERE vault_name = ? ORDER BY asset
	`, vault)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.VaultBalance
	for rows.Next() {
		var b model.VaultBalance
		var raw string
		if err := rows.Scan(&b.Vault, &b.Asset, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan vault balance: %w", err)
		}
		if b.Balance, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("failed to decode balance for %s/%s: %w", b.Vault, b.Asset, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vault balances: %w", err)
	}
	return out, nil
}

// ListVaultEntries returns a vault's entries in append order.
func (s *SQLiteStorage) ListVaultEntries(ctx context.Context, vault string) ([]model.VaultEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(vault, "vault"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vault_name, asset, direction, amount, usd_value, transaction_id, created_at
		FROM vault_entries WHERE vault_name = ? ORDER BY id
	`, vault)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.VaultEntry
	for rows.Next() {
		var e model.VaultEntry
		var direction, amount string
		var usdValue sql.NullString
		if err := rows.Scan(&e.ID, &e.Vault, &e.Asset, &direction, &amount, &usdValue, &e.TransactionID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vault entry: %w", err)
		}
		e.Direction = model.EntryDirection(direction)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to decode entry amount: %w", err)
		}
		if e.USDValue, err = decodeNullDecimal(usdValue); err != nil {
			return nil, fmt.Errorf("failed to decode entry usd value: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vault entries: %w", err)
	}
	return out, nil
}

// CommitLedger inserts the transaction record and applies its vault entries
// inside one database transaction. Balances are read, checked and rewritten
// under that transaction, so concurrent approvals touching the same vault
// cannot interleave, and a failed overdraft check leaves everything
// untouched. A duplicate commit for the same pending action is reported as
// common.ErrDuplicateEntry via the unique pending_action_id constraint.
func (s *SQLiteStorage) CommitLedger(ctx context.Context, txn *model.Transaction, entries []model.VaultEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactionRecord(txn); err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: entries", ErrNilParameter)
	}
	for i := range entries {
		if err := validateVaultEntry(&entries[i]); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insertTransactionTx(ctx, tx, txn); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pending action %s already committed: %w", txn.PendingActionID, common.ErrDuplicateEntry)
		}
		return err
	}

	for i := range entries {
		entries[i].TransactionID = txn.ID
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = txn.CreatedAt
		}
		if err := s.applyEntryTx(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger mutation: %w", err)
	}
	return nil
}

// applyEntryTx appends one entry and updates the vault's running balance.
func (s *SQLiteStorage) applyEntryTx(ctx context.Context, tx *sql.Tx, entry *model.VaultEntry) error {
	var allowOverdraft bool
	err := tx.QueryRowContext(ctx, `SELECT allow_overdraft FROM vaults WHERE name = ?`, entry.Vault).Scan(&allowOverdraft)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", common.ErrUnknownVault, entry.Vault)
	}
	if err != nil {
		return fmt.Errorf("failed to load vault %s: %w", entry.Vault, err)
	}

	balance := decimal.Zero
	var raw string
	err = tx.QueryRowContext(ctx, `
		SELECT balance FROM vault_balances WHERE vault_name = ? AND asset = ?
	`, entry.Vault, entry.Asset).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First entry for this asset
	case err != nil:
		return fmt.Errorf("failed to read balance for %s/%s: %w", entry.Vault, entry.Asset, err)
	default:
		if balance, err = decimal.NewFromString(raw); err != nil {
			return fmt.Errorf("failed to decode balance for %s/%s: %w", entry.Vault, entry.Asset, err)
		}
	}

	newBalance := balance.Add(entry.Signed())
	if newBalance.IsNegative() && !allowOverdraft {
		return fmt.Errorf("%w: vault %s balance %s %s would become %s",
			common.ErrInsufficientBalance, entry.Vault, balance, entry.Asset, newBalance)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_entries (vault_name, asset, direction, amount, usd_value, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Vault, entry.Asset, string(entry.Direction), entry.Amount.String(),
		nullDecimal(entry.USDValue), entry.TransactionID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append vault entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_balances (vault_name, asset, balance) VALUES (?, ?, ?)
		ON CONFLICT(vault_name, asset) DO UPDATE SET balance = excluded.balance
	`, entry.Vault, entry.Asset, newBalance.String())
	if err != nil {
		return fmt.Errorf("failed to update vault balance: %w", err)
	}

	return nil
}
