package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
	"github.com/shopspring/decimal"
)

const transactionSelect = `
	SELECT id, pending_action_id, date, type, asset, account,
	       counterparty, tag, note, quantity, price_local, local_currency,
	       fx_to_usd, fx_to_vnd, amount_usd, amount_vnd, fee_usd, fee_vnd,
	       valuation_pending, created_at
	FROM transactions`

func (s *SQLiteStorage) insertTransactionTx(ctx context.Context, tx *sql.Tx, txn *model.Transaction) error {
	if err := validateTransactionRecord(txn); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, pending_action_id, date, type, asset, account,
			counterparty, tag, note, quantity, price_local, local_currency,
			fx_to_usd, fx_to_vnd, amount_usd, amount_vnd, fee_usd, fee_vnd,
			valuation_pending, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID,
		txn.PendingActionID,
		txn.Date,
		string(txn.Type),
		txn.Asset,
		txn.Account,
		txn.Counterparty,
		txn.Tag,
		txn.Note,
		txn.Quantity.String(),
		txn.PriceLocal.String(),
		txn.LocalCurrency,
		nullDecimal(txn.FxToUSD),
		nullDecimal(txn.FxToVND),
		nullDecimal(txn.AmountUSD),
		nullDecimal(txn.AmountVND),
		nullDecimal(txn.FeeUSD),
		nullDecimal(txn.FeeVND),
		txn.ValuationPending,
		txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransactionByPendingAction returns the committed transaction for a
// pending action, or ErrNotFound when the approval has not been committed.
func (s *SQLiteStorage) GetTransactionByPendingAction(ctx context.Context, pendingActionID string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(pendingActionID, "pendingActionID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, transactionSelect+` WHERE pending_action_id = ?`, pendingActionID)
	return scanTransaction(row)
}

// ListTransactions returns committed transactions matching the filter, newest
// first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := transactionSelect
	var conds []string
	var args []any
	if filter.StartDate != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *filter.EndDate)
	}
	if filter.Account != "" {
		conds = append(conds, "account = ?")
		args = append(args, filter.Account)
	}
	if filter.ValuationPending != nil {
		conds = append(conds, "valuation_pending = ?")
		args = append(args, *filter.ValuationPending)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}

// UpdateTransactionValuation backfills fx and derived amount columns on a
// committed transaction. Valuation columns are metadata, never balance
// inputs, so this is the single permitted post-commit update.
func (s *SQLiteStorage) UpdateTransactionValuation(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(txn.ID, "txn.ID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET
			fx_to_usd = ?, fx_to_vnd = ?, amount_usd = ?, amount_vnd = ?,
			fee_usd = ?, fee_vnd = ?, valuation_pending = ?
		WHERE id = ?
	`,
		nullDecimal(txn.FxToUSD),
		nullDecimal(txn.FxToVND),
		nullDecimal(txn.AmountUSD),
		nullDecimal(txn.AmountVND),
		nullDecimal(txn.FeeUSD),
		nullDecimal(txn.FeeVND),
		txn.ValuationPending,
		txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction valuation: %w", err)
	}
	return nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var typ string
	var quantity, priceLocal string
	var fxUSD, fxVND, amtUSD, amtVND, feeUSD, feeVND sql.NullString

	err := row.Scan(&t.ID, &t.PendingActionID, &t.Date, &typ, &t.Asset, &t.Account,
		&t.Counterparty, &t.Tag, &t.Note, &quantity, &priceLocal, &t.LocalCurrency,
		&fxUSD, &fxVND, &amtUSD, &amtVND, &feeUSD, &feeVND,
		&t.ValuationPending, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	t.Type = model.Verb(typ)
	if t.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("failed to decode quantity for %s: %w", t.ID, err)
	}
	if t.PriceLocal, err = decimal.NewFromString(priceLocal); err != nil {
		return nil, fmt.Errorf("failed to decode price for %s: %w", t.ID, err)
	}
	if t.FxToUSD, err = decodeNullDecimal(fxUSD); err != nil {
		return nil, fmt.Errorf("failed to decode fx_to_usd for %s: %w", t.ID, err)
	}
	if t.FxToVND, err = decodeNullDecimal(fxVND); err != nil {
		return nil, fmt.Errorf("failed to decode fx_to_vnd for %s: %w", t.ID, err)
	}
	if t.AmountUSD, err = decodeNullDecimal(amtUSD); err != nil {
		return nil, fmt.Errorf("failed to decode amount_usd for %s: %w", t.ID, err)
	}
	if t.AmountVND, err = decodeNullDecimal(amtVND); err != nil {
		return nil, fmt.Errorf("failed to decode amount_vnd for %s: %w", t.ID, err)
	}
	if t.FeeUSD, err = decodeNullDecimal(feeUSD); err != nil {
		return nil, fmt.Errorf("failed to decode fee_usd for %s: %w", t.ID, err)
	}
	if t.FeeVND, err = decodeNullDecimal(feeVND); err != nil {
		return nil, fmt.Errorf("failed to decode fee_vnd for %s: %w", t.ID, err)
	}

	return &t, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decodeNullDecimal(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
