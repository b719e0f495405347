package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/service"
)

// CreatePendingAction stages a new pending action. Duplicate delivery of the
// same payload (same batch_id and signature) is detected inside the insert
// transaction and returns the already-staged record with created == false.
func (s *SQLiteStorage) CreatePendingAction(ctx context.Context, action *model.PendingAction) (*model.PendingAction, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validatePendingAction(action); err != nil {
		return nil, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.getPendingBySignatureTx(ctx, tx, action.BatchID, action.Signature)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	actionJSON, err := marshalAction(action.Action)
	if err != nil {
		return nil, false, err
	}
	metaJSON, err := marshalMeta(action.Meta)
	if err != nil {
		return nil, false, err
	}

	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_actions (
			id, batch_id, source, action, raw_text,
			confidence, status, signature, meta, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		action.ID,
		action.BatchID,
		string(action.Source),
		actionJSON,
		action.RawText,
		action.Confidence,
		string(action.Status),
		action.Signature,
		metaJSON,
		action.CreatedAt,
	)
	if err != nil {
		// A concurrent retry can slip between the check and the insert; the
		// unique constraint on (batch_id, signature) is the backstop.
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			dup, getErr := s.getPendingBySignature(ctx, action.BatchID, action.Signature)
			if getErr != nil {
				return nil, false, getErr
			}
			return dup, false, nil
		}
		return nil, false, fmt.Errorf("failed to insert pending action: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit pending action: %w", err)
	}

	return action, true, nil
}

// GetPendingAction returns a pending action by id.
func (s *SQLiteStorage) GetPendingAction(ctx context.Context, id string) (*model.PendingAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, pendingSelect+` WHERE id = ?`, id)
	return scanPendingAction(row)
}

// ListPendingActions returns pending actions matching the filter, newest first.
func (s *SQLiteStorage) ListPendingActions(ctx context.Context, filter service.PendingFilter) ([]model.PendingAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := pendingSelect
	var conds []string
	var args []any
	if filter.BatchID != "" {
		conds = append(conds, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanPendingActions(rows)
}

// TransitionPendingStatus moves a record from pending to a terminal status.
// The compare-and-set returns false when the record was no longer pending, so
// repeated approval requests are safe.
func (s *SQLiteStorage) TransitionPendingStatus(ctx context.Context, id string, to model.PendingStatus) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(id, "id"); err != nil {
		return false, err
	}
	if !to.Terminal() {
		return false, fmt.Errorf("%w: cannot transition to %q", ErrInvalidPendingAction, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions SET status = ? WHERE id = ? AND status = ?
	`, string(to), id, string(model.StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to transition pending action %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// ListUncommittedApproved returns approved pending actions that have no
// committed transaction yet, oldest first. These are approvals whose ledger
// commit failed and awaits manual correction.
func (s *SQLiteStorage) ListUncommittedApproved(ctx context.Context) ([]model.PendingAction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, pendingSelect+`
		WHERE status = ?
		  AND id NOT IN (SELECT pending_action_id FROM transactions)
		ORDER BY created_at, id
	`, string(model.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to list uncommitted approvals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanPendingActions(rows)
}

const pendingSelect = `
	SELECT id, batch_id, source, action, raw_text,
	       confidence, status, signature, meta, created_at
	FROM pending_actions`

func (s *SQLiteStorage) getPendingBySignature(ctx context.Context, batchID, signature string) (*model.PendingAction, error) {
	row := s.db.QueryRowContext(ctx, pendingSelect+` WHERE batch_id = ? AND signature = ?`, batchID, signature)
	return scanPendingAction(row)
}

func (s *SQLiteStorage) getPendingBySignatureTx(ctx context.Context, tx *sql.Tx, batchID, signature string) (*model.PendingAction, error) {
	row := tx.QueryRowContext(ctx, pendingSelect+` WHERE batch_id = ? AND signature = ?`, batchID, signature)
	return scanPendingAction(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingAction(row rowScanner) (*model.PendingAction, error) {
	var p model.PendingAction
	var actionJSON, metaJSON sql.NullString
	var source, status string

	err := row.Scan(&p.ID, &p.BatchID, &source, &actionJSON, &p.RawText,
		&p.Confidence, &status, &p.Signature, &metaJSON, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending action: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending action: %w", err)
	}

	p.Source = model.Source(source)
	p.Status = model.PendingStatus(status)

	if actionJSON.Valid && actionJSON.String != "" {
		var a model.Action
		if err := json.Unmarshal([]byte(actionJSON.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode stored action for %s: %w", p.ID, err)
		}
		p.Action = &a
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &p.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode stored meta for %s: %w", p.ID, err)
		}
	}

	return &p, nil
}

func scanPendingActions(rows *sql.Rows) ([]model.PendingAction, error) {
	var out []model.PendingAction
	for rows.Next() {
		p, err := scanPendingAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending actions: %w", err)
	}
	return out, nil
}

func marshalAction(action *model.Action) (sql.NullString, error) {
	if action == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(action)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode action: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalMeta(meta map[string]string) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode meta: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
