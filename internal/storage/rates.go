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

// GetRate returns the cached rate for a currency pair on a given day, or
// ErrNotFound on a cache miss. When several sources resolved the same key,
// the most recently cached one wins.
func (s *SQLiteStorage) GetRate(ctx context.Context, from, to string, date time.Time) (*model.Rate, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(from, "from"); err != nil {
		return nil, err
	}
	if err := validateString(to, "to"); err != nil {
		return nil, err
	}

	var r model.Rate
	var rateDate, raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT from_currency, to_currency, rate_date, source, rate, created_at
		FROM rates
		WHERE from_currency = ? AND to_currency = ? AND rate_date = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, from, to, date.Format(model.RateDateLayout)).Scan(&r.From, &r.To, &rateDate, &r.Source, &raw, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rate %s/%s: %w", from, to, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}

	if r.Date, err = time.Parse(model.RateDateLayout, rateDate); err != nil {
		return nil, fmt.Errorf("failed to decode rate date: %w", err)
	}
	if r.Rate, err = decimal.NewFromString(raw); err != nil {
		return nil, fmt.Errorf("failed to decode rate value: %w", err)
	}
	return &r, nil
}

// SaveRate caches a resolved rate. The cache is append-only: re-saving an
// existing (from, to, date, source) key is a no-op, never an overwrite.
func (s *SQLiteStorage) SaveRate(ctx context.Context, rate *model.Rate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRate(rate); err != nil {
		return err
	}

	if rate.CreatedAt.IsZero() {
		rate.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rates (from_currency, to_currency, rate_date, source, rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_currency, to_currency, rate_date, source) DO NOTHING
	`, rate.From, rate.To, rate.Date.Format(model.RateDateLayout), rate.Source, rate.Rate.String(), rate.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save rate: %w", err)
	}
	return nil
}

// ListKnownTags returns the distinct tags seen on committed transactions,
// used to ground extraction toward references that already exist.
func (s *SQLiteStorage) ListKnownTags(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tag FROM transactions WHERE tag != '' ORDER BY tag
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tags: %w", err)
	}
	return tags, nil
}
