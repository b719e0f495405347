package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS pending_actions (
					id TEXT PRIMARY KEY,
					batch_id TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					action TEXT,
					raw_text TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending',
					signature TEXT NOT NULL,
					meta TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(batch_id, signature)
				)`,
				`CREATE INDEX idx_pending_actions_status ON pending_actions(status)`,
				`CREATE INDEX idx_pending_actions_batch ON pending_actions(batch_id)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					pending_action_id TEXT NOT NULL UNIQUE REFERENCES pending_actions(id),
					date DATETIME NOT NULL,
					type TEXT NOT NULL,
					asset TEXT NOT NULL,
					account TEXT NOT NULL,
					counterparty TEXT NOT NULL DEFAULT '',
					tag TEXT NOT NULL DEFAULT '',
					note TEXT NOT NULL DEFAULT '',
					quantity TEXT NOT NULL,
					price_local TEXT NOT NULL,
					local_currency TEXT NOT NULL,
					fx_to_usd TEXT,
					fx_to_vnd TEXT,
					amount_usd TEXT,
					amount_vnd TEXT,
					fee_usd TEXT,
					fee_vnd TEXT,
					valuation_pending INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,

				`CREATE TABLE IF NOT EXISTS vaults (
					name TEXT PRIMARY KEY,
					allow_overdraft INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS vault_entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					vault_name TEXT NOT NULL REFERENCES vaults(name),
					asset TEXT NOT NULL,
					direction TEXT NOT NULL,
					amount TEXT NOT NULL,
					usd_value TEXT,
					transaction_id TEXT NOT NULL REFERENCES transactions(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS vault_balances (
					vault_name TEXT NOT NULL,
					asset TEXT NOT NULL,
					balance TEXT NOT NULL,
					PRIMARY KEY (vault_name, asset)
				)`,

				`CREATE TABLE IF NOT EXISTS rates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					from_currency TEXT NOT NULL,
					to_currency TEXT NOT NULL,
					rate_date TEXT NOT NULL,
					source TEXT NOT NULL,
					rate TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(from_currency, to_currency, rate_date, source)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Index vault entries and pending valuations",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_vault_entries_vault ON vault_entries(vault_name, asset)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_valuation_pending ON transactions(valuation_pending) WHERE valuation_pending = 1`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Index transaction tags for grounding lookups",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_transactions_tag ON transactions(tag) WHERE tag != ''`)
			return err
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
