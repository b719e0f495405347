package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/minhpq/hoard/internal/model"
)

// Validation errors.
var (
	ErrNilContext           = errors.New("context cannot be nil")
	ErrEmptyString          = errors.New("string parameter cannot be empty")
	ErrNilParameter         = errors.New("parameter cannot be nil")
	ErrInvalidPendingAction = errors.New("invalid pending action")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrInvalidVaultEntry    = errors.New("invalid vault entry")
	ErrInvalidRate          = errors.New("invalid rate")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePendingAction validates a pending action before persistence.
func validatePendingAction(action *model.PendingAction) error {
	if action == nil {
		return fmt.Errorf("%w: pending action", ErrNilParameter)
	}
	if action.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPendingAction)
	}
	if !action.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidPendingAction, action.Source)
	}
	if action.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidPendingAction)
	}
	if action.Confidence < 0 || action.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidPendingAction)
	}
	switch action.Status {
	case model.StatusPending, model.StatusApproved, model.StatusRejected:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPendingAction, action.Status)
	}
	return nil
}

// validateTransactionRecord validates a ledger transaction before insert.
func validateTransactionRecord(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.PendingActionID == "" {
		return fmt.Errorf("%w: missing pending action ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if !txn.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, txn.Type)
	}
	if txn.Account == "" {
		return fmt.Errorf("%w: missing account", ErrInvalidTransaction)
	}
	if txn.Asset == "" {
		return fmt.Errorf("%w: missing asset", ErrInvalidTransaction)
	}
	return nil
}

// validateVaultEntry validates one vault entry before insert.
func validateVaultEntry(entry *model.VaultEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: vault entry", ErrNilParameter)
	}
	if entry.Vault == "" {
		return fmt.Errorf("%w: missing vault name", ErrInvalidVaultEntry)
	}
	if entry.Asset == "" {
		return fmt.Errorf("%w: missing asset", ErrInvalidVaultEntry)
	}
	switch entry.Direction {
	case model.EntryDeposit, model.EntryWithdraw:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidVaultEntry, entry.Direction)
	}
	if entry.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidVaultEntry)
	}
	return nil
}

// validateRate validates a rate cache record.
func validateRate(rate *model.Rate) error {
	if rate == nil {
		return fmt.Errorf("%w: rate", ErrNilParameter)
	}
	if rate.From == "" || rate.To == "" {
		return fmt.Errorf("%w: missing currency pair", ErrInvalidRate)
	}
	if rate.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidRate)
	}
	if rate.Source == "" {
		return fmt.Errorf("%w: missing source", ErrInvalidRate)
	}
	if !rate.Rate.IsPositive() {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidRate)
	}
	return nil
}
