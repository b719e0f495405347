package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryDirection is the sign of a vault entry.
type EntryDirection string

// Entry directions.
const (
	EntryDeposit  EntryDirection = "deposit"
	EntryWithdraw EntryDirection = "withdraw"
)

// Vault is a named balance-bearing account. Balances are tracked per asset
// and updated only via appended entries. A vault that allows overdraft (e.g.
// a borrowings vault) may carry a negative balance.
type Vault struct {
	CreatedAt      time.Time
	Name           string
	AllowOverdraft bool
}

// VaultEntry is one signed balance delta. USDValue is the entry's USD value
// as of commit time when the rate was known, nil otherwise.
type VaultEntry struct {
	CreatedAt     time.Time
	USDValue      *decimal.Decimal
	Vault         string
	Asset         string
	TransactionID string
	Direction     EntryDirection
	Amount        decimal.Decimal
	ID            int64
}

// Signed returns the entry amount with its direction applied.
func (e VaultEntry) Signed() decimal.Decimal {
	if e.Direction == EntryWithdraw {
		return e.Amount.Neg()
	}
	return e.Amount
}

// VaultBalance is the running balance of one asset within a vault. It must
// always equal the signed sum of the vault's entries for that asset.
type VaultBalance struct {
	Vault   string
	Asset   string
	Balance decimal.Decimal
}
