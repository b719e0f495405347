package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable committed ledger record. Exactly one is created
// per approved PendingAction; corrections happen via new reversing
// transactions, never in-place edits. The fx and derived amount fields are nil
// when the rate could not be resolved at commit time, in which case
// ValuationPending is set and a later revaluation pass may fill them in.
type Transaction struct {
	Date             time.Time
	CreatedAt        time.Time
	FxToUSD          *decimal.Decimal
	FxToVND          *decimal.Decimal
	AmountUSD        *decimal.Decimal
	AmountVND        *decimal.Decimal
	FeeUSD           *decimal.Decimal
	FeeVND           *decimal.Decimal
	ID               string
	PendingActionID  string
	Asset            string
	Account          string
	Counterparty     string
	Tag              string
	Note             string
	LocalCurrency    string
	Type             Verb
	Quantity         decimal.Decimal
	PriceLocal       decimal.Decimal
	ValuationPending bool
}
