// Package model defines the core domain types shared across the application.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Verb identifies the kind of ledger mutation an action performs.
type Verb string

// The closed action taxonomy. Adding a verb means adding a variant here,
// a params type below, and a schema entry in the action package.
const (
	VerbSpend       Verb = "spend"
	VerbIncome      Verb = "income"
	VerbTransfer    Verb = "transfer"
	VerbStake       Verb = "stake"
	VerbUnstake     Verb = "unstake"
	VerbBorrow      Verb = "borrow"
	VerbRepayBorrow Verb = "repay_borrow"
)

// Valid reports whether v is a member of the taxonomy.
func (v Verb) Valid() bool {
	switch v {
	case VerbSpend, VerbIncome, VerbTransfer, VerbStake, VerbUnstake, VerbBorrow, VerbRepayBorrow:
		return true
	}
	return false
}

// Params is the per-verb parameter set of an Action.
type Params interface {
	isParams()
}

// Action is a tagged variant: a verb discriminant plus its typed parameters.
type Action struct {
	Verb   Verb
	Params Params
}

// SpendParams describes money leaving a vault to a counterparty.
type SpendParams struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Account      string          `json:"account,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Tag          string          `json:"tag,omitempty"`
	Note         string          `json:"note,omitempty"`
	Date         time.Time       `json:"date"`
	Fee          decimal.Decimal `json:"fee"`
}

// IncomeParams describes money entering a vault from a counterparty.
type IncomeParams struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Account      string          `json:"account,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
	Tag          string          `json:"tag,omitempty"`
	Note         string          `json:"note,omitempty"`
	Date         time.Time       `json:"date"`
}

// TransferParams moves money between two vaults.
type TransferParams struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	From     string          `json:"from"`
	To       string          `json:"to"`
	Note     string          `json:"note,omitempty"`
	Date     time.Time       `json:"date"`
	Fee      decimal.Decimal `json:"fee"`
}

// StakeParams locks a quantity of an asset out of its source vault.
type StakeParams struct {
	Quantity decimal.Decimal `json:"quantity"`
	Asset    string          `json:"asset"`
	Account  string          `json:"account"`
	Note     string          `json:"note,omitempty"`
	Date     time.Time       `json:"date"`
}

// UnstakeParams releases a previously staked quantity back to its vault.
type UnstakeParams struct {
	Quantity decimal.Decimal `json:"quantity"`
	Asset    string          `json:"asset"`
	Account  string          `json:"account"`
	Note     string          `json:"note,omitempty"`
	Date     time.Time       `json:"date"`
}

// BorrowParams records a loan received from a counterparty.
type BorrowParams struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Account      string          `json:"account,omitempty"`
	Counterparty string          `json:"counterparty"`
	Note         string          `json:"note,omitempty"`
	Date         time.Time       `json:"date"`
}

// RepayBorrowParams records a repayment against an outstanding loan.
type RepayBorrowParams struct {
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Account      string          `json:"account,omitempty"`
	Counterparty string          `json:"counterparty"`
	Note         string          `json:"note,omitempty"`
	Date         time.Time       `json:"date"`
}

func (SpendParams) isParams()       {}
func (IncomeParams) isParams()      {}
func (TransferParams) isParams()    {}
func (StakeParams) isParams()       {}
func (UnstakeParams) isParams()     {}
func (BorrowParams) isParams()      {}
func (RepayBorrowParams) isParams() {}

// actionEnvelope is the wire form of an Action.
type actionEnvelope struct {
	Verb   Verb            `json:"verb"`
	Params json.RawMessage `json:"params"`
}

// MarshalJSON encodes the action as {"verb": ..., "params": {...}}.
func (a Action) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s params: %w", a.Verb, err)
	}
	return json.Marshal(actionEnvelope{Verb: a.Verb, Params: params})
}

// UnmarshalJSON decodes the verb discriminant and dispatches to the matching
// params type.
func (a *Action) UnmarshalJSON(data []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal action envelope: %w", err)
	}
	if !env.Verb.Valid() {
		return fmt.Errorf("unknown action verb: %q", env.Verb)
	}

	var params Params
	var err error
	switch env.Verb {
	case VerbSpend:
		var p SpendParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	case VerbIncome:
		var p IncomeParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	case VerbTransfer:
		var p TransferParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	case VerbStake:
		var p StakeParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	case VerbUnstake:
		var p UnstakeParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	case VerbBorrow:
		var p BorrowParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	case VerbRepayBorrow:
		var p RepayBorrowParams
		err = json.Unmarshal(env.Params, &p)
		params = p
	}
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s params: %w", env.Verb, err)
	}

	a.Verb = env.Verb
	a.Params = params
	return nil
}

// Date returns the effective date of the action.
func (a Action) Date() time.Time {
	switch p := a.Params.(type) {
	case SpendParams:
		return p.Date
	case IncomeParams:
		return p.Date
	case TransferParams:
		return p.Date
	case StakeParams:
		return p.Date
	case UnstakeParams:
		return p.Date
	case BorrowParams:
		return p.Date
	case RepayBorrowParams:
		return p.Date
	}
	return time.Time{}
}
