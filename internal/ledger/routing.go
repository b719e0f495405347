// Package ledger turns approved pending actions into committed transactions
// and vault entries. Routing decides which vaults an action touches; the
// committer resolves valuation and applies everything in one storage
// transaction.
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/minhpq/hoard/internal/model"
)

// stakedVaultSuffix derives the lock-up vault name from the source account.
const stakedVaultSuffix = " Staked"

// Router maps verbs to vault movements. Spend-class verbs withdraw from the
// default spend vault and income-class verbs deposit to the default income
// vault unless the action names an explicit account.
type Router struct {
	spendVault  string
	incomeVault string
	borrowVault string
}

// NewRouter creates a router over the configured default vaults.
func NewRouter(spendVault, incomeVault, borrowVault string) (*Router, error) {
	if spendVault == "" || incomeVault == "" {
		return nil, fmt.Errorf("default spend and income vaults are required")
	}
	if borrowVault == "" {
		borrowVault = "Borrowings"
	}
	return &Router{
		spendVault:  spendVault,
		incomeVault: incomeVault,
		borrowVault: borrowVault,
	}, nil
}

// plan is a routed but not yet valued action: a transaction skeleton, the
// entries to append, and the vaults those entries require. Entry
// TransactionID and USDValue are filled in by the committer.
type plan struct {
	txn     model.Transaction
	entries []model.VaultEntry
	vaults  []model.Vault
	fee     decimal.Decimal
}

// Plan routes one action. The returned transaction skeleton carries
// everything except identity, valuation, and timestamps.
func (r *Router) Plan(action *model.Action) (*plan, error) {
	if action == nil {
		return nil, fmt.Errorf("action is required")
	}

	switch p := action.Params.(type) {
	case model.SpendParams:
		return r.planSpend(p), nil
	case model.IncomeParams:
		return r.planIncome(p), nil
	case model.TransferParams:
		return r.planTransfer(p)
	case model.StakeParams:
		return r.planStake(p), nil
	case model.UnstakeParams:
		return r.planUnstake(p), nil
	case model.BorrowParams:
		return r.planBorrow(p), nil
	case model.RepayBorrowParams:
		return r.planRepayBorrow(p), nil
	default:
		return nil, fmt.Errorf("no routing for verb %q", action.Verb)
	}
}

func orDefault(account, fallback string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		return fallback
	}
	return account
}

func (r *Router) planSpend(p model.SpendParams) *plan {
	vault := orDefault(p.Account, r.spendVault)
	outflow := p.Amount.Add(p.Fee)
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbSpend,
			Asset:         p.Currency,
			Quantity:      p.Amount,
			LocalCurrency: p.Currency,
			PriceLocal:    p.Amount,
			Account:       vault,
			Counterparty:  p.Counterparty,
			Tag:           p.Tag,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: vault, Asset: p.Currency, Direction: model.EntryWithdraw, Amount: outflow},
		},
		vaults: []model.Vault{{Name: vault}},
		fee:    p.Fee,
	}
}

func (r *Router) planIncome(p model.IncomeParams) *plan {
	vault := orDefault(p.Account, r.incomeVault)
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbIncome,
			Asset:         p.Currency,
			Quantity:      p.Amount,
			LocalCurrency: p.Currency,
			PriceLocal:    p.Amount,
			Account:       vault,
			Counterparty:  p.Counterparty,
			Tag:           p.Tag,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: vault, Asset: p.Currency, Direction: model.EntryDeposit, Amount: p.Amount},
		},
		vaults: []model.Vault{{Name: vault}},
	}
}

func (r *Router) planTransfer(p model.TransferParams) (*plan, error) {
	if p.From == p.To {
		return nil, fmt.Errorf("transfer source and destination must differ, got %q", p.From)
	}
	outflow := p.Amount.Add(p.Fee)
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbTransfer,
			Asset:         p.Currency,
			Quantity:      p.Amount,
			LocalCurrency: p.Currency,
			PriceLocal:    p.Amount,
			Account:       p.From,
			Counterparty:  p.To,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: p.From, Asset: p.Currency, Direction: model.EntryWithdraw, Amount: outflow},
			{Vault: p.To, Asset: p.Currency, Direction: model.EntryDeposit, Amount: p.Amount},
		},
		vaults: []model.Vault{{Name: p.From}, {Name: p.To}},
		fee:    p.Fee,
	}, nil
}

func (r *Router) planStake(p model.StakeParams) *plan {
	staked := p.Account + stakedVaultSuffix
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbStake,
			Asset:         p.Asset,
			Quantity:      p.Quantity,
			LocalCurrency: "USD",
			Account:       p.Account,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: p.Account, Asset: p.Asset, Direction: model.EntryWithdraw, Amount: p.Quantity},
			{Vault: staked, Asset: p.Asset, Direction: model.EntryDeposit, Amount: p.Quantity},
		},
		vaults: []model.Vault{{Name: p.Account}, {Name: staked}},
	}
}

func (r *Router) planUnstake(p model.UnstakeParams) *plan {
	staked := p.Account + stakedVaultSuffix
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbUnstake,
			Asset:         p.Asset,
			Quantity:      p.Quantity,
			LocalCurrency: "USD",
			Account:       p.Account,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: staked, Asset: p.Asset, Direction: model.EntryWithdraw, Amount: p.Quantity},
			{Vault: p.Account, Asset: p.Asset, Direction: model.EntryDeposit, Amount: p.Quantity},
		},
		vaults: []model.Vault{{Name: p.Account}, {Name: staked}},
	}
}

// planBorrow deposits the borrowed cash and withdraws the same amount from
// the borrowings vault, which allows overdraft; its negative balance is the
// outstanding debt.
func (r *Router) planBorrow(p model.BorrowParams) *plan {
	vault := orDefault(p.Account, r.spendVault)
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbBorrow,
			Asset:         p.Currency,
			Quantity:      p.Amount,
			LocalCurrency: p.Currency,
			PriceLocal:    p.Amount,
			Account:       vault,
			Counterparty:  p.Counterparty,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: vault, Asset: p.Currency, Direction: model.EntryDeposit, Amount: p.Amount},
			{Vault: r.borrowVault, Asset: p.Currency, Direction: model.EntryWithdraw, Amount: p.Amount},
		},
		vaults: []model.Vault{{Name: vault}, {Name: r.borrowVault, AllowOverdraft: true}},
	}
}

func (r *Router) planRepayBorrow(p model.RepayBorrowParams) *plan {
	vault := orDefault(p.Account, r.spendVault)
	return &plan{
		txn: model.Transaction{
			Type:          model.VerbRepayBorrow,
			Asset:         p.Currency,
			Quantity:      p.Amount,
			LocalCurrency: p.Currency,
			PriceLocal:    p.Amount,
			Account:       vault,
			Counterparty:  p.Counterparty,
			Note:          p.Note,
			Date:          p.Date,
		},
		entries: []model.VaultEntry{
			{Vault: vault, Asset: p.Currency, Direction: model.EntryWithdraw, Amount: p.Amount},
			{Vault: r.borrowVault, Asset: p.Currency, Direction: model.EntryDeposit, Amount: p.Amount},
		},
		vaults: []model.Vault{{Name: vault}, {Name: r.borrowVault, AllowOverdraft: true}},
	}
}
