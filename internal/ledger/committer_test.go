package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
	"github.com/minhpq/hoard/internal/storage"
	"github.com/minhpq/hoard/internal/valuation"
)

// fixedRates is a rate provider with a static table.
type fixedRates struct {
	rates map[string]string
	down  bool
}

func (f *fixedRates) FetchRate(_ context.Context, from, to string, _ time.Time) (decimal.Decimal, error) {
	if f.down {
		return decimal.Zero, fmt.Errorf("offline: %w", common.ErrProviderUnavailable)
	}
	raw, ok := f.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s: %w", from, to, common.ErrProviderUnavailable)
	}
	return decimal.RequireFromString(raw), nil
}

func defaultRates() *fixedRates {
	return &fixedRates{rates: map[string]string{
		"VND/USD": "0.00004",
		"USD/VND": "25000",
		"VND/VND": "1",
	}}
}

type testHarness struct {
	store     *storage.SQLiteStorage
	committer *Committer
	provider  *fixedRates
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	provider := defaultRates()
	resolver := valuation.NewResolver(store, provider, "test", nil)
	router, err := NewRouter("Bank", "Bank", "Borrowings")
	require.NoError(t, err)

	return &testHarness{
		store:     store,
		committer: NewCommitter(store, resolver, router, nil),
		provider:  provider,
	}
}

func (h *testHarness) stageApproved(t *testing.T, i int, action *model.Action) *model.PendingAction {
	t.Helper()
	ctx := context.Background()

	pending := &model.PendingAction{
		ID:         fmt.Sprintf("pending-%03d", i),
		BatchID:    "batch-1",
		Source:     model.SourceText,
		Action:     action,
		RawText:    "raw",
		Confidence: 0.9,
		Status:     model.StatusPending,
		Signature:  fmt.Sprintf("sig-%03d", i),
	}
	_, _, err := h.store.CreatePendingAction(ctx, pending)
	require.NoError(t, err)

	ok, err := h.store.TransitionPendingStatus(ctx, pending.ID, model.StatusApproved)
	require.NoError(t, err)
	require.True(t, ok)
	pending.Status = model.StatusApproved
	return pending
}

func (h *testHarness) seedBalance(t *testing.T, i int, vault, asset string, amount int64) {
	t.Helper()
	ctx := context.Background()

	seed := h.stageApproved(t, i, &model.Action{
		Verb: model.VerbIncome,
		Params: model.IncomeParams{
			Amount:   decimal.NewFromInt(amount),
			Currency: asset,
			Account:  vault,
			Date:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	_, err := h.committer.Commit(ctx, seed)
	require.NoError(t, err)
}

func spendAction(amount int64) *model.Action {
	return &model.Action{
		Verb: model.VerbSpend,
		Params: model.SpendParams{
			Amount:       decimal.NewFromInt(amount),
			Currency:     "VND",
			Counterparty: "McDo",
			Tag:          "food",
			Date:         time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestCommitSpend(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedBalance(t, 900, "Bank", "VND", 500000)

	pending := h.stageApproved(t, 1, spendAction(120000))
	txn, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)

	assert.Equal(t, model.VerbSpend, txn.Type)
	assert.Equal(t, "VND", txn.Asset)
	assert.Equal(t, "120000", txn.Quantity.String())
	assert.Equal(t, "Bank", txn.Account)
	assert.False(t, txn.ValuationPending)
	require.NotNil(t, txn.AmountUSD)
	assert.Equal(t, "4.8", txn.AmountUSD.String())
	require.NotNil(t, txn.AmountVND)
	assert.Equal(t, "120000", txn.AmountVND.String())

	balance, err := h.store.GetVaultBalance(ctx, "Bank", "VND")
	require.NoError(t, err)
	assert.Equal(t, "380000", balance.String())

	entries, err := h.store.ListVaultEntries(ctx, "Bank")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.EntryWithdraw, entries[1].Direction)
	require.NotNil(t, entries[1].USDValue)
	assert.Equal(t, "4.8", entries[1].USDValue.String())
}

func TestCommitExactlyOnce(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedBalance(t, 900, "Bank", "VND", 500000)

	pending := h.stageApproved(t, 1, spendAction(100000))

	first, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)

	second, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance, err := h.store.GetVaultBalance(ctx, "Bank", "VND")
	require.NoError(t, err)
	assert.Equal(t, "400000", balance.String())
}

func TestCommitOverdraftLeavesApprovedUncommitted(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedBalance(t, 900, "Bank", "VND", 50000)

	pending := h.stageApproved(t, 1, spendAction(120000))

	_, err := h.committer.Commit(ctx, pending)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	// Still approved, never reverted to pending, and surfaced for correction
	got, err := h.store.GetPendingAction(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)

	uncommitted, err := h.store.ListUncommittedApproved(ctx)
	require.NoError(t, err)
	require.Len(t, uncommitted, 1)
	assert.Equal(t, pending.ID, uncommitted[0].ID)
}

func TestCommitRequiresApprovedWithAction(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.committer.Commit(ctx, &model.PendingAction{
		ID: "p1", Status: model.StatusPending, Action: spendAction(1000),
	})
	require.Error(t, err)

	_, err = h.committer.Commit(ctx, &model.PendingAction{
		ID: "p2", Status: model.StatusApproved,
	})
	assert.ErrorIs(t, err, common.ErrNullAction)
}

func TestCommitDegradedValuation(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedBalance(t, 900, "Bank", "VND", 500000)

	h.provider.down = true
	pending := h.stageApproved(t, 1, spendAction(120000))

	txn, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)
	assert.True(t, txn.ValuationPending)
	assert.Nil(t, txn.FxToUSD)
	assert.Nil(t, txn.AmountUSD)
	require.NotNil(t, txn.FxToVND)
	assert.Equal(t, "1", txn.FxToVND.String())

	// Balance moved in the native asset regardless
	balance, err := h.store.GetVaultBalance(ctx, "Bank", "VND")
	require.NoError(t, err)
	assert.Equal(t, "380000", balance.String())
}

func TestRevalueBackfillsDegradedCommits(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedBalance(t, 900, "Bank", "VND", 500000)

	h.provider.down = true
	pending := h.stageApproved(t, 1, spendAction(120000))
	txn, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)
	require.True(t, txn.ValuationPending)

	h.provider.down = false
	resolved, err := h.committer.Revalue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	got, err := h.store.GetTransactionByPendingAction(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, got.ValuationPending)
	require.NotNil(t, got.AmountUSD)
	assert.Equal(t, "4.8", got.AmountUSD.String())

	// Balances are never recomputed by a late rate
	balance, err := h.store.GetVaultBalance(ctx, "Bank", "VND")
	require.NoError(t, err)
	assert.Equal(t, "380000", balance.String())
}

func TestCommitBorrowOverdraftsBorrowVault(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	pending := h.stageApproved(t, 1, &model.Action{
		Verb: model.VerbBorrow,
		Params: model.BorrowParams{
			Amount:       decimal.NewFromInt(2000000),
			Currency:     "VND",
			Counterparty: "Minh",
			Date:         time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	})

	txn, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, model.VerbBorrow, txn.Type)

	bank, err := h.store.GetVaultBalance(ctx, "Bank", "VND")
	require.NoError(t, err)
	assert.Equal(t, "2000000", bank.String())

	// Negative borrowings balance is the outstanding debt
	owed, err := h.store.GetVaultBalance(ctx, "Borrowings", "VND")
	require.NoError(t, err)
	assert.Equal(t, "-2000000", owed.String())

	borrowVault, err := h.store.GetVault(ctx, "Borrowings")
	require.NoError(t, err)
	assert.True(t, borrowVault.AllowOverdraft)
}

func TestCommitTransferMovesBetweenVaults(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedBalance(t, 900, "Bank", "VND", 500000)
	h.seedBalance(t, 901, "Cash", "VND", 0)

	pending := h.stageApproved(t, 1, &model.Action{
		Verb: model.VerbTransfer,
		Params: model.TransferParams{
			Amount:   decimal.NewFromInt(200000),
			Currency: "VND",
			From:     "Bank",
			To:       "Cash",
			Fee:      decimal.NewFromInt(1000),
			Date:     time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	})

	txn, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)
	require.NotNil(t, txn.FeeVND)
	assert.Equal(t, "1000", txn.FeeVND.String())

	bank, _ := h.store.GetVaultBalance(ctx, "Bank", "VND")
	cash, _ := h.store.GetVaultBalance(ctx, "Cash", "VND")
	assert.Equal(t, "299000", bank.String())
	assert.Equal(t, "200000", cash.String())
}

func TestCommitStakeLocksQuantity(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.provider.rates["BTC/USD"] = "95000"

	// Fund the exchange vault first
	fund := h.stageApproved(t, 901, &model.Action{
		Verb: model.VerbIncome,
		Params: model.IncomeParams{
			Amount:   decimal.NewFromInt(1),
			Currency: "BTC",
			Account:  "Binance",
			Date:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	_, err := h.committer.Commit(ctx, fund)
	require.NoError(t, err)

	pending := h.stageApproved(t, 1, &model.Action{
		Verb: model.VerbStake,
		Params: model.StakeParams{
			Quantity: decimal.RequireFromString("0.5"),
			Asset:    "BTC",
			Account:  "Binance",
			Date:     time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	})

	txn, err := h.committer.Commit(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, "BTC", txn.Asset)
	require.NotNil(t, txn.AmountUSD)
	assert.Equal(t, "47500", txn.AmountUSD.String())

	free, _ := h.store.GetVaultBalance(ctx, "Binance", "BTC")
	locked, _ := h.store.GetVaultBalance(ctx, "Binance Staked", "BTC")
	assert.Equal(t, "0.5", free.String())
	assert.Equal(t, "0.5", locked.String())
}
