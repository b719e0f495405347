package stage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhpq/hoard/internal/common"
	"github.com/minhpq/hoard/internal/model"
)

func testAction() *model.Action {
	return &model.Action{
		Verb: model.VerbSpend,
		Params: model.SpendParams{
			Amount:   decimal.NewFromInt(120000),
			Currency: "VND",
			Date:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestCanonicalPayloadIsDeterministic(t *testing.T) {
	meta := map[string]string{"bank_ref": "TX1", "reason": ""}

	first, err := CanonicalPayload(model.SourceText, testAction(), "lunch 120k", meta)
	require.NoError(t, err)
	second, err := CanonicalPayload(model.SourceText, testAction(), "lunch 120k", meta)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSignVerify(t *testing.T) {
	body, err := CanonicalPayload(model.SourceText, testAction(), "lunch 120k", nil)
	require.NoError(t, err)

	sig := Sign("secret", body)
	require.NoError(t, Verify("secret", body, sig))
}

func TestVerifyFailures(t *testing.T) {
	body, err := CanonicalPayload(model.SourceText, testAction(), "lunch 120k", nil)
	require.NoError(t, err)
	sig := Sign("secret", body)

	t.Run("wrong secret", func(t *testing.T) {
		err := Verify("other-secret", body, sig)
		assert.ErrorIs(t, err, common.ErrSignatureMismatch)
	})

	t.Run("tampered body", func(t *testing.T) {
		tampered, err := CanonicalPayload(model.SourceText, testAction(), "lunch 999k", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, Verify("secret", tampered, sig), common.ErrSignatureMismatch)
	})

	t.Run("malformed signature", func(t *testing.T) {
		assert.ErrorIs(t, Verify("secret", body, "not-hex"), common.ErrSignatureMismatch)
	})
}

func TestNewBatchIDDeterministic(t *testing.T) {
	at := time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

	first := NewBatchID("statement.csv", at)
	second := NewBatchID("statement.csv", at)
	assert.Equal(t, first, second)

	other := NewBatchID("statement.csv", at.Add(time.Second))
	assert.NotEqual(t, first, other)
	assert.NotEqual(t, first, NewBatchID("other.csv", at))
}
