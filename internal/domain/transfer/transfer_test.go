package transfer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

func newTestQuote(t *testing.T, ttl time.Duration) *Quote {
	t.Helper()
	requested := money.Money{Amount: 10000, Currency: "USD"}
	credited := money.Money{Amount: 895000, Currency: "RUB"}
	q, err := NewQuote(requested, 150, 50, credited, decimal.NewFromFloat(89.5), time.Now(), ttl)
	require.NoError(t, err)
	return q
}

func newPreparedTransfer(t *testing.T) *Transfer {
	t.Helper()
	tr, err := NewTransfer(
		uuid.New(), uuid.New(), "order-1", 42, "", "79261234567",
		money.Money{Amount: 10000, Currency: "USD"},
		newTestQuote(t, time.Minute),
		map[string]string{"FirstName": "Ivan"},
	)
	require.NoError(t, err)
	return tr
}

func TestNewQuote(t *testing.T) {
	t.Run("TotalIsRequestedPlusFee", func(t *testing.T) {
		q := newTestQuote(t, time.Minute)
		assert.Equal(t, int64(10150), q.Total.Amount)
		assert.Equal(t, "USD", q.Total.Currency)
		assert.Equal(t, int64(150), q.Fee)
		assert.Equal(t, int64(50), q.ProviderFee)
		assert.False(t, q.Expired(time.Now()))
	})

	t.Run("ZeroTTLFallsBackToDefault", func(t *testing.T) {
		q := newTestQuote(t, 0)
		assert.WithinDuration(t, time.Now().Add(DefaultQuoteTTL), q.ExpiresAt, time.Second)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		_, err := NewQuote(money.Money{Amount: 0, Currency: "USD"}, 0, 0, money.Money{}, decimal.NewFromInt(1), time.Now(), time.Minute)
		assert.Error(t, err)
	})

	t.Run("NegativeFee", func(t *testing.T) {
		_, err := NewQuote(money.Money{Amount: 100, Currency: "USD"}, -1, 0, money.Money{}, decimal.NewFromInt(1), time.Now(), time.Minute)
		assert.Error(t, err)
	})
}

func TestQuote_Expired(t *testing.T) {
	q := newTestQuote(t, time.Minute)
	assert.False(t, q.Expired(q.ExpiresAt.Add(-time.Second)))
	assert.True(t, q.Expired(q.ExpiresAt), "expiry instant is no longer confirmable")
	assert.True(t, q.Expired(q.ExpiresAt.Add(time.Second)))
}

func TestNewTransfer(t *testing.T) {
	t.Run("StartsPrepared", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		assert.Equal(t, shared.TransferStatusPrepared, tr.Status)
		assert.NotEqual(t, uuid.Nil, tr.ID)
		assert.NotNil(t, tr.PreparedAt)
		assert.Nil(t, tr.ConfirmedAt)
	})

	t.Run("RequiresExternalID", func(t *testing.T) {
		_, err := NewTransfer(uuid.New(), uuid.New(), "", 42, "", "acc",
			money.Money{Amount: 100, Currency: "USD"}, newTestQuote(t, time.Minute), nil)
		assert.Error(t, err)
	})

	t.Run("RequiresQuote", func(t *testing.T) {
		_, err := NewTransfer(uuid.New(), uuid.New(), "order-1", 42, "", "acc",
			money.Money{Amount: 100, Currency: "USD"}, nil, nil)
		assert.ErrorIs(t, err, ErrQuoteMissing)
	})
}

func TestTransfer_ValidateConfirmable(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		assert.NoError(t, tr.ValidateConfirmable(tr.CurrentQuote.ID, time.Now()))
	})

	t.Run("WrongQuotationID", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		err := tr.ValidateConfirmable(uuid.New(), time.Now())
		assert.ErrorIs(t, err, ErrQuoteMismatch)
	})

	t.Run("ExpiredQuote", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		err := tr.ValidateConfirmable(tr.CurrentQuote.ID, tr.CurrentQuote.ExpiresAt.Add(time.Second))
		assert.ErrorIs(t, err, ErrQuoteExpired)
	})

	t.Run("AlreadyConfirmed", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		err := tr.ValidateConfirmable(tr.CurrentQuote.ID, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyFinished)
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		require.NoError(t, tr.MarkCompleted())
		err := tr.ValidateConfirmable(tr.CurrentQuote.ID, time.Now())
		assert.ErrorIs(t, err, ErrAlreadyFinished)
	})
}

func TestTransfer_StateMachine(t *testing.T) {
	t.Run("ConfirmThenComplete", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		assert.Equal(t, shared.TransferStatusConfirmed, tr.Status)
		require.NotNil(t, tr.ConfirmedAt)

		require.NoError(t, tr.MarkCompleted())
		assert.Equal(t, shared.TransferStatusSuccess, tr.Status)
		require.NotNil(t, tr.CompletedAt)
	})

	t.Run("ConfirmTwice", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		assert.ErrorIs(t, tr.MarkConfirmed(), ErrNotPrepared)
	})

	t.Run("CompleteWithoutConfirm", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		assert.ErrorIs(t, tr.MarkCompleted(), ErrNotConfirmed)
	})

	t.Run("FailIntoTerminalStates", func(t *testing.T) {
		for _, status := range []shared.TransferStatus{
			shared.TransferStatusFailed,
			shared.TransferStatusTechnical,
			shared.TransferStatusExpired,
			shared.TransferStatusFraud,
		} {
			tr := newPreparedTransfer(t)
			require.NoError(t, tr.MarkConfirmed())
			require.NoError(t, tr.MarkFailed(status, "declined"))
			assert.Equal(t, status, tr.Status)
			assert.Equal(t, "declined", tr.ErrorDescription)
			assert.NotNil(t, tr.CompletedAt)
		}
	})

	t.Run("FailIntoNonTerminalRejected", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		assert.Error(t, tr.MarkFailed(shared.TransferStatusPrepared, ""))
	})

	t.Run("FailWithoutConfirm", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		assert.ErrorIs(t, tr.MarkFailed(shared.TransferStatusFailed, ""), ErrNotConfirmed)
	})
}

func TestTransfer_ApplyProviderResult(t *testing.T) {
	t.Run("SuccessCompletes", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		err := tr.ApplyProviderResult(shared.OutboxStatusSuccess, map[string]string{
			"ProviderTransferId": "abc-123",
			"ProviderCode":       "0",
			"Receipt":            "r-9",
		}, "")
		require.NoError(t, err)
		assert.Equal(t, shared.TransferStatusSuccess, tr.Status)
		assert.Equal(t, "abc-123", tr.ProviderTransferID)
		assert.Equal(t, "0", tr.ProviderCode)
		assert.Equal(t, "r-9", tr.ProvReceivedParams["Receipt"])
	})

	t.Run("FailureSetsDescription", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		err := tr.ApplyProviderResult(shared.OutboxStatusFraud, nil, "suspicious recipient")
		require.NoError(t, err)
		assert.Equal(t, shared.TransferStatusFraud, tr.Status)
		assert.Equal(t, "suspicious recipient", tr.ErrorDescription)
	})

	t.Run("NonTerminalIsNoop", func(t *testing.T) {
		tr := newPreparedTransfer(t)
		require.NoError(t, tr.MarkConfirmed())
		err := tr.ApplyProviderResult(shared.OutboxStatusTechnical, map[string]string{"x": "y"}, "timeout")
		require.NoError(t, err)
		assert.Equal(t, shared.TransferStatusConfirmed, tr.Status, "TECHNICAL is retried, not folded in")
		assert.Empty(t, tr.ProvReceivedParams["x"])
	})
}
