package transfer

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// DefaultQuoteTTL is how long a priced offer stays confirmable
const DefaultQuoteTTL = 5 * time.Minute

// Quote is a priced offer attached to a transfer. Total is what gets debited
// from the agent (requested amount plus fee) in the source currency;
// CreditedAmount is what the beneficiary receives in the payout currency.
type Quote struct {
	ID             uuid.UUID       `json:"id"`
	Total          money.Money     `json:"total"`
	Fee            int64           `json:"fee"`
	ProviderFee    int64           `json:"provider_fee"`
	CreditedAmount money.Money     `json:"credited_amount"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
	RateTimestamp  time.Time       `json:"rate_timestamp"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// NewQuote prices a transfer from a resolved rate snapshot. The invariant
// total = requested + fee is established here and never recomputed.
func NewQuote(requested money.Money, fee int64, providerFee int64, credited money.Money, rate decimal.Decimal, rateAt time.Time, ttl time.Duration) (*Quote, error) {
	if requested.Amount <= 0 {
		return nil, shared.NewError(shared.CodeValidation, "requested amount must be positive")
	}
	if fee < 0 || providerFee < 0 {
		return nil, shared.NewError(shared.CodeValidation, "fees cannot be negative")
	}
	if credited.Amount < 0 {
		return nil, shared.NewError(shared.CodeValidation, "credited amount cannot be negative")
	}
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}

	return &Quote{
		ID:             uuid.New(),
		Total:          money.Money{Amount: requested.Amount + fee, Currency: requested.Currency},
		Fee:            fee,
		ProviderFee:    providerFee,
		CreditedAmount: credited,
		ExchangeRate:   rate,
		RateTimestamp:  rateAt,
		ExpiresAt:      time.Now().Add(ttl),
	}, nil
}

// Expired reports whether the quote can no longer be confirmed
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
