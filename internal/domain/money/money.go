// Package money holds the Money value object and the currency conversion
// routine. All arithmetic is on integer minor units; decimals appear only for
// exchange-rate math and are never stored on a balance.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrInvalidRate           = errors.New("exchange rate must be positive")
)

// Money is an immutable amount in minor units of a single currency
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// New validates and constructs a Money value
func New(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrInvalidAmount
	}
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrencyFormat
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Add returns the sum of two amounts in the same currency
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.Amount, m.Currency)
}

// Rounding selects how a converted amount is brought back to minor units
type Rounding string

const (
	RoundingFloor    Rounding = "floor"    // truncate toward zero after scaling
	RoundingCeil     Rounding = "ceil"     // round away from zero
	RoundingHalfUp   Rounding = "half_up"  // commercial rounding
	RoundingBankers  Rounding = "bankers"  // round half to even
	RoundingDefault           = RoundingFloor
)

// MinorUnitScale reports the number of decimal digits of a currency's minor
// unit. The switch carries only exponent-2 and the common exponent-0/3
// currencies; anything unknown defaults to 2.
func MinorUnitScale(currency string) int32 {
	switch currency {
	case "JPY", "KRW", "VND", "CLP", "ISK":
		return 0
	case "BHD", "IQD", "JOD", "KWD", "LYD", "OMR", "TND":
		return 3
	default:
		return 2
	}
}

// Convert applies an exchange rate to a source amount and returns the amount
// credited in the destination currency, in minor units. Scaling honors each
// currency's minor-unit exponent; the rounding policy defaults to floor.
func Convert(src Money, dstCurrency string, rate decimal.Decimal, rounding Rounding) (Money, error) {
	if len(dstCurrency) != 3 {
		return Money{}, ErrInvalidCurrencyFormat
	}
	if !rate.IsPositive() {
		return Money{}, ErrInvalidRate
	}

	srcScale := MinorUnitScale(src.Currency)
	dstScale := MinorUnitScale(dstCurrency)

	major := decimal.New(src.Amount, -srcScale)
	dstMinor := major.Mul(rate).Shift(dstScale)

	var rounded decimal.Decimal
	switch rounding {
	case RoundingCeil:
		rounded = dstMinor.Ceil()
	case RoundingHalfUp:
		rounded = dstMinor.Round(0)
	case RoundingBankers:
		rounded = dstMinor.RoundBank(0)
	default:
		rounded = dstMinor.Floor()
	}

	if !rounded.IsInteger() {
		return Money{}, fmt.Errorf("conversion of %s did not round to minor units", src)
	}
	return Money{Amount: rounded.IntPart(), Currency: dstCurrency}, nil
}

// PermilleFee computes a fee as amount*permille/1000 plus a flat component,
// floored to minor units.
func PermilleFee(amount int64, permille int64, flat int64) int64 {
	fee := decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(permille)).
		Div(decimal.NewFromInt(1000)).
		Floor()
	return fee.IntPart() + flat
}

// FormatMinor renders a minor-unit amount as a decimal string with the
// currency's scale, e.g. 10500 RUB -> "105.00". Used by provider templates.
func FormatMinor(amount int64, currency string) string {
	return decimal.New(amount, -MinorUnitScale(currency)).StringFixed(MinorUnitScale(currency))
}
