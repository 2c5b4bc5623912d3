package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		m, err := New(10500, "RUB")
		require.NoError(t, err)
		assert.Equal(t, int64(10500), m.Amount)
		assert.Equal(t, "RUB", m.Currency)
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		_, err := New(-1, "RUB")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("BadCurrency", func(t *testing.T) {
		_, err := New(100, "RUBLE")
		assert.ErrorIs(t, err, ErrInvalidCurrencyFormat)
	})
}

func TestMoney_Add(t *testing.T) {
	a := Money{Amount: 100, Currency: "USD"}
	b := Money{Amount: 50, Currency: "USD"}

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(150), sum.Amount)

	_, err = a.Add(Money{Amount: 50, Currency: "EUR"})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMinorUnitScale(t *testing.T) {
	assert.Equal(t, int32(0), MinorUnitScale("JPY"))
	assert.Equal(t, int32(3), MinorUnitScale("KWD"))
	assert.Equal(t, int32(2), MinorUnitScale("USD"))
	assert.Equal(t, int32(2), MinorUnitScale("XTS"), "unknown currencies default to exponent 2")
}

func TestConvert(t *testing.T) {
	rate := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		require.NoError(t, err)
		return d
	}

	testCases := []struct {
		name     string
		src      Money
		dst      string
		rate     string
		rounding Rounding
		expected int64
	}{
		// 100.00 USD * 89.5 = 8950.00 RUB
		{"SameScale", Money{10000, "USD"}, "RUB", "89.5", RoundingDefault, 895000},
		// 10.00 USD * 147.123 JPY/USD = 1471.23 -> floor to 1471 yen
		{"ToZeroScaleFloor", Money{1000, "USD"}, "JPY", "147.123", RoundingFloor, 1471},
		{"ToZeroScaleCeil", Money{1000, "USD"}, "JPY", "147.123", RoundingCeil, 1472},
		// 1471.5 yen rounds half up to 1472
		{"HalfUp", Money{1000, "USD"}, "JPY", "147.15", RoundingHalfUp, 1472},
		// bankers rounding: 1471.5 -> 1472 is odd-adjacent; 1470.5 -> 1470
		{"Bankers", Money{1000, "USD"}, "JPY", "147.05", RoundingBankers, 1470},
		// 1.000 KWD * 3.25 = 3.25 USD
		{"FromThreeScale", Money{1000, "KWD"}, "USD", "3.25", RoundingDefault, 325},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Convert(tc.src, tc.dst, rate(tc.rate), tc.rounding)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.Amount)
			assert.Equal(t, tc.dst, got.Currency)
		})
	}

	t.Run("NonPositiveRate", func(t *testing.T) {
		_, err := Convert(Money{100, "USD"}, "EUR", decimal.Zero, RoundingDefault)
		assert.ErrorIs(t, err, ErrInvalidRate)
	})

	t.Run("BadDestCurrency", func(t *testing.T) {
		_, err := Convert(Money{100, "USD"}, "EURO", rate("1"), RoundingDefault)
		assert.ErrorIs(t, err, ErrInvalidCurrencyFormat)
	})
}

func TestPermilleFee(t *testing.T) {
	// 10000 * 15 / 1000 = 150
	assert.Equal(t, int64(150), PermilleFee(10000, 15, 0))
	// flat component added after the permille part
	assert.Equal(t, int64(250), PermilleFee(10000, 15, 100))
	// 999 * 15 / 1000 = 14.985 -> floor 14
	assert.Equal(t, int64(14), PermilleFee(999, 15, 0))
	assert.Equal(t, int64(0), PermilleFee(10000, 0, 0))
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "105.00", FormatMinor(10500, "RUB"))
	assert.Equal(t, "1471", FormatMinor(1471, "JPY"))
	assert.Equal(t, "3.250", FormatMinor(3250, "KWD"))
}
