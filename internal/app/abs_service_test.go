package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

func TestABSService_UpsertRate(t *testing.T) {
	t.Run("InstallsRate", func(t *testing.T) {
		rates := &fakeFxRepo{}
		s := NewABSService(nil, &fakeAgentRepo{}, rates, newTestLogger())

		r := &fx.Rate{Base: "RUB", Quote: "KZT", Rate: decimal.NewFromFloat(5.5), Source: "abs"}
		require.NoError(t, s.UpsertRate(context.Background(), r))

		stored, err := rates.Resolve(context.Background(), uuid.Nil, "RUB", "KZT")
		require.NoError(t, err)
		assert.True(t, stored.Rate.Equal(decimal.NewFromFloat(5.5)))
		assert.WithinDuration(t, time.Now(), stored.UpdatedAt, time.Second, "upsert stamps the update time")
	})

	t.Run("Validation", func(t *testing.T) {
		s := NewABSService(nil, &fakeAgentRepo{}, &fakeFxRepo{}, newTestLogger())

		testCases := []struct {
			name string
			rate *fx.Rate
		}{
			{"SamePair", &fx.Rate{Base: "RUB", Quote: "RUB", Rate: decimal.NewFromInt(1)}},
			{"MissingQuote", &fx.Rate{Base: "RUB", Rate: decimal.NewFromInt(1)}},
			{"ZeroRate", &fx.Rate{Base: "RUB", Quote: "KZT"}},
			{"NegativeRate", &fx.Rate{Base: "RUB", Quote: "KZT", Rate: decimal.NewFromInt(-1)}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				err := s.UpsertRate(context.Background(), tc.rate)
				require.Error(t, err)
				assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
			})
		}
	})
}
