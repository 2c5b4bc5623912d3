// Package app implements the switch commands: Check, Prepare, Confirm and
// the status/balance queries, plus the back-office operations pushed by the
// ABS. It owns the unit-of-work boundaries; the domain packages own the rules.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/domain/catalog"
	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/domain/transfer"
)

// Quoter prices transfers: conversion into the payout currency at the
// resolved rate plus the agent's fee schedule for the service.
type Quoter struct {
	rates fx.Repository
	ttl   time.Duration
}

// NewQuoter builds a quoter with the configured quote lifetime
func NewQuoter(rates fx.Repository, ttl time.Duration) *Quoter {
	if ttl <= 0 {
		ttl = transfer.DefaultQuoteTTL
	}
	return &Quoter{rates: rates, ttl: ttl}
}

// Rate resolves the exchange rate a quote for this agent and pair would be
// priced at. Same-currency pairs are always 1.
func (q *Quoter) Rate(ctx context.Context, agentID uuid.UUID, base, quote string) (*fx.Rate, error) {
	if base == quote {
		return &fx.Rate{Base: base, Quote: quote, Rate: decimal.NewFromInt(1), Source: "identity", UpdatedAt: time.Now()}, nil
	}
	return q.rates.Resolve(ctx, agentID, base, quote)
}

// Build prices one transfer. The agent fee is charged on top of the requested
// amount in the source currency; the provider fee is carved out of the
// credited amount in the payout currency.
func (q *Quoter) Build(ctx context.Context, a *agent.Agent, svc *catalog.Service, requested money.Money, payoutCurrency string, providerFeePermille int64) (*transfer.Quote, error) {
	grant := a.Grant(svc.ID)
	fee := money.PermilleFee(requested.Amount, grant.FeePermille, grant.FeeFlat)

	rate := decimal.NewFromInt(1)
	rateAt := time.Now()
	if payoutCurrency != requested.Currency {
		resolved, err := q.rates.Resolve(ctx, a.ID, requested.Currency, payoutCurrency)
		if err != nil {
			return nil, shared.WrapError(shared.CodeValidation, "no exchange rate for currency pair", err)
		}
		rate = resolved.Rate
		rateAt = resolved.UpdatedAt
	}

	credited, err := money.Convert(requested, payoutCurrency, rate, svc.Rounding)
	if err != nil {
		return nil, err
	}
	providerFee := money.PermilleFee(credited.Amount, providerFeePermille, 0)

	return transfer.NewQuote(requested, fee, providerFee, credited, rate, rateAt, q.ttl)
}
