package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/domain/transfer"
	"github.com/paynet-transfer-switch/internal/platform/messaging/producers"
)

// txRunner runs a function inside one database transaction.
// *persistence.PostgresDB satisfies it.
type txRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Settler finishes a CONFIRMED transfer: it executes the provider payment,
// folds the outcome into the transfer, refunds the agent on failure and
// publishes the settlement event. Both the synchronous Confirm path and the
// outbox dispatcher end here.
type Settler struct {
	db        txRunner
	agents    agent.Repository
	transfers transfer.Repository
	gateway   ProviderGateway
	events    EventPublisher // may be nil
	logger    *slog.Logger
}

// NewSettler wires the settlement step
func NewSettler(db txRunner, agents agent.Repository, transfers transfer.Repository, gateway ProviderGateway, events EventPublisher, logger *slog.Logger) *Settler {
	return &Settler{
		db:        db,
		agents:    agents,
		transfers: transfers,
		gateway:   gateway,
		events:    events,
		logger:    logger,
	}
}

// Settle sends the payment and applies whatever comes back. A transport-level
// failure becomes a technical outcome; the synchronous path has no retry
// budget beyond what the HTTP client already spent.
func (s *Settler) Settle(ctx context.Context, t *transfer.Transfer, providerID int64, req *provider.Request) error {
	result, err := s.gateway.Send(ctx, providerID, req)
	if err != nil {
		s.logger.Error("provider payment dispatch failed",
			"transfer_id", t.ID.String(), "provider_id", providerID, "error", err)
		result = provider.TechnicalResult(err.Error())
	}
	return s.Apply(ctx, t, providerID, result)
}

// Apply settles the transfer with a provider outcome. The caller decides when
// a technical outcome stops being retryable; by the time Apply sees one, it
// finishes the transfer as TECHNICAL. Any non-success outcome persists the
// terminal state and refunds the debited total in one transaction under the
// agent row lock.
func (s *Settler) Apply(ctx context.Context, t *transfer.Transfer, providerID int64, result *provider.Result) error {
	if t.Status != shared.TransferStatusConfirmed {
		return transfer.ErrNotConfirmed
	}
	if t.CurrentQuote == nil {
		return transfer.ErrQuoteMissing
	}

	t.MergeProviderParams(result.Fields)

	if result.Status == shared.OutboxStatusSuccess {
		if err := t.MarkCompleted(); err != nil {
			return err
		}
		if err := s.transfers.Update(ctx, t); err != nil {
			return err
		}
	} else {
		if err := t.MarkFailed(result.Status.TransferStatus(), result.ErrorText); err != nil {
			return err
		}
		// Terminal state and compensating credit must land together: a
		// committed refund against a still-CONFIRMED record would be paid
		// out and refunded again on the next dispatcher attempt.
		if err := s.failAndRefund(ctx, t); err != nil {
			return fmt.Errorf("failed to settle failed transfer %s: %w", t.ID.String(), err)
		}
	}

	s.publish(ctx, t, providerID)
	return nil
}

// failAndRefund persists the failed transfer and credits the debited total
// back to the agent in one transaction. The original debit committed when the
// transfer was confirmed; if anything here fails, nothing commits and the
// dispatcher retries the whole step against a still-CONFIRMED record.
func (s *Settler) failAndRefund(ctx context.Context, t *transfer.Transfer) error {
	total := t.CurrentQuote.Total
	return s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.transfers.WithTx(tx).Update(ctx, t); err != nil {
			return err
		}
		agents := s.agents.WithTx(tx)
		a, err := agents.LockForUpdate(ctx, t.AgentID)
		if err != nil {
			return err
		}
		if err := a.Credit(total.Amount, total.Currency); err != nil {
			return err
		}
		return agents.Update(ctx, a)
	})
}

func (s *Settler) publish(ctx context.Context, t *transfer.Transfer, providerID int64) {
	if s.events == nil {
		return
	}
	event := producers.SettlementEvent{
		TransferID:       t.ID.String(),
		NumID:            t.NumID,
		AgentID:          t.AgentID.String(),
		ServiceID:        t.ServiceID,
		ProviderID:       providerID,
		Status:           string(t.Status),
		Amount:           t.Amount.Amount,
		Currency:         t.Amount.Currency,
		CreditedAmount:   t.CurrentQuote.CreditedAmount.Amount,
		CreditedCurrency: t.CurrentQuote.CreditedAmount.Currency,
		ErrorText:        t.ErrorDescription,
		OccurredAt:       time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, t.ID.String(), event); err != nil {
		s.logger.Warn("failed to publish settlement event",
			"transfer_id", t.ID.String(), "error", err)
	}
}
