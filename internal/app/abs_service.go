package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// ABSService implements the back-office channel: balance top-ups and
// drawdowns pushed by the accounting system, and exchange-rate updates.
type ABSService struct {
	pgDB   *persistence.PostgresDB
	agents agent.Repository
	rates  fx.Repository
	logger *slog.Logger
}

// NewABSService wires the back-office service
func NewABSService(pgDB *persistence.PostgresDB, agents agent.Repository, rates fx.Repository, logger *slog.Logger) *ABSService {
	return &ABSService{
		pgDB:   pgDB,
		agents: agents,
		rates:  rates,
		logger: logger,
	}
}

// CreditAgent tops up the agent's balance and returns the new balance.
// Runs under the agent row lock so it serializes with transfer debits.
func (s *ABSService) CreditAgent(ctx context.Context, agentID uuid.UUID, amount int64, currency string) (int64, error) {
	return s.adjust(ctx, agentID, currency, func(a *agent.Agent) error {
		return a.Credit(amount, currency)
	})
}

// DebitAgent draws down the agent's balance and returns the new balance
func (s *ABSService) DebitAgent(ctx context.Context, agentID uuid.UUID, amount int64, currency string) (int64, error) {
	return s.adjust(ctx, agentID, currency, func(a *agent.Agent) error {
		return a.Debit(amount, currency)
	})
}

func (s *ABSService) adjust(ctx context.Context, agentID uuid.UUID, currency string, mutate func(*agent.Agent) error) (int64, error) {
	var balance int64
	err := s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := s.agents.WithTx(tx)
		a, err := repo.LockForUpdate(ctx, agentID)
		if err != nil {
			return err
		}
		if err := mutate(a); err != nil {
			switch {
			case errors.Is(err, agent.ErrInsufficientBalance):
				return shared.NewError(shared.CodeInsufficientBalance, "agent balance too low")
			case errors.Is(err, agent.ErrInvalidAmount):
				return shared.NewError(shared.CodeValidation, "amount must be positive")
			}
			return err
		}
		balance = a.Balance(currency)
		return repo.Update(ctx, a)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("agent balance adjusted",
		"agent_id", agentID.String(),
		"balance", money.FormatMinor(balance, currency))
	return balance, nil
}

// UpsertRate installs or replaces an exchange rate. A nil agent id makes the
// rate global.
func (s *ABSService) UpsertRate(ctx context.Context, r *fx.Rate) error {
	if r.Base == "" || r.Quote == "" || r.Base == r.Quote {
		return shared.NewError(shared.CodeValidation, "base and quote currencies must differ")
	}
	if !r.Rate.IsPositive() {
		return shared.NewError(shared.CodeValidation, "rate must be positive")
	}

	r.UpdatedAt = time.Now()
	if err := s.rates.Upsert(ctx, r); err != nil {
		return err
	}

	s.logger.Info("exchange rate updated", "base", r.Base, "quote", r.Quote, "rate", r.Rate.String())
	return nil
}
