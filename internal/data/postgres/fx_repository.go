package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// FxRepository implements the fx.Repository interface for PostgreSQL
type FxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewFxRepository creates a new PostgreSQL exchange-rate repository
func NewFxRepository(logger *slog.Logger, db *persistence.PostgresDB) fx.Repository {
	return &FxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Resolve returns the rate for the pair, preferring the agent-scoped row over
// the global one. The ORDER BY puts the agent row first when both exist.
func (r *FxRepository) Resolve(ctx context.Context, agentID uuid.UUID, base, quote string) (*fx.Rate, error) {
	query := `
		SELECT id, agent_id, base, quote, rate, source, updated_at
		FROM fx_rates
		WHERE base = $1 AND quote = $2 AND (agent_id = $3 OR agent_id IS NULL)
		ORDER BY agent_id NULLS LAST
		LIMIT 1
	`

	var rate fx.Rate
	err := r.querier.QueryRow(ctx, query, base, quote, agentID).Scan(
		&rate.ID,
		&rate.AgentID,
		&rate.Base,
		&rate.Quote,
		&rate.Rate,
		&rate.Source,
		&rate.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fx.ErrRateNotFound{Base: base, Quote: quote}
		}
		r.logger.Error("Failed to resolve exchange rate", "base", base, "quote", quote, "error", err)
		return nil, fmt.Errorf("failed to resolve exchange rate: %w", err)
	}

	return &rate, nil
}

// Upsert inserts or replaces the rate for the pair and scope. The partial
// unique indexes distinguish agent-scoped and global rows.
func (r *FxRepository) Upsert(ctx context.Context, rate *fx.Rate) error {
	query := `
		INSERT INTO fx_rates (agent_id, base, quote, rate, source, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (COALESCE(agent_id, '00000000-0000-0000-0000-000000000000'::uuid), base, quote)
		DO UPDATE SET rate = EXCLUDED.rate, source = EXCLUDED.source, updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		rate.AgentID,
		rate.Base,
		rate.Quote,
		rate.Rate,
		rate.Source,
		rate.UpdatedAt,
	).Scan(&rate.ID)
	if err != nil {
		r.logger.Error("Failed to upsert exchange rate", "base", rate.Base, "quote", rate.Quote, "error", err)
		return fmt.Errorf("failed to upsert exchange rate: %w", err)
	}

	return nil
}
