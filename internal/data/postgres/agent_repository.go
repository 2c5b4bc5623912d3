// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations while maintaining
// transaction safety and proper error handling for the transfer switch.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// AgentRepository implements the agent.Repository interface for PostgreSQL
type AgentRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAgentRepository creates a new PostgreSQL agent repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewAgentRepository(logger *slog.Logger, db *persistence.PostgresDB) agent.Repository {
	return &AgentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls.
func (r *AgentRepository) WithTx(tx pgx.Tx) agent.Repository {
	return &AgentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetByID retrieves an agent by its ID
func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	query := `
		SELECT id, name, balances, currencies, service_grants, version, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	var a agent.Agent
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Name,
		&a.Balances,
		&a.Currencies,
		&a.ServiceGrants,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, agent.ErrAgentNotFound{AgentID: id}
		}
		r.logger.Error("Failed to get agent", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	return &a, nil
}

// Update persists the agent's balances and grants using optimistic locking.
// Returns ErrConcurrentModification if the row was modified since it was read.
func (r *AgentRepository) Update(ctx context.Context, a *agent.Agent) error {
	query := `
		UPDATE agents
		SET name = $1, balances = $2, currencies = $3, service_grants = $4, version = $5, updated_at = $6
		WHERE id = $7 AND version = $8
	`

	result, err := r.querier.Exec(ctx, query,
		a.Name,
		a.Balances,
		a.Currencies,
		a.ServiceGrants,
		a.Version,
		a.UpdatedAt,
		a.ID,
		a.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update agent", "id", a.ID.String(), "error", err)
		return fmt.Errorf("failed to update agent: %w", err)
	}

	if result.RowsAffected() == 0 {
		return agent.ErrConcurrentModification{AgentID: a.ID}
	}

	return nil
}

// LockForUpdate obtains a pessimistic lock on the agent row and returns its
// current state. Must be used within a transaction; the row lock serializes
// debits and credits against the agent's balances.
func (r *AgentRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	query := `
		SELECT id, name, balances, currencies, service_grants, version, created_at, updated_at
		FROM agents
		WHERE id = $1
		FOR UPDATE
	`

	var a agent.Agent
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Name,
		&a.Balances,
		&a.Currencies,
		&a.ServiceGrants,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, agent.ErrAgentNotFound{AgentID: id}
		}
		r.logger.Error("Failed to lock agent for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock agent for update: %w", err)
	}

	return &a, nil
}
