package agent

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines agent persistence operations
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	Update(ctx context.Context, agent *Agent) error

	// LockForUpdate acquires a pessimistic row lock for balance mutation.
	// Must be called inside a transaction (use WithTx).
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Agent, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrAgentNotFound indicates missing agent
type ErrAgentNotFound struct {
	AgentID uuid.UUID
}

func (e ErrAgentNotFound) Error() string {
	return "agent not found: " + e.AgentID.String()
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	AgentID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for agent: " + e.AgentID.String()
}
