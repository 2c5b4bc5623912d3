package transfer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines transfer persistence operations
type Repository interface {
	// Create inserts a new transfer and assigns NumID from the sequence.
	// The (agent_id, external_id) unique constraint closes the idempotency
	// race; a duplicate insert returns ErrDuplicateExternalID.
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transfer, error)
	GetByExternalID(ctx context.Context, agentID uuid.UUID, externalID string) (*Transfer, error)
	Update(ctx context.Context, t *Transfer) error
	WithTx(tx pgx.Tx) Repository
}

// ErrTransferNotFound indicates missing transfer
type ErrTransferNotFound struct {
	Ref string
}

func (e ErrTransferNotFound) Error() string {
	return "transfer not found: " + e.Ref
}

// ErrDuplicateExternalID indicates the (agentId, externalId) idempotency key
// is already taken
type ErrDuplicateExternalID struct {
	AgentID    uuid.UUID
	ExternalID string
}

func (e ErrDuplicateExternalID) Error() string {
	return "transfer already exists for agent " + e.AgentID.String() + " external id " + e.ExternalID
}
