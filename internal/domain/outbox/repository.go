package outbox

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages settlement outbox persistence. Records are created in
// the same transaction as the transfer state change they shadow.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	GetPending(ctx context.Context, limit int) ([]*Record, error)
	GetByTransferID(ctx context.Context, transferID uuid.UUID) (*Record, error)
	IncrementAttempts(ctx context.Context, transferID uuid.UUID) error
	MarkFailed(ctx context.Context, transferID uuid.UUID) error
	Delete(ctx context.Context, transferID uuid.UUID) error
	WithTx(tx pgx.Tx) Repository
}

// ErrRecordNotFound indicates missing outbox record
type ErrRecordNotFound struct {
	TransferID uuid.UUID
}

func (e ErrRecordNotFound) Error() string {
	return "outbox record not found: " + e.TransferID.String()
}

// ErrDuplicateRecord indicates the transfer is already queued
type ErrDuplicateRecord struct {
	TransferID uuid.UUID
}

func (e ErrDuplicateRecord) Error() string {
	return "duplicate outbox record: " + e.TransferID.String()
}
