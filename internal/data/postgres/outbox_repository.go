package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paynet-transfer-switch/internal/domain/outbox"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations.
// This ensures record creation is atomic with the transfer state change.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new outbox record in pending status. The record will be
// picked up by the dispatcher for settlement against the provider.
func (r *OutboxRepository) Create(ctx context.Context, record *outbox.Record) error {
	query := `
		INSERT INTO transfer_outbox (transfer_id, agent_id, provider_id, service_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		record.TransferID,
		record.AgentID,
		record.ProviderID,
		record.ServiceID,
		record.Payload,
		record.Status,
		record.Attempts,
		record.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return outbox.ErrDuplicateRecord{TransferID: record.TransferID}
		}
		r.logger.Error("Failed to create outbox record",
			"transfer_id", record.TransferID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox record: %w", err)
	}

	return nil
}

// GetPending retrieves a batch of pending outbox records ordered by creation
// time, so the dispatcher settles transfers in FIFO order.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	query := `
		SELECT transfer_id, agent_id, provider_id, service_id, payload, status, attempts, created_at, last_attempt_at
		FROM transfer_outbox
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox records", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox records: %w", err)
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		var record outbox.Record
		err := rows.Scan(
			&record.TransferID,
			&record.AgentID,
			&record.ProviderID,
			&record.ServiceID,
			&record.Payload,
			&record.Status,
			&record.Attempts,
			&record.CreatedAt,
			&record.LastAttemptAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan outbox record", "error", err)
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over outbox records", "error", err)
		return nil, fmt.Errorf("error iterating over outbox records: %w", err)
	}

	return records, nil
}

// GetByTransferID retrieves the record queued for a transfer
func (r *OutboxRepository) GetByTransferID(ctx context.Context, transferID uuid.UUID) (*outbox.Record, error) {
	query := `
		SELECT transfer_id, agent_id, provider_id, service_id, payload, status, attempts, created_at, last_attempt_at
		FROM transfer_outbox
		WHERE transfer_id = $1
	`

	var record outbox.Record
	err := r.querier.QueryRow(ctx, query, transferID).Scan(
		&record.TransferID,
		&record.AgentID,
		&record.ProviderID,
		&record.ServiceID,
		&record.Payload,
		&record.Status,
		&record.Attempts,
		&record.CreatedAt,
		&record.LastAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, outbox.ErrRecordNotFound{TransferID: transferID}
		}
		r.logger.Error("Failed to get outbox record",
			"transfer_id", transferID.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get outbox record: %w", err)
	}

	return &record, nil
}

// IncrementAttempts increments the retry counter and updates last attempt time
func (r *OutboxRepository) IncrementAttempts(ctx context.Context, transferID uuid.UUID) error {
	query := `
		UPDATE transfer_outbox
		SET attempts = attempts + 1, last_attempt_at = $1
		WHERE transfer_id = $2
	`

	result, err := r.querier.Exec(ctx, query, time.Now(), transferID)
	if err != nil {
		r.logger.Error("Failed to increment outbox record attempts",
			"transfer_id", transferID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to increment outbox record attempts: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrRecordNotFound{TransferID: transferID}
	}

	return nil
}

// MarkFailed parks the record after the retry budget is exhausted
func (r *OutboxRepository) MarkFailed(ctx context.Context, transferID uuid.UUID) error {
	query := `
		UPDATE transfer_outbox
		SET status = $1, last_attempt_at = $2
		WHERE transfer_id = $3
	`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusFailed, time.Now(), transferID)
	if err != nil {
		r.logger.Error("Failed to mark outbox record failed",
			"transfer_id", transferID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to mark outbox record failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrRecordNotFound{TransferID: transferID}
	}

	return nil
}

// Delete permanently removes a record from the outbox. This is called after
// the settlement outcome has been applied to the transfer.
func (r *OutboxRepository) Delete(ctx context.Context, transferID uuid.UUID) error {
	query := `
		DELETE FROM transfer_outbox
		WHERE transfer_id = $1
	`

	result, err := r.querier.Exec(ctx, query, transferID)
	if err != nil {
		r.logger.Error("Failed to delete outbox record",
			"transfer_id", transferID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to delete outbox record: %w", err)
	}

	if result.RowsAffected() == 0 {
		return outbox.ErrRecordNotFound{TransferID: transferID}
	}

	return nil
}
