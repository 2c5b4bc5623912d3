package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/paynet-transfer-switch/internal/domain/transfer"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

const uniqueViolation = "23505"

// TransferRepository implements the transfer.Repository interface for PostgreSQL
type TransferRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTransferRepository creates a new PostgreSQL transfer repository
func NewTransferRepository(logger *slog.Logger, db *persistence.PostgresDB) transfer.Repository {
	return &TransferRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *TransferRepository) WithTx(tx pgx.Tx) transfer.Repository {
	return &TransferRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a new transfer. NumID comes back from the sequence default;
// a duplicate (agent_id, external_id) pair maps to ErrDuplicateExternalID so
// the caller can serve the idempotent response instead.
func (r *TransferRepository) Create(ctx context.Context, t *transfer.Transfer) error {
	query := `
		INSERT INTO transfers (
			id, agent_id, terminal_id, external_id, service_id, method, account,
			amount, currency, quote, status, parameters, prov_received_params,
			provider_transfer_id, provider_code, error_description,
			created_at, prepared_at, confirmed_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING num_id
	`

	err := r.querier.QueryRow(ctx, query,
		t.ID,
		t.AgentID,
		t.TerminalID,
		t.ExternalID,
		t.ServiceID,
		t.Method,
		t.Account,
		t.Amount.Amount,
		t.Amount.Currency,
		t.CurrentQuote,
		t.Status,
		t.Parameters,
		t.ProvReceivedParams,
		t.ProviderTransferID,
		t.ProviderCode,
		t.ErrorDescription,
		t.CreatedAt,
		t.PreparedAt,
		t.ConfirmedAt,
		t.CompletedAt,
	).Scan(&t.NumID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return transfer.ErrDuplicateExternalID{AgentID: t.AgentID, ExternalID: t.ExternalID}
		}
		r.logger.Error("Failed to create transfer", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transfer: %w", err)
	}

	return nil
}

// GetByID retrieves a transfer by its ID
func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (*transfer.Transfer, error) {
	t, err := r.scanOne(ctx, `WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transfer.ErrTransferNotFound{Ref: id.String()}
		}
		r.logger.Error("Failed to get transfer", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// GetByExternalID retrieves a transfer by its caller-supplied idempotency key
func (r *TransferRepository) GetByExternalID(ctx context.Context, agentID uuid.UUID, externalID string) (*transfer.Transfer, error) {
	t, err := r.scanOne(ctx, `WHERE agent_id = $1 AND external_id = $2`, agentID, externalID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transfer.ErrTransferNotFound{Ref: externalID}
		}
		r.logger.Error("Failed to get transfer by external id",
			"agent_id", agentID.String(), "external_id", externalID, "error", err)
		return nil, fmt.Errorf("failed to get transfer by external id: %w", err)
	}
	return t, nil
}

// Update persists the mutable part of the transfer: status, quote, provider
// outcome and timestamps.
func (r *TransferRepository) Update(ctx context.Context, t *transfer.Transfer) error {
	query := `
		UPDATE transfers
		SET quote = $1, status = $2, parameters = $3, prov_received_params = $4,
		    provider_transfer_id = $5, provider_code = $6, error_description = $7,
		    confirmed_at = $8, completed_at = $9
		WHERE id = $10
	`

	result, err := r.querier.Exec(ctx, query,
		t.CurrentQuote,
		t.Status,
		t.Parameters,
		t.ProvReceivedParams,
		t.ProviderTransferID,
		t.ProviderCode,
		t.ErrorDescription,
		t.ConfirmedAt,
		t.CompletedAt,
		t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update transfer", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to update transfer: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transfer.ErrTransferNotFound{Ref: t.ID.String()}
	}

	return nil
}

func (r *TransferRepository) scanOne(ctx context.Context, where string, args ...any) (*transfer.Transfer, error) {
	query := `
		SELECT id, num_id, agent_id, terminal_id, external_id, service_id, method, account,
		       amount, currency, quote, status, parameters, prov_received_params,
		       provider_transfer_id, provider_code, error_description,
		       created_at, prepared_at, confirmed_at, completed_at
		FROM transfers
	` + where

	var t transfer.Transfer
	err := r.querier.QueryRow(ctx, query, args...).Scan(
		&t.ID,
		&t.NumID,
		&t.AgentID,
		&t.TerminalID,
		&t.ExternalID,
		&t.ServiceID,
		&t.Method,
		&t.Account,
		&t.Amount.Amount,
		&t.Amount.Currency,
		&t.CurrentQuote,
		&t.Status,
		&t.Parameters,
		&t.ProvReceivedParams,
		&t.ProviderTransferID,
		&t.ProviderCode,
		&t.ErrorDescription,
		&t.CreatedAt,
		&t.PreparedAt,
		&t.ConfirmedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
