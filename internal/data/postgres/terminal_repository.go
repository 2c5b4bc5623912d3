package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/terminal"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// TerminalRepository implements the terminal.Repository interface for PostgreSQL
type TerminalRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewTerminalRepository creates a new PostgreSQL terminal repository
func NewTerminalRepository(logger *slog.Logger, db *persistence.PostgresDB) terminal.Repository {
	return &TerminalRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetByID retrieves a terminal with its signing secret
func (r *TerminalRepository) GetByID(ctx context.Context, id uuid.UUID) (*terminal.Terminal, error) {
	query := `
		SELECT id, agent_id, name, secret, enabled, created_at
		FROM terminals
		WHERE id = $1
	`

	var t terminal.Terminal
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.AgentID,
		&t.Name,
		&t.Secret,
		&t.Enabled,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, terminal.ErrTerminalNotFound{TerminalID: id}
		}
		r.logger.Error("Failed to get terminal", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get terminal: %w", err)
	}

	return &t, nil
}
