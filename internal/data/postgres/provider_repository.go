package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// ProviderRepository implements the provider.Repository interface for PostgreSQL
type ProviderRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewProviderRepository creates a new PostgreSQL provider repository
func NewProviderRepository(logger *slog.Logger, db *persistence.PostgresDB) provider.Repository {
	return &ProviderRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction for atomic operations
func (r *ProviderRepository) WithTx(tx pgx.Tx) provider.Repository {
	return &ProviderRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetByID retrieves a provider with its operation settings
func (r *ProviderRepository) GetByID(ctx context.Context, id int64) (*provider.Provider, error) {
	query := `
		SELECT id, name, kind, enabled, synchronous, base_url, fee_permille, settings, updated_at
		FROM providers
		WHERE id = $1
	`

	var p provider.Provider
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Kind,
		&p.Enabled,
		&p.Synchronous,
		&p.BaseURL,
		&p.FeePermille,
		&p.Settings,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provider.ErrProviderNotFound{ProviderID: id}
		}
		r.logger.Error("Failed to get provider", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return &p, nil
}

// ExistsEnabled reports whether an enabled provider with the id exists
func (r *ProviderRepository) ExistsEnabled(ctx context.Context, id int64) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM providers WHERE id = $1 AND enabled)
	`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		r.logger.Error("Failed to check provider existence", "id", id, "error", err)
		return false, fmt.Errorf("failed to check provider existence: %w", err)
	}
	return exists, nil
}

// UpdateToken persists a refreshed access token into the provider settings.
// The jsonb_set pair keeps the rest of the settings document untouched, so a
// concurrent settings edit is not overwritten by a token refresh.
func (r *ProviderRepository) UpdateToken(ctx context.Context, id int64, token string, obtainedAt time.Time) error {
	query := `
		UPDATE providers
		SET settings = jsonb_set(
			jsonb_set(settings, '{token}', to_jsonb($1::text)),
			'{token_obtained_at}', to_jsonb($2::timestamptz)
		), updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, token, obtainedAt, id)
	if err != nil {
		r.logger.Error("Failed to update provider token", "id", id, "error", err)
		return fmt.Errorf("failed to update provider token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return provider.ErrProviderNotFound{ProviderID: id}
	}

	return nil
}
