package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/paynet-transfer-switch/internal/domain/catalog"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// CatalogRepository implements the catalog.Repository interface for PostgreSQL
type CatalogRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCatalogRepository creates a new PostgreSQL service catalog repository
func NewCatalogRepository(logger *slog.Logger, db *persistence.PostgresDB) catalog.Repository {
	return &CatalogRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetByID retrieves a catalog service with its parameter declarations
func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*catalog.Service, error) {
	query := `
		SELECT id, name, provider_id, provider_service_id, enabled,
		       account_regex, account_strip, params, payout_currencies,
		       default_payout, rounding, min_amount, max_amount, created_at
		FROM services
		WHERE id = $1
	`

	var s catalog.Service
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.Name,
		&s.ProviderID,
		&s.ProviderServiceID,
		&s.Enabled,
		&s.AccountRegex,
		&s.AccountStrip,
		&s.Params,
		&s.PayoutCurrencies,
		&s.DefaultPayout,
		&s.Rounding,
		&s.MinAmount,
		&s.MaxAmount,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound{ServiceID: id}
		}
		r.logger.Error("Failed to get service", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	return &s, nil
}
