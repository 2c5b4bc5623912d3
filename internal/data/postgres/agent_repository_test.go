package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet-transfer-switch/internal/domain/agent"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testAgent() *agent.Agent {
	now := time.Now()
	return &agent.Agent{
		ID:         uuid.New(),
		Name:       "acme pay",
		Balances:   map[string]int64{"RUB": 2_000_000},
		Currencies: map[string]bool{"RUB": true},
		ServiceGrants: map[int64]agent.ServiceGrant{
			42: {Enabled: true, FeePermille: 15},
		},
		Version:   2,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func agentRows(a *agent.Agent) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "balances", "currencies", "service_grants", "version", "created_at", "updated_at"}).
		AddRow(a.ID, a.Name, a.Balances, a.Currencies, a.ServiceGrants, a.Version, a.CreatedAt, a.UpdatedAt)
}

func TestAgentRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AgentRepository{querier: mock, logger: newTestLogger()}
	expected := testAgent()

	query := `
		SELECT id, name, balances, currencies, service_grants, version, created_at, updated_at
		FROM agents
		WHERE id = \$1
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(agentRows(expected))

		a, err := repo.GetByID(ctx, expected.ID)
		assert.NoError(t, err)
		assert.Equal(t, expected, a)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(pgx.ErrNoRows)

		a, err := repo.GetByID(ctx, expected.ID)
		assert.Nil(t, a)
		var notFound agent.ErrAgentNotFound
		assert.ErrorAs(t, err, &notFound)
		assert.Equal(t, expected.ID, notFound.AgentID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(dbErr)

		_, err := repo.GetByID(ctx, expected.ID)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get agent")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAgentRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AgentRepository{querier: mock, logger: newTestLogger()}
	a := testAgent()

	query := `
		UPDATE agents
		SET name = \$1, balances = \$2, currencies = \$3, service_grants = \$4, version = \$5, updated_at = \$6
		WHERE id = \$7 AND version = \$8
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(a.Name, a.Balances, a.Currencies, a.ServiceGrants, a.Version, a.UpdatedAt, a.ID, a.Version-1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.Update(ctx, a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent modification", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(a.Name, a.Balances, a.Currencies, a.ServiceGrants, a.Version, a.UpdatedAt, a.ID, a.Version-1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, a)
		var conflict agent.ErrConcurrentModification
		assert.ErrorAs(t, err, &conflict)
		assert.Equal(t, a.ID, conflict.AgentID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("db down")
		mock.ExpectExec(query).
			WithArgs(a.Name, a.Balances, a.Currencies, a.ServiceGrants, a.Version, a.UpdatedAt, a.ID, a.Version-1).
			WillReturnError(dbErr)

		err := repo.Update(ctx, a)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update agent")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAgentRepository_LockForUpdate(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AgentRepository{querier: mock, logger: newTestLogger()}
	expected := testAgent()

	query := `
		SELECT id, name, balances, currencies, service_grants, version, created_at, updated_at
		FROM agents
		WHERE id = \$1
		FOR UPDATE
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(agentRows(expected))

		a, err := repo.LockForUpdate(ctx, expected.ID)
		assert.NoError(t, err)
		assert.Equal(t, expected, a)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(pgx.ErrNoRows)

		_, err := repo.LockForUpdate(ctx, expected.ID)
		var notFound agent.ErrAgentNotFound
		assert.ErrorAs(t, err, &notFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
