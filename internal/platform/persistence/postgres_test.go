package persistence

import (
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

// Both the pool and a transaction must satisfy Querier, so repositories can
// be cloned into a transaction with WithTx.
var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

func TestPostgresDB_Pool(t *testing.T) {
	var pool *pgxpool.Pool
	db := &PostgresDB{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
	assert.Equal(t, pool, db.Pool())
}

// ExecuteTx and the connection lifecycle need a live database; left to
// integration setups.
