package fx

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Rate is an exchange-rate snapshot for a currency pair. Rates may be scoped
// to an agent (negotiated rates pushed by the ABS) or global (AgentID nil).
type Rate struct {
	ID        int64           `json:"id"`
	AgentID   *uuid.UUID      `json:"agent_id,omitempty"`
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Repository defines FX rate persistence operations
type Repository interface {
	// Resolve returns the agent-scoped rate for the pair, falling back to the
	// global rate when the agent has none.
	Resolve(ctx context.Context, agentID uuid.UUID, base, quote string) (*Rate, error)
	Upsert(ctx context.Context, rate *Rate) error
}

// ErrRateNotFound indicates no rate is available for the pair
type ErrRateNotFound struct {
	Base  string
	Quote string
}

func (e ErrRateNotFound) Error() string {
	return "no exchange rate for " + e.Base + "/" + e.Quote
}
