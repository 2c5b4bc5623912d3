package terminal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Terminal is an authenticated channel (point of sale) acting on behalf of an
// agent. The secret signs inbound request bodies.
type Terminal struct {
	ID        uuid.UUID `json:"id"`
	AgentID   uuid.UUID `json:"agent_id"`
	Name      string    `json:"name"`
	Secret    string    `json:"-"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines terminal lookup operations
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Terminal, error)
}

// ErrTerminalNotFound indicates missing terminal
type ErrTerminalNotFound struct {
	TerminalID uuid.UUID
}

func (e ErrTerminalNotFound) Error() string {
	return "terminal not found: " + e.TerminalID.String()
}
