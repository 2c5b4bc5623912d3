// Package provider holds the settlement-provider entity, its persisted
// operation settings and the normalized request/result shapes every adapter
// speaks. The orchestration layer never branches on adapter identity; it only
// sees ProviderRequest in and ProviderResult out.
package provider

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Adapter kinds. Generic is the fallback for providers needing no bespoke
// protocol logic; the rest name the bespoke clients.
const (
	KindGeneric    = "generic"
	KindSessionXML = "session_xml"
	KindCryptoXML  = "crypto_xml"
	KindOAuthPair  = "oauth_pair"
	KindSignedXML  = "signed_xml"
	KindJSONState  = "json_state"
)

// Provider is one external settlement counterparty
type Provider struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Enabled     bool      `json:"enabled"`
	Synchronous bool      `json:"synchronous"` // false routes Confirm through the outbox
	BaseURL     string    `json:"base_url"`
	FeePermille int64     `json:"fee_permille"`
	Settings    Settings  `json:"settings"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository defines provider persistence operations
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Provider, error)
	// ExistsEnabled reports whether an enabled provider with the id exists
	ExistsEnabled(ctx context.Context, id int64) (bool, error)
	// UpdateToken persists a refreshed access token into the provider settings
	UpdateToken(ctx context.Context, id int64, token string, obtainedAt time.Time) error
	WithTx(tx pgx.Tx) Repository
}

// ErrProviderNotFound indicates missing provider
type ErrProviderNotFound struct {
	ProviderID int64
}

func (e ErrProviderNotFound) Error() string {
	return "provider not found: " + strconv.FormatInt(e.ProviderID, 10)
}
