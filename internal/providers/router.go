// Package providers routes normalized provider requests to the adapter that
// speaks each provider's protocol.
package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// Client is one protocol adapter. Adapters return an error only for
// programming or configuration faults; provider-side failures come back as a
// Result so the caller can settle the transfer.
type Client interface {
	Send(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error)
}

// Journal records raw provider exchanges for dispute resolution. Writes are
// best effort and never fail the exchange.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// JournalEntry is one provider exchange as seen by the router
type JournalEntry struct {
	TransferID string            `bson:"transfer_id"`
	ProviderID int64             `bson:"provider_id"`
	Operation  string            `bson:"operation"`
	Status     string            `bson:"status"`
	Fields     map[string]string `bson:"fields,omitempty"`
	ErrorText  string            `bson:"error_text,omitempty"`
	Duration   time.Duration     `bson:"duration_ns"`
	Timestamp  time.Time         `bson:"timestamp"`
}

// Router resolves the provider record and hands the request to the adapter
// registered for its kind
type Router struct {
	providers provider.Repository
	adapters  map[string]Client
	fallback  Client
	journal   Journal
	logger    *slog.Logger
}

// NewRouter wires the adapter set. fallback handles providers whose kind has
// no dedicated adapter; journal may be nil.
func NewRouter(providers provider.Repository, adapters map[string]Client, fallback Client, journal Journal, logger *slog.Logger) *Router {
	return &Router{
		providers: providers,
		adapters:  adapters,
		fallback:  fallback,
		journal:   journal,
		logger:    logger,
	}
}

// ExistsEnabled reports whether the provider is present and enabled
func (r *Router) ExistsEnabled(ctx context.Context, providerID int64) (bool, error) {
	return r.providers.ExistsEnabled(ctx, providerID)
}

// Send loads the provider, dispatches to its adapter and journals the
// exchange.
func (r *Router) Send(ctx context.Context, providerID int64, req *provider.Request) (*provider.Result, error) {
	p, err := r.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, shared.NewErrorf(shared.CodeForbidden, "provider %d is disabled", providerID)
	}

	client, ok := r.adapters[p.Kind]
	if !ok {
		client = r.fallback
	}

	started := time.Now()
	result, err := client.Send(ctx, p, req)
	if err != nil {
		return nil, err
	}

	r.record(ctx, p, req, result, time.Since(started))
	return result, nil
}

func (r *Router) record(ctx context.Context, p *provider.Provider, req *provider.Request, result *provider.Result, elapsed time.Duration) {
	if r.journal == nil {
		return
	}
	entry := JournalEntry{
		TransferID: req.TransferID.String(),
		ProviderID: p.ID,
		Operation:  req.Operation,
		Status:     string(result.Status),
		Fields:     result.Fields,
		ErrorText:  result.ErrorText,
		Duration:   elapsed,
		Timestamp:  time.Now().UTC(),
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		r.logger.Warn("failed to journal provider exchange",
			"provider_id", p.ID, "transfer_id", entry.TransferID, "error", err)
	}
}
