package app

import (
	"context"

	"github.com/paynet-transfer-switch/internal/domain/provider"
)

// ProviderGateway is the routing facade the commands settle through.
// Implemented by providers.Router; tests inject a mock.
type ProviderGateway interface {
	ExistsEnabled(ctx context.Context, providerID int64) (bool, error)
	Send(ctx context.Context, providerID int64, req *provider.Request) (*provider.Result, error)
}

// EventPublisher emits settlement events for terminal transfer outcomes
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}
