package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// Record stores a transfer awaiting asynchronous provider settlement. It
// snapshots the full normalized provider request so the dispatcher can retry
// without re-deriving state from the transfer. Core commands only create
// records; the dispatcher owns them afterwards.
type Record struct {
	TransferID    uuid.UUID           `json:"transfer_id"`
	AgentID       uuid.UUID           `json:"agent_id"`
	ProviderID    int64               `json:"provider_id"`
	ServiceID     int64               `json:"service_id"`
	Payload       json.RawMessage     `json:"payload"` // marshaled provider.Request
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewRecord snapshots a provider request for deferred settlement
func NewRecord(providerID int64, req *provider.Request) (*Record, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	return &Record{
		TransferID: req.TransferID,
		AgentID:    req.AgentID,
		ProviderID: providerID,
		ServiceID:  req.ServiceID,
		Payload:    payload,
		Status:     shared.OutboxStatusPending,
		Attempts:   0,
		CreatedAt:  time.Now(),
	}, nil
}

// ProviderRequest extracts the snapshotted request from the payload
func (r *Record) ProviderRequest() (*provider.Request, error) {
	var req provider.Request
	if err := json.Unmarshal(r.Payload, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Record) IncrementAttempts() {
	r.Attempts++
	now := time.Now()
	r.LastAttemptAt = &now
}

func (r *Record) MarkFailed() {
	r.Status = shared.OutboxStatusFailed
	now := time.Now()
	r.LastAttemptAt = &now
}
