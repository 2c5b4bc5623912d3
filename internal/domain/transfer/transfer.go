// Package transfer holds the central aggregate: a single money transfer, its
// quote and its one-way state machine.
package transfer

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// Common errors
var (
	ErrNotPrepared     = errors.New("transfer is not in PREPARED state")
	ErrAlreadyFinished = errors.New("transfer already finished")
	ErrNotConfirmed    = errors.New("transfer is not in CONFIRMED state")
	ErrQuoteMissing    = errors.New("transfer has no quote")
	ErrQuoteMismatch   = errors.New("quotation id does not match current quote")
	ErrQuoteExpired    = errors.New("quote has expired")
)

// Transfer is the durable audit record of one money transfer. It is created
// by Prepare, mutated by Confirm and the post-provider step, and never deleted.
type Transfer struct {
	ID                 uuid.UUID             `json:"id"`
	NumID              int64                 `json:"num_id"` // monotonic sequence for audit ordering
	AgentID            uuid.UUID             `json:"agent_id"`
	TerminalID         uuid.UUID             `json:"terminal_id"`
	ExternalID         string                `json:"external_id"` // caller idempotency key, unique per agent
	ServiceID          int64                 `json:"service_id"`
	Method             string                `json:"method"`
	Account            string                `json:"account"`
	Amount             money.Money           `json:"amount"`
	CurrentQuote       *Quote                `json:"current_quote,omitempty"`
	Status             shared.TransferStatus `json:"status"`
	Parameters         map[string]string     `json:"parameters,omitempty"`
	ProvReceivedParams map[string]string     `json:"prov_received_params,omitempty"`
	ProviderTransferID string                `json:"provider_transfer_id,omitempty"`
	ProviderCode       string                `json:"provider_code,omitempty"`
	ErrorDescription   string                `json:"error_description,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	PreparedAt         *time.Time            `json:"prepared_at,omitempty"`
	ConfirmedAt        *time.Time            `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time            `json:"completed_at,omitempty"`
}

// NewTransfer builds a PREPARED transfer. NumID is assigned by the repository
// at insert time from a database sequence.
func NewTransfer(agentID, terminalID uuid.UUID, externalID string, serviceID int64, method, account string, amount money.Money, quote *Quote, params map[string]string) (*Transfer, error) {
	if externalID == "" {
		return nil, shared.NewError(shared.CodeValidation, "external id is required")
	}
	if quote == nil {
		return nil, ErrQuoteMissing
	}
	if params == nil {
		params = make(map[string]string)
	}
	now := time.Now()
	return &Transfer{
		ID:                 uuid.New(),
		AgentID:            agentID,
		TerminalID:         terminalID,
		ExternalID:         externalID,
		ServiceID:          serviceID,
		Method:             method,
		Account:            account,
		Amount:             amount,
		CurrentQuote:       quote,
		Status:             shared.TransferStatusPrepared,
		Parameters:         params,
		ProvReceivedParams: make(map[string]string),
		CreatedAt:          now,
		PreparedAt:         &now,
	}, nil
}

// ValidateConfirmable checks the transfer can accept a Confirm for the given
// quotation id at the given time. PREPARED is the only accepted state.
func (t *Transfer) ValidateConfirmable(quotationID uuid.UUID, now time.Time) error {
	switch {
	case t.Status == shared.TransferStatusConfirmed:
		// repeat Confirm returns the already-produced response upstream
		return ErrAlreadyFinished
	case t.Status.IsTerminal():
		return ErrAlreadyFinished
	case t.Status != shared.TransferStatusPrepared:
		return ErrNotPrepared
	}
	if t.CurrentQuote == nil {
		return ErrQuoteMissing
	}
	if t.CurrentQuote.ID != quotationID {
		return ErrQuoteMismatch
	}
	if t.CurrentQuote.Expired(now) {
		return ErrQuoteExpired
	}
	return nil
}

// MarkConfirmed transitions PREPARED -> CONFIRMED and stamps the timestamp.
// Called once, after the agent debit in the same unit of work.
func (t *Transfer) MarkConfirmed() error {
	if t.Status != shared.TransferStatusPrepared {
		return ErrNotPrepared
	}
	t.Status = shared.TransferStatusConfirmed
	now := time.Now()
	t.ConfirmedAt = &now
	return nil
}

// MarkCompleted transitions CONFIRMED -> SUCCESS
func (t *Transfer) MarkCompleted() error {
	if t.Status != shared.TransferStatusConfirmed {
		return ErrNotConfirmed
	}
	t.Status = shared.TransferStatusSuccess
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// MarkFailed transitions CONFIRMED into a failure-like terminal state and
// records the provider's error description.
func (t *Transfer) MarkFailed(status shared.TransferStatus, description string) error {
	if t.Status != shared.TransferStatusConfirmed {
		return ErrNotConfirmed
	}
	switch status {
	case shared.TransferStatusFailed, shared.TransferStatusTechnical,
		shared.TransferStatusExpired, shared.TransferStatusFraud:
	default:
		return shared.NewErrorf(shared.CodeUnexpected, "cannot fail transfer into %s", status)
	}
	t.Status = status
	t.ErrorDescription = description
	now := time.Now()
	t.CompletedAt = &now
	return nil
}

// ApplyProviderResult folds a terminal provider outcome into the transfer:
// provider enrichment fields are merged, references recorded, and the state
// machine advanced. Non-terminal outcomes leave the transfer untouched.
func (t *Transfer) ApplyProviderResult(status shared.OutboxStatus, fields map[string]string, errText string) error {
	if !status.IsTerminal() {
		return nil
	}
	t.MergeProviderParams(fields)
	if status == shared.OutboxStatusSuccess {
		return t.MarkCompleted()
	}
	return t.MarkFailed(status.TransferStatus(), errText)
}

// MergeProviderParams records provider-returned enrichment, lifting the
// well-known reference fields onto the transfer itself.
func (t *Transfer) MergeProviderParams(fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	if t.ProvReceivedParams == nil {
		t.ProvReceivedParams = make(map[string]string)
	}
	for k, v := range fields {
		switch k {
		case "ProviderTransferId":
			t.ProviderTransferID = v
		case "ProviderCode":
			t.ProviderCode = v
		default:
			t.ProvReceivedParams[k] = v
		}
	}
}
