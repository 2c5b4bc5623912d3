package provider

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// Operation names used across adapters
const (
	OperationCheck   = "check"
	OperationPayment = "payment"
	OperationState   = "state"
)

// Request is the normalized provider call: everything an adapter may need to
// render templates and execute one operation.
type Request struct {
	AgentID            uuid.UUID         `json:"agent_id"`
	Operation          string            `json:"operation"`
	TransferID         uuid.UUID         `json:"transfer_id"`
	NumID              int64             `json:"num_id"`
	ExternalID         string            `json:"external_id"`
	ServiceID          int64             `json:"service_id"`
	ProviderServiceID  string            `json:"provider_service_id"`
	Account            string            `json:"account"`
	CreditAmount       int64             `json:"credit_amount"`
	ProviderFee        int64             `json:"provider_fee"`
	Currency           string            `json:"currency"`
	ServiceName        string            `json:"service_name"`
	Parameters         map[string]string `json:"parameters,omitempty"`
	ProvReceivedParams map[string]string `json:"prov_received_params,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// TemplateValues flattens the request into the value map templates render
// against. Caller parameters surface as Param.<key>, provider enrichment as
// Param.<key> too (later wins), and provider-wide settings as Common.<key>.
func (r *Request) TemplateValues(common map[string]string, extra map[string]string) map[string]string {
	values := map[string]string{
		"TransferId":        r.TransferID.String(),
		"NumId":             strconv.FormatInt(r.NumID, 10),
		"ExternalId":        r.ExternalID,
		"AgentId":           r.AgentID.String(),
		"ServiceId":         strconv.FormatInt(r.ServiceID, 10),
		"ProviderServiceId": r.ProviderServiceID,
		"ServiceName":       r.ServiceName,
		"Account":           r.Account,
		"CreditAmount":      strconv.FormatInt(r.CreditAmount, 10),
		"ProviderFee":       strconv.FormatInt(r.ProviderFee, 10),
		"Currency":          r.Currency,
		"CreatedAt":         r.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range r.Parameters {
		values["Param."+k] = v
	}
	for k, v := range r.ProvReceivedParams {
		values["Param."+k] = v
	}
	for k, v := range common {
		values["Common."+k] = v
	}
	for k, v := range extra {
		values[k] = v
	}
	return values
}

// Result is the normalized provider outcome every adapter returns
type Result struct {
	Status    shared.OutboxStatus `json:"status"`
	Fields    map[string]string   `json:"fields,omitempty"`
	ErrorText string              `json:"error_text,omitempty"`
}

// Field returns a named result field, empty if absent
func (r *Result) Field(key string) string {
	return r.Fields[key]
}

// TechnicalResult builds the outcome for transport/parse failures
func TechnicalResult(errText string) *Result {
	return &Result{Status: shared.OutboxStatusTechnical, ErrorText: errText}
}

// DeclinedResult builds the outcome for a business decline
func DeclinedResult(errText string) *Result {
	return &Result{Status: shared.OutboxStatusFailed, ErrorText: errText}
}
