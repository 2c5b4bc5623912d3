package provider

import (
	"time"

	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// Body and response formats understood by the generic sender
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// OperationSettings is the declarative wire description of one provider
// operation, interpreted by the generic sender. Bespoke adapters read the
// subset they need (path, templates, common secrets).
type OperationSettings struct {
	Method          string            `json:"method"`
	PathTemplate    string            `json:"path_template"`
	HeaderTemplates map[string]string `json:"header_templates,omitempty"`
	BodyTemplate    string            `json:"body_template,omitempty"`
	Format          string            `json:"format,omitempty"`          // body format: json|xml
	ResponseFormat  string            `json:"response_format,omitempty"` // json|xml
	// ResponseFields is a comma-separated list of path|outputKey extractions
	// applied to the parsed response, e.g. "result.id|ProviderTransferId,fee|ProviderFee"
	ResponseFields string `json:"response_fields,omitempty"`
	// StatusPath + StatusMapping classify the outcome; "*" is the default entry
	StatusPath    string                         `json:"status_path,omitempty"`
	StatusMapping map[string]shared.OutboxStatus `json:"status_mapping,omitempty"`
	// SuccessField/SuccessValue/ErrorField give binary success signaling when
	// no status mapping applies
	SuccessField string `json:"success_field,omitempty"`
	SuccessValue string `json:"success_value,omitempty"`
	ErrorField   string `json:"error_field,omitempty"`
}

// Settings is the persisted per-provider configuration: operation wire
// descriptions plus provider-wide secrets and the cached access token.
type Settings struct {
	Operations map[string]OperationSettings `json:"operations"`
	// Common holds provider-wide values: credentials, key/certificate paths,
	// endpoints. Referenced from templates as [Common.<key>].
	Common map[string]string `json:"common,omitempty"`

	Token           string     `json:"token,omitempty"`
	TokenObtainedAt *time.Time `json:"token_obtained_at,omitempty"`
}

// Operation returns the settings for a named operation
func (s *Settings) Operation(name string) (OperationSettings, bool) {
	op, ok := s.Operations[name]
	return op, ok
}

// Validate rejects malformed settings at load time rather than at send time
func (s *Settings) Validate() error {
	for name, op := range s.Operations {
		if op.Method == "" {
			return shared.NewErrorf(shared.CodeValidation, "operation %q: method is required", name)
		}
		if op.PathTemplate == "" {
			return shared.NewErrorf(shared.CodeValidation, "operation %q: path template is required", name)
		}
		switch op.Format {
		case "", FormatJSON, FormatXML:
		default:
			return shared.NewErrorf(shared.CodeValidation, "operation %q: unknown body format %q", name, op.Format)
		}
		switch op.ResponseFormat {
		case "", FormatJSON, FormatXML:
		default:
			return shared.NewErrorf(shared.CodeValidation, "operation %q: unknown response format %q", name, op.ResponseFormat)
		}
		if len(op.StatusMapping) > 0 && op.StatusPath == "" {
			return shared.NewErrorf(shared.CodeValidation, "operation %q: status mapping requires a status path", name)
		}
	}
	return nil
}
