// Package generic implements the configuration-driven provider sender: one
// HTTP exchange described entirely by persisted operation settings, with no
// bespoke protocol code.
package generic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/providers/fieldpath"
	"github.com/paynet-transfer-switch/internal/providers/httpx"
	"github.com/paynet-transfer-switch/internal/template"
)

// Sender executes declarative provider operations
type Sender struct {
	engine *template.Engine
	client *httpx.Client
	logger *slog.Logger
}

// NewSender creates a generic sender over the shared template engine and
// HTTP client
func NewSender(engine *template.Engine, client *httpx.Client, logger *slog.Logger) *Sender {
	return &Sender{engine: engine, client: client, logger: logger}
}

// Send renders the operation's templates against the request value map,
// issues one HTTP call and classifies the outcome per the configured mapping.
func (s *Sender) Send(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	op, ok := p.Settings.Operation(req.Operation)
	if !ok {
		return nil, shared.NewErrorf(shared.CodeValidation, "provider %d has no operation %q", p.ID, req.Operation)
	}

	values := req.TemplateValues(p.Settings.Common, nil)

	path, err := s.engine.RenderURL(op.PathTemplate, values)
	if err != nil {
		return nil, fmt.Errorf("failed to render path template: %w", err)
	}

	var body []byte
	if op.BodyTemplate != "" {
		rendered, err := s.engine.Render(op.BodyTemplate, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}
		body = []byte(rendered)
	}

	headers := make(map[string]string, len(op.HeaderTemplates)+1)
	for name, tmpl := range op.HeaderTemplates {
		v, err := s.engine.Render(tmpl, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %q: %w", name, err)
		}
		headers[name] = v
	}
	if _, ok := headers["Content-Type"]; !ok && len(body) > 0 {
		headers["Content-Type"] = contentType(op.Format)
	}

	url := strings.TrimRight(p.BaseURL, "/") + path
	resp, err := s.client.Do(ctx, p.ID, op.Method, url, headers, body)
	if err != nil {
		s.logger.Error("generic sender transport failure",
			"provider_id", p.ID, "operation", req.Operation,
			"transfer_id", req.TransferID.String(), "error", err,
		)
		return provider.TechnicalResult(err.Error()), nil
	}
	if !resp.OK() {
		return &provider.Result{
			Status:    shared.OutboxStatusFailed,
			ErrorText: fmt.Sprintf("provider returned HTTP %d", resp.StatusCode),
		}, nil
	}

	return s.classify(p, op, resp.Body, req)
}

// classify parses the body, extracts the declared fields and resolves the
// outcome: status mapping first, success-field equality second, SUCCESS when
// neither is configured.
func (s *Sender) classify(p *provider.Provider, op provider.OperationSettings, body []byte, req *provider.Request) (*provider.Result, error) {
	doc, err := fieldpath.Parse(op.ResponseFormat, body)
	if err != nil {
		s.logger.Error("generic sender parse failure",
			"provider_id", p.ID, "transfer_id", req.TransferID.String(), "error", err,
		)
		return provider.TechnicalResult("unparseable provider response: " + err.Error()), nil
	}

	fields := make(map[string]string)
	for _, ex := range fieldpath.ParseExtractions(op.ResponseFields) {
		if v, ok := doc.Get(ex.Path); ok {
			fields[ex.Key] = v
		}
	}

	status, resolved := s.resolveStatus(op, doc)
	if !resolved {
		status = s.resolveSuccessField(op, doc)
	}

	result := &provider.Result{Status: status, Fields: fields}
	if status.IsFailure() {
		result.ErrorText = s.errorText(op, doc)
	}
	return result, nil
}

// resolveStatus maps the extracted status value through the configured table.
// An unmapped value with no "*" default leaves the status unresolved so the
// caller falls through to success-field evaluation.
func (s *Sender) resolveStatus(op provider.OperationSettings, doc fieldpath.Document) (shared.OutboxStatus, bool) {
	if len(op.StatusMapping) == 0 || op.StatusPath == "" {
		return "", false
	}
	raw, ok := doc.Get(op.StatusPath)
	if !ok {
		return "", false
	}
	if mapped, ok := op.StatusMapping[raw]; ok {
		return mapped, true
	}
	if def, ok := op.StatusMapping["*"]; ok {
		return def, true
	}
	return "", false
}

func (s *Sender) resolveSuccessField(op provider.OperationSettings, doc fieldpath.Document) shared.OutboxStatus {
	if op.SuccessField == "" {
		return shared.OutboxStatusSuccess
	}
	if v, ok := doc.Get(op.SuccessField); ok && v == op.SuccessValue {
		return shared.OutboxStatusSuccess
	}
	return shared.OutboxStatusFailed
}

func (s *Sender) errorText(op provider.OperationSettings, doc fieldpath.Document) string {
	if op.ErrorField == "" {
		return "provider declined"
	}
	if v, ok := doc.Get(op.ErrorField); ok && v != "" {
		return v
	}
	return "provider declined"
}

func contentType(format string) string {
	if format == provider.FormatXML {
		return "application/xml"
	}
	return "application/json"
}
