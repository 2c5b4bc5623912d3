// Package jsonstate implements the JSON status-code provider: every
// operation is a single JSON call whose numeric state field maps onto the
// transfer outcome through a fixed table, with optional fee and rate fields
// extracted alongside.
package jsonstate

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

// Common settings keys the adapter reads
const (
	keyStateField = "state_field" // defaults to "state"
	keyErrorField = "error_field" // defaults to "message"
)

// stateTable is the provider's documented state machine. States not listed
// here fall back to the operation's own status mapping, and failing that are
// treated as still-in-flight.
var stateTable = map[string]shared.OutboxStatus{
	"0":   shared.OutboxStatusTechnical, // accepted, not yet processed
	"1":   shared.OutboxStatusTechnical, // processing
	"2":   shared.OutboxStatusSuccess,
	"3":   shared.OutboxStatusFailed,
	"4":   shared.OutboxStatusExpired,
	"5":   shared.OutboxStatusFraud,
	"100": shared.OutboxStatusTechnical, // provider-side technical error
}

// Client speaks the JSON status-code protocol
type Client struct {
	engine *template.Engine
	http   *httpx.Client
	logger *slog.Logger
}

func NewClient(engine *template.Engine, http *httpx.Client, logger *slog.Logger) *Client {
	return &Client{engine: engine, http: http, logger: logger}
}

// Send renders one JSON exchange and maps the state field through the fixed
// table, letting per-operation status mappings override individual codes.
func (c *Client) Send(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	op, ok := p.Settings.Operation(req.Operation)
	if !ok {
		return nil, shared.NewErrorf(shared.CodeValidation, "provider %d has no operation %q", p.ID, req.Operation)
	}

	values := req.TemplateValues(p.Settings.Common, nil)
	path, err := c.engine.RenderURL(op.PathTemplate, values)
	if err != nil {
		return nil, fmt.Errorf("failed to render path template: %w", err)
	}
	var body []byte
	if op.BodyTemplate != "" {
		rendered, err := c.engine.Render(op.BodyTemplate, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}
		body = []byte(rendered)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for name, tmpl := range op.HeaderTemplates {
		v, err := c.engine.Render(tmpl, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %q: %w", name, err)
		}
		headers[name] = v
	}

	resp, err := c.http.Do(ctx, p.ID, op.Method, strings.TrimRight(p.BaseURL, "/")+path, headers, body)
	if err != nil {
		return provider.TechnicalResult(err.Error()), nil
	}
	if !resp.OK() {
		return provider.TechnicalResult(fmt.Sprintf("provider returned HTTP %d", resp.StatusCode)), nil
	}

	doc, err := fieldpath.ParseJSON(resp.Body)
	if err != nil {
		return provider.TechnicalResult("malformed JSON response: " + err.Error()), nil
	}
	return c.classify(p, op, doc), nil
}

func (c *Client) classify(p *provider.Provider, op provider.OperationSettings, doc fieldpath.Document) *provider.Result {
	fields := make(map[string]string)
	for _, ex := range fieldpath.ParseExtractions(op.ResponseFields) {
		if v, ok := doc.Get(ex.Path); ok {
			fields[ex.Key] = v
		}
	}

	stateField := op.StatusPath
	if stateField == "" {
		stateField = p.Settings.Common[keyStateField]
	}
	if stateField == "" {
		stateField = "state"
	}
	state, ok := doc.Get(stateField)
	if !ok {
		return provider.TechnicalResult("response carries no state field")
	}

	status, known := op.StatusMapping[state]
	if !known {
		status, known = stateTable[state]
	}
	if !known {
		c.logger.Warn("unknown provider state, treating as in-flight",
			"provider_id", p.ID, "state", state)
		status = shared.OutboxStatusTechnical
	}

	result := &provider.Result{Status: status, Fields: fields}
	if status.IsFailure() {
		errField := op.ErrorField
		if errField == "" {
			errField = p.Settings.Common[keyErrorField]
		}
		if errField == "" {
			errField = "message"
		}
		if v, ok := doc.Get(errField); ok && v != "" {
			result.ErrorText = v
		} else {
			result.ErrorText = "provider state " + state
		}
	}
	return result
}
