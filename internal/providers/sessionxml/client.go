// Package sessionxml implements the session-based XML provider protocol:
// a cached session id obtained through an init call, request bodies rendered
// from templates, and a one-shot session re-initialization when the provider
// reports an unknown session.
package sessionxml

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/providers/fieldpath"
	"github.com/paynet-transfer-switch/internal/providers/httpx"
	"github.com/paynet-transfer-switch/internal/providers/token"
	"github.com/paynet-transfer-switch/internal/template"
)

// Common settings keys the adapter reads
const (
	keyInitPath           = "init_path"
	keyInitBody           = "init_body"
	keySessionPath        = "session_path"
	keySessionErrorMarker = "session_error_marker"
	keyUnavailableMarker  = "unavailable_marker"
)

// Client speaks the session-based XML protocol
type Client struct {
	engine *template.Engine
	http   *httpx.Client
	tokens *token.Service
	logger *slog.Logger
}

func NewClient(engine *template.Engine, http *httpx.Client, tokens *token.Service, logger *slog.Logger) *Client {
	return &Client{engine: engine, http: http, tokens: tokens, logger: logger}
}

// Send posts the templated operation with the cached session id. An unknown
// session triggers exactly one re-init and one retry; the Token Service
// guards the re-init so concurrent failures produce a single init call.
func (c *Client) Send(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	op, ok := p.Settings.Operation(req.Operation)
	if !ok {
		return nil, shared.NewErrorf(shared.CodeValidation, "provider %d has no operation %q", p.ID, req.Operation)
	}

	session, err := c.tokens.GetAccessToken(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if session == "" {
		session, err = c.tokens.RefreshOn401(ctx, p.ID, "", c.initFunc(p))
		if err != nil {
			return provider.TechnicalResult("session init failed: "+err.Error()), nil
		}
	}

	result, sessionLost, err := c.exchange(ctx, p, op, req, session)
	if err != nil {
		return nil, err
	}
	if sessionLost {
		// one-shot re-init, then exactly one retry
		session, err = c.tokens.RefreshOn401(ctx, p.ID, session, c.initFunc(p))
		if err != nil {
			return provider.TechnicalResult("session re-init failed: "+err.Error()), nil
		}
		result, sessionLost, err = c.exchange(ctx, p, op, req, session)
		if err != nil {
			return nil, err
		}
		if sessionLost {
			return provider.TechnicalResult("provider rejected freshly initialized session"), nil
		}
	}
	return result, nil
}

// exchange posts once (with transport-level retry) and defensively parses the
// reply, distinguishing malformed XML, SOAP faults, the upstream-unavailable
// sentinel and unknown-session markers.
func (c *Client) exchange(ctx context.Context, p *provider.Provider, op provider.OperationSettings, req *provider.Request, session string) (*provider.Result, bool, error) {
	values := req.TemplateValues(p.Settings.Common, map[string]string{"Session": session})

	path, err := c.engine.RenderURL(op.PathTemplate, values)
	if err != nil {
		return nil, false, fmt.Errorf("failed to render path template: %w", err)
	}
	body, err := c.engine.Render(op.BodyTemplate, values)
	if err != nil {
		return nil, false, fmt.Errorf("failed to render body template: %w", err)
	}

	headers := map[string]string{"Content-Type": "text/xml; charset=utf-8"}
	for name, tmpl := range op.HeaderTemplates {
		v, err := c.engine.Render(tmpl, values)
		if err != nil {
			return nil, false, fmt.Errorf("failed to render header %q: %w", name, err)
		}
		headers[name] = v
	}

	resp, err := c.http.Do(ctx, p.ID, op.Method, strings.TrimRight(p.BaseURL, "/")+path, headers, []byte(body))
	if err != nil {
		c.logger.Error("session provider transport failure",
			"provider_id", p.ID, "transfer_id", req.TransferID.String(), "error", err)
		return provider.TechnicalResult(err.Error()), false, nil
	}
	if !resp.OK() {
		return provider.TechnicalResult(fmt.Sprintf("provider returned HTTP %d", resp.StatusCode)), false, nil
	}

	if marker := p.Settings.Common[keySessionErrorMarker]; marker != "" && fieldpath.ContainsMarker(resp.Body, marker) {
		return nil, true, nil
	}
	if marker := p.Settings.Common[keyUnavailableMarker]; marker != "" && fieldpath.ContainsMarker(resp.Body, marker) {
		return provider.TechnicalResult("upstream system unavailable"), false, nil
	}

	doc, err := fieldpath.ParseXML(resp.Body)
	if err != nil {
		return provider.TechnicalResult("malformed XML response: " + err.Error()), false, nil
	}
	if fieldpath.ContainsMarker(resp.Body, "Fault") {
		fault := "provider SOAP fault"
		if v, ok := doc.Get("Envelope.Body.Fault.faultstring"); ok && v != "" {
			fault = v
		}
		return provider.DeclinedResult(fault), false, nil
	}

	return c.classify(op, doc), false, nil
}

func (c *Client) classify(op provider.OperationSettings, doc fieldpath.Document) *provider.Result {
	fields := make(map[string]string)
	for _, ex := range fieldpath.ParseExtractions(op.ResponseFields) {
		if v, ok := doc.Get(ex.Path); ok {
			fields[ex.Key] = v
		}
	}

	status := shared.OutboxStatusSuccess
	if op.StatusPath != "" {
		raw, _ := doc.Get(op.StatusPath)
		if mapped, ok := op.StatusMapping[raw]; ok {
			status = mapped
		} else if def, ok := op.StatusMapping["*"]; ok {
			status = def
		}
	}

	result := &provider.Result{Status: status, Fields: fields}
	if status.IsFailure() {
		if v, ok := doc.Get(op.ErrorField); ok && v != "" {
			result.ErrorText = v
		} else {
			result.ErrorText = "provider declined"
		}
	}
	return result
}

// initFunc builds the Token Service login function: one init call that
// renders the configured init body against Common and extracts the session.
func (c *Client) initFunc(p *provider.Provider) token.LoginFunc {
	return func(ctx context.Context) (string, error) {
		values := template.Values{}
		for k, v := range p.Settings.Common {
			values["Common."+k] = v
		}
		body, err := c.engine.Render(p.Settings.Common[keyInitBody], values)
		if err != nil {
			return "", fmt.Errorf("failed to render init body: %w", err)
		}

		headers := map[string]string{"Content-Type": "text/xml; charset=utf-8"}
		resp, err := c.http.Do(ctx, p.ID, "POST", strings.TrimRight(p.BaseURL, "/")+p.Settings.Common[keyInitPath], headers, []byte(body))
		if err != nil {
			return "", err
		}
		if !resp.OK() {
			return "", fmt.Errorf("init call returned HTTP %d", resp.StatusCode)
		}

		doc, err := fieldpath.ParseXML(resp.Body)
		if err != nil {
			return "", fmt.Errorf("malformed init response: %w", err)
		}
		session, ok := doc.Get(p.Settings.Common[keySessionPath])
		if !ok || session == "" {
			return "", fmt.Errorf("init response carries no session id")
		}
		return session, nil
	}
}
