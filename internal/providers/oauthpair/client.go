// Package oauthpair implements the OAuth two-step provider: a quote call
// whose id is consumed by a create call, both under a bearer token refreshed
// through the Token Service on a single 401.
package oauthpair

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/providers/fieldpath"
	"github.com/paynet-transfer-switch/internal/providers/httpx"
	"github.com/paynet-transfer-switch/internal/providers/token"
	"github.com/paynet-transfer-switch/internal/template"
)

// Operation names in provider settings
const (
	opQuote  = "quote"
	opCreate = "create"
	opState  = "state"
)

// Common settings keys the adapter reads
const (
	keyTokenPath    = "token_path"
	keyTokenBody    = "token_body"
	keySuccessCode  = "state_success_code"
	keyQuoteIDField = "quote_id_field"
)

// Client speaks the OAuth quote+create protocol
type Client struct {
	engine *template.Engine
	http   *httpx.Client
	tokens *token.Service
	logger *slog.Logger
}

func NewClient(engine *template.Engine, http *httpx.Client, tokens *token.Service, logger *slog.Logger) *Client {
	return &Client{engine: engine, http: http, tokens: tokens, logger: logger}
}

// Send maps the normalized operations onto the provider's protocol: check
// runs the quote call alone, payment runs quote then create, state polls the
// provider-side status.
func (c *Client) Send(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	switch req.Operation {
	case provider.OperationCheck:
		result, _, err := c.call(ctx, p, req, opQuote, nil)
		return result, err
	case provider.OperationPayment:
		return c.payment(ctx, p, req)
	case provider.OperationState:
		return c.state(ctx, p, req)
	default:
		return nil, shared.NewErrorf(shared.CodeValidation, "unsupported operation %q", req.Operation)
	}
}

// payment quotes first, then creates the transfer consuming the quote id
func (c *Client) payment(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	quoteResult, doc, err := c.call(ctx, p, req, opQuote, nil)
	if err != nil || quoteResult.Status != shared.OutboxStatusSuccess {
		return quoteResult, err
	}

	quoteIDField := p.Settings.Common[keyQuoteIDField]
	if quoteIDField == "" {
		quoteIDField = "id"
	}
	quoteID, ok := doc.Get(quoteIDField)
	if !ok || quoteID == "" {
		return provider.TechnicalResult("quote response carries no quote id"), nil
	}

	createResult, _, err := c.call(ctx, p, req, opCreate, map[string]string{"QuoteId": quoteID})
	if err != nil {
		return nil, err
	}
	if createResult.Fields == nil {
		createResult.Fields = make(map[string]string)
	}
	for k, v := range quoteResult.Fields {
		if _, exists := createResult.Fields[k]; !exists {
			createResult.Fields[k] = v
		}
	}
	return createResult, nil
}

// state polls the provider status: the configured numeric code means settled,
// anything else is still pending (technical, retried later).
func (c *Client) state(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	result, doc, err := c.call(ctx, p, req, opState, nil)
	if err != nil || result.Status != shared.OutboxStatusSuccess {
		return result, err
	}

	op, _ := p.Settings.Operation(opState)
	code, _ := doc.Get(op.StatusPath)
	if code == p.Settings.Common[keySuccessCode] {
		return result, nil
	}
	return &provider.Result{Status: shared.OutboxStatusTechnical, Fields: result.Fields, ErrorText: "transfer still pending, provider code " + code}, nil
}

// call executes one templated JSON exchange with bearer auth and a single
// refresh-and-retry on 401.
func (c *Client) call(ctx context.Context, p *provider.Provider, req *provider.Request, operation string, extra map[string]string) (*provider.Result, fieldpath.Document, error) {
	op, ok := p.Settings.Operation(operation)
	if !ok {
		return nil, nil, shared.NewErrorf(shared.CodeValidation, "provider %d has no operation %q", p.ID, operation)
	}

	bearer, err := c.tokens.GetAccessToken(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.exchange(ctx, p, op, req, extra, bearer)
	if err != nil {
		return provider.TechnicalResult(err.Error()), nil, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		bearer, err = c.tokens.RefreshOn401(ctx, p.ID, bearer, c.loginFunc(p))
		if err != nil {
			return provider.TechnicalResult("token refresh failed: " + err.Error()), nil, nil
		}
		resp, err = c.exchange(ctx, p, op, req, extra, bearer)
		if err != nil {
			return provider.TechnicalResult(err.Error()), nil, nil
		}
	}
	if !resp.OK() {
		return &provider.Result{
			Status:    shared.OutboxStatusFailed,
			ErrorText: fmt.Sprintf("provider returned HTTP %d", resp.StatusCode),
		}, nil, nil
	}

	doc, err := fieldpath.ParseJSON(resp.Body)
	if err != nil {
		return provider.TechnicalResult("malformed JSON response: " + err.Error()), nil, nil
	}

	fields := make(map[string]string)
	for _, ex := range fieldpath.ParseExtractions(op.ResponseFields) {
		if v, found := doc.Get(ex.Path); found {
			fields[ex.Key] = v
		}
	}
	if op.SuccessField != "" {
		if v, found := doc.Get(op.SuccessField); !found || v != op.SuccessValue {
			errText := "provider declined"
			if msg, found := doc.Get(op.ErrorField); found && msg != "" {
				errText = msg
			}
			return &provider.Result{Status: shared.OutboxStatusFailed, Fields: fields, ErrorText: errText}, doc, nil
		}
	}
	return &provider.Result{Status: shared.OutboxStatusSuccess, Fields: fields}, doc, nil
}

func (c *Client) exchange(ctx context.Context, p *provider.Provider, op provider.OperationSettings, req *provider.Request, extra map[string]string, bearer string) (*httpx.Response, error) {
	values := req.TemplateValues(p.Settings.Common, extra)

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

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + bearer,
	}
	return c.http.Do(ctx, p.ID, op.Method, strings.TrimRight(p.BaseURL, "/")+path, headers, body)
}

// loginFunc performs the client-credentials login against the token endpoint
func (c *Client) loginFunc(p *provider.Provider) token.LoginFunc {
	return func(ctx context.Context) (string, error) {
		values := template.Values{}
		for k, v := range p.Settings.Common {
			values["Common."+k] = v
		}
		body, err := c.engine.Render(p.Settings.Common[keyTokenBody], values)
		if err != nil {
			return "", fmt.Errorf("failed to render token request body: %w", err)
		}

		headers := map[string]string{"Content-Type": "application/json"}
		resp, err := c.http.Do(ctx, p.ID, "POST", strings.TrimRight(p.BaseURL, "/")+p.Settings.Common[keyTokenPath], headers, []byte(body))
		if err != nil {
			return "", err
		}
		if !resp.OK() {
			return "", fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode)
		}

		doc, err := fieldpath.ParseJSON(resp.Body)
		if err != nil {
			return "", fmt.Errorf("malformed token response: %w", err)
		}
		accessToken, ok := doc.Get("access_token")
		if !ok || accessToken == "" {
			return "", fmt.Errorf("token response carries no access_token")
		}
		return accessToken, nil
	}
}
