// Package signedxml implements the external-process-signing provider: the
// canonicalized XML body is signed by an out-of-process signer and the
// detached signature travels as a request header. A missing signature is a
// technical failure, never silently skipped.
package signedxml

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/providers/fieldpath"
	"github.com/paynet-transfer-switch/internal/providers/httpx"
	"github.com/paynet-transfer-switch/internal/template"
)

// Common settings keys the adapter reads
const (
	keySignerCmd       = "signer_cmd"
	keyKeyPath         = "key_path"
	keySignatureHeader = "signature_header"
)

// Signer produces a canonical form and a detached signature for a payload.
// The default implementation shells out; tests inject a fake.
type Signer interface {
	Sign(ctx context.Context, command string, payload []byte, keyPath string) (canonical []byte, signature string, err error)
}

// Client speaks the externally-signed XML protocol
type Client struct {
	engine *template.Engine
	http   *httpx.Client
	signer Signer
	logger *slog.Logger
}

func NewClient(engine *template.Engine, http *httpx.Client, signer Signer, logger *slog.Logger) *Client {
	return &Client{engine: engine, http: http, signer: signer, logger: logger}
}

// Send renders the XML body, signs it out of process, attaches the signature
// header and posts the canonical form.
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
	body, err := c.engine.Render(op.BodyTemplate, values)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	canonical, signature, err := c.signer.Sign(ctx, p.Settings.Common[keySignerCmd], []byte(body), p.Settings.Common[keyKeyPath])
	if err != nil {
		c.logger.Error("payload signing failed",
			"provider_id", p.ID, "transfer_id", req.TransferID.String(), "error", err)
		return provider.TechnicalResult("payload signing failed: " + err.Error()), nil
	}

	sigHeader := p.Settings.Common[keySignatureHeader]
	if sigHeader == "" {
		sigHeader = "X-Signature"
	}
	headers := map[string]string{
		"Content-Type": "application/xml",
		sigHeader:      signature,
	}

	resp, err := c.http.Do(ctx, p.ID, op.Method, strings.TrimRight(p.BaseURL, "/")+path, headers, canonical)
	if err != nil {
		return provider.TechnicalResult(err.Error()), nil
	}
	if !resp.OK() {
		return provider.TechnicalResult(fmt.Sprintf("provider returned HTTP %d", resp.StatusCode)), nil
	}

	doc, err := fieldpath.ParseXML(resp.Body)
	if err != nil {
		return provider.TechnicalResult("malformed XML response: " + err.Error()), nil
	}

	fields := make(map[string]string)
	for _, ex := range fieldpath.ParseExtractions(op.ResponseFields) {
		if v, found := doc.Get(ex.Path); found {
			fields[ex.Key] = v
		}
	}

	status := shared.OutboxStatusSuccess
	if op.StatusPath != "" {
		raw, _ := doc.Get(op.StatusPath)
		if mapped, found := op.StatusMapping[raw]; found {
			status = mapped
		} else if def, found := op.StatusMapping["*"]; found {
			status = def
		}
	}

	result := &provider.Result{Status: status, Fields: fields}
	if status.IsFailure() {
		if v, found := doc.Get(op.ErrorField); found && v != "" {
			result.ErrorText = v
		} else {
			result.ErrorText = "provider declined"
		}
	}
	return result, nil
}

// ExecSigner runs the configured signer subprocess: base64 payload and key
// path as arguments, canonical form and signature as the two stdout lines.
type ExecSigner struct{}

func (s *ExecSigner) Sign(ctx context.Context, command string, payload []byte, keyPath string) ([]byte, string, error) {
	if command == "" {
		return nil, "", fmt.Errorf("no signer command configured")
	}

	cmd := exec.CommandContext(ctx, command, base64.StdEncoding.EncodeToString(payload), keyPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("signer process failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	lines := strings.SplitN(strings.TrimSpace(stdout.String()), "\n", 2)
	if len(lines) != 2 {
		return nil, "", fmt.Errorf("signer produced %d output lines, expected canonical form and signature", len(lines))
	}
	canonical, err := base64.StdEncoding.DecodeString(strings.TrimSpace(lines[0]))
	if err != nil {
		return nil, "", fmt.Errorf("signer canonical form is not valid base64: %w", err)
	}
	signature := strings.TrimSpace(lines[1])
	if signature == "" {
		return nil, "", fmt.Errorf("signer produced an empty signature")
	}
	return canonical, signature, nil
}

// NewExecSigner builds the subprocess signer
func NewExecSigner() *ExecSigner {
	return &ExecSigner{}
}
