// Package cryptoxml implements the encrypted-field XML provider: the
// beneficiary account number is RSA-encrypted with the provider's public key
// before templating, and all three operations share one XML result-code
// mapping where code 0 means success.
package cryptoxml

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/providers/fieldpath"
	"github.com/paynet-transfer-switch/internal/providers/httpx"
	"github.com/paynet-transfer-switch/internal/template"
)

// Common settings keys the adapter reads
const (
	keyPublicKeyPath = "public_key_path"
	keyResultNode    = "result_node" // inner node holding code + description
)

// Client speaks the encrypted-field XML protocol
type Client struct {
	engine *template.Engine
	http   *httpx.Client
	logger *slog.Logger

	mu   sync.Mutex
	keys map[string]*rsa.PublicKey // keyed by path; loaded once
}

func NewClient(engine *template.Engine, http *httpx.Client, logger *slog.Logger) *Client {
	return &Client{engine: engine, http: http, logger: logger, keys: make(map[string]*rsa.PublicKey)}
}

// Send encrypts the account, renders and posts the operation, then inspects
// the configured result node for a numeric code where 0 is success and any
// other code is a decline with the description surfaced verbatim.
func (c *Client) Send(ctx context.Context, p *provider.Provider, req *provider.Request) (*provider.Result, error) {
	op, ok := p.Settings.Operation(req.Operation)
	if !ok {
		return nil, shared.NewErrorf(shared.CodeValidation, "provider %d has no operation %q", p.ID, req.Operation)
	}

	encrypted, err := c.encryptAccount(p, req.Account)
	if err != nil {
		c.logger.Error("account encryption failed",
			"provider_id", p.ID, "transfer_id", req.TransferID.String(), "error", err)
		return provider.TechnicalResult("account encryption failed: " + err.Error()), nil
	}

	values := req.TemplateValues(p.Settings.Common, map[string]string{"EncryptedAccount": encrypted})

	path, err := c.engine.RenderURL(op.PathTemplate, values)
	if err != nil {
		return nil, fmt.Errorf("failed to render path template: %w", err)
	}
	body, err := c.engine.Render(op.BodyTemplate, values)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/xml"}
	resp, err := c.http.Do(ctx, p.ID, op.Method, strings.TrimRight(p.BaseURL, "/")+path, headers, []byte(body))
	if err != nil {
		return provider.TechnicalResult(err.Error()), nil
	}
	if !resp.OK() {
		return provider.TechnicalResult(fmt.Sprintf("provider returned HTTP %d", resp.StatusCode)), nil
	}

	return c.mapResult(p, op, resp.Body)
}

// mapResult reads <code> and <description> under the configured result node.
// The node differs per operation but the mapping is shared.
func (c *Client) mapResult(p *provider.Provider, op provider.OperationSettings, body []byte) (*provider.Result, error) {
	doc, err := fieldpath.ParseXML(body)
	if err != nil {
		return provider.TechnicalResult("malformed XML response: " + err.Error()), nil
	}

	node := op.StatusPath
	if node == "" {
		node = p.Settings.Common[keyResultNode]
	}
	code, ok := doc.Get(node + ".code")
	if !ok {
		return provider.TechnicalResult("response carries no result code"), nil
	}

	fields := make(map[string]string)
	for _, ex := range fieldpath.ParseExtractions(op.ResponseFields) {
		if v, found := doc.Get(ex.Path); found {
			fields[ex.Key] = v
		}
	}

	if code != "0" {
		description, _ := doc.Get(node + ".description")
		if description == "" {
			description = "provider error code " + code
		}
		return &provider.Result{Status: shared.OutboxStatusFailed, Fields: fields, ErrorText: description}, nil
	}
	return &provider.Result{Status: shared.OutboxStatusSuccess, Fields: fields}, nil
}

// encryptAccount RSA-encrypts the account with the provider's public key,
// base64 output. Keys are parsed once and cached per path.
func (c *Client) encryptAccount(p *provider.Provider, account string) (string, error) {
	keyPath := p.Settings.Common[keyPublicKeyPath]
	if keyPath == "" {
		return "", fmt.Errorf("provider has no public key path configured")
	}

	key, err := c.publicKey(keyPath)
	if err != nil {
		return "", err
	}
	cipher, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(account))
	if err != nil {
		return "", fmt.Errorf("encryption failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cipher), nil
}

func (c *Client) publicKey(path string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.keys[path]; ok {
		return key, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if rsaKey, err2 := x509.ParsePKCS1PublicKey(block.Bytes); err2 == nil {
			parsed = rsaKey
		} else {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
	}
	rsaKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key in %s is not RSA", path)
	}

	c.keys[path] = rsaKey
	return rsaKey, nil
}
