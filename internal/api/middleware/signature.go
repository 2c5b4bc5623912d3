package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paynet-transfer-switch/internal/domain/terminal"
)

const (
	// TerminalIDHeader identifies the calling terminal
	TerminalIDHeader = "X-Terminal-ID"

	// SignatureHeader carries the HMAC-SHA256 of the request body keyed with
	// the terminal secret
	SignatureHeader = "X-Signature"

	// ABSKeyHeader carries the shared secret of the back-office channel
	ABSKeyHeader = "X-ABS-Key"

	// TerminalIDKey is the gin context key the authenticated terminal id is
	// stored under
	TerminalIDKey = "terminal_id"
)

// TerminalAuth authenticates terminal requests: the body must be signed with
// the terminal's secret. The body is re-buffered so handlers can still bind
// it.
func TerminalAuth(terminals terminal.Repository, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		terminalID, err := uuid.Parse(c.GetHeader(TerminalIDHeader))
		if err != nil {
			abortUnauthorized(c, "missing or malformed terminal id")
			return
		}
		signature := c.GetHeader(SignatureHeader)
		if signature == "" {
			abortUnauthorized(c, "missing request signature")
			return
		}

		term, err := terminals.GetByID(c.Request.Context(), terminalID)
		if err != nil {
			logger.Warn("terminal lookup failed during authentication",
				"terminal_id", terminalID.String(), "error", err)
			abortUnauthorized(c, "unknown terminal")
			return
		}
		if !term.Enabled {
			abortUnauthorized(c, "terminal is disabled")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortUnauthorized(c, "unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(term.Secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			logger.Warn("request signature mismatch", "terminal_id", terminalID.String())
			abortUnauthorized(c, "invalid request signature")
			return
		}

		c.Set(TerminalIDKey, terminalID)
		c.Next()
	}
}

// ABSAuth guards the back-office endpoints with the shared key
func ABSAuth(sharedKey string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(ABSKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(sharedKey)) != 1 {
			logger.Warn("back-office authentication failed", "client_ip", c.ClientIP())
			abortUnauthorized(c, "invalid back-office credentials")
			return
		}
		c.Next()
	}
}

// GetTerminalID retrieves the authenticated terminal id from the gin context
func GetTerminalID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(TerminalIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func abortUnauthorized(c *gin.Context, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    "FORBIDDEN",
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, response)
}
