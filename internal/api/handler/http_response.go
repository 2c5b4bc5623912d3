package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paynet-transfer-switch/internal/api/middleware"
	"github.com/paynet-transfer-switch/internal/domain/catalog"
	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/domain/terminal"
	"github.com/paynet-transfer-switch/internal/domain/transfer"

	agentdomain "github.com/paynet-transfer-switch/internal/domain/agent"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, &Response{
		Data:          data,
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, &Response{
		Error:         &ErrorInfo{Code: code, Message: message},
		CorrelationID: middleware.GetCorrelationID(c),
	})
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted sends a 202 Accepted response with data
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, string(shared.CodeValidation), message)
}

// RespondDomainError translates a domain error into the HTTP status its
// stable code maps to. Unknown errors come back as 500 UNEXPECTED with a
// generic message so internals never leak.
func RespondDomainError(c *gin.Context, err error) {
	code := shared.CodeOf(err)
	if code == shared.CodeUnexpected && isNotFound(err) {
		code = shared.CodeNotFound
	}

	var status int
	switch code {
	case shared.CodeValidation:
		status = http.StatusBadRequest
	case shared.CodeNotFound:
		status = http.StatusNotFound
	case shared.CodeForbidden:
		status = http.StatusForbidden
	case shared.CodeConflict:
		status = http.StatusConflict
	case shared.CodeInsufficientBalance, shared.CodeProviderDeclined:
		status = http.StatusUnprocessableEntity
	case shared.CodeProviderTechnical:
		status = http.StatusBadGateway
	default:
		RespondWithError(c, http.StatusInternalServerError, string(shared.CodeUnexpected), "An internal server error occurred")
		return
	}

	message := err.Error()
	var de *shared.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	RespondWithError(c, status, string(code), message)
}

// isNotFound recognizes the repository not-found error types
func isNotFound(err error) bool {
	var (
		transferNotFound transfer.ErrTransferNotFound
		agentNotFound    agentdomain.ErrAgentNotFound
		terminalNotFound terminal.ErrTerminalNotFound
		serviceNotFound  catalog.ErrServiceNotFound
		rateNotFound     fx.ErrRateNotFound
	)
	return errors.As(err, &transferNotFound) ||
		errors.As(err, &agentNotFound) ||
		errors.As(err, &terminalNotFound) ||
		errors.As(err, &serviceNotFound) ||
		errors.As(err, &rateNotFound)
}
