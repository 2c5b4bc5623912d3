package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/paynet-transfer-switch/internal/api/middleware"
	"github.com/paynet-transfer-switch/internal/app"
	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/transfer"
)

// SwitchService is the command surface the transfer handler drives
type SwitchService interface {
	Check(ctx context.Context, cmd app.CheckCommand) (*app.CheckResult, error)
	Prepare(ctx context.Context, cmd app.PrepareCommand) (*transfer.Transfer, error)
	Confirm(ctx context.Context, cmd app.ConfirmCommand) (*transfer.Transfer, error)
	Status(ctx context.Context, terminalID uuid.UUID, transferID *uuid.UUID, externalID string) (*transfer.Transfer, error)
	Balance(ctx context.Context, terminalID uuid.UUID) (map[string]int64, error)
	Rate(ctx context.Context, terminalID uuid.UUID, base, quote string) (*fx.Rate, error)
}

// TransferHandler handles HTTP requests for the transfer lifecycle
type TransferHandler struct {
	service SwitchService
	logger  *slog.Logger
}

// NewTransferHandler creates a new transfer handler
func NewTransferHandler(logger *slog.Logger, service SwitchService) *TransferHandler {
	return &TransferHandler{
		service: service,
		logger:  logger,
	}
}

// Check validates a beneficiary account against the provider
func (h *TransferHandler) Check(c *gin.Context) {
	terminalID, ok := middleware.GetTerminalID(c)
	if !ok {
		RespondBadRequest(c, "missing terminal identity")
		return
	}

	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.service.Check(c.Request.Context(), app.CheckCommand{
		TerminalID: terminalID,
		ServiceID:  req.ServiceID,
		Account:    req.Account,
		Parameters: req.Parameters,
	})
	if err != nil {
		h.logger.Error("Check failed", "service_id", req.ServiceID, "error", err)
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, result)
}

// Prepare creates and prices a transfer
func (h *TransferHandler) Prepare(c *gin.Context) {
	terminalID, ok := middleware.GetTerminalID(c)
	if !ok {
		RespondBadRequest(c, "missing terminal identity")
		return
	}

	var req PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.service.Prepare(c.Request.Context(), app.PrepareCommand{
		TerminalID:     terminalID,
		ExternalID:     req.ExternalID,
		ServiceID:      req.ServiceID,
		Method:         req.Method,
		Account:        req.Account,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PayoutCurrency: req.PayoutCurrency,
		Parameters:     req.Parameters,
	})
	if err != nil {
		h.logger.Error("Prepare failed", "external_id", req.ExternalID, "error", err)
		RespondDomainError(c, err)
		return
	}
	RespondCreated(c, mapTransferToResponse(t))
}

// Confirm commits a prepared transfer under its quote
func (h *TransferHandler) Confirm(c *gin.Context) {
	terminalID, ok := middleware.GetTerminalID(c)
	if !ok {
		RespondBadRequest(c, "missing terminal identity")
		return
	}

	transferID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid transfer ID")
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	quotationID, err := uuid.Parse(req.QuotationID)
	if err != nil {
		RespondBadRequest(c, "Invalid quotation ID")
		return
	}

	t, err := h.service.Confirm(c.Request.Context(), app.ConfirmCommand{
		TerminalID:  terminalID,
		TransferID:  transferID,
		QuotationID: quotationID,
	})
	if err != nil {
		h.logger.Error("Confirm failed", "transfer_id", transferID.String(), "error", err)
		RespondDomainError(c, err)
		return
	}

	// Still CONFIRMED means the settlement is queued; terminal states settle
	// synchronously within the request.
	if !t.Status.IsTerminal() {
		RespondAccepted(c, mapTransferToResponse(t))
		return
	}
	RespondOK(c, mapTransferToResponse(t))
}

// Status returns a transfer by id, or by external id via query parameter
func (h *TransferHandler) Status(c *gin.Context) {
	terminalID, ok := middleware.GetTerminalID(c)
	if !ok {
		RespondBadRequest(c, "missing terminal identity")
		return
	}

	var (
		transferID *uuid.UUID
		externalID = c.Query("external_id")
	)
	if idParam := c.Param("id"); idParam != "" {
		id, err := uuid.Parse(idParam)
		if err != nil {
			RespondBadRequest(c, "Invalid transfer ID")
			return
		}
		transferID = &id
	}

	t, err := h.service.Status(c.Request.Context(), terminalID, transferID, externalID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, mapTransferToResponse(t))
}

// Rate returns the exchange rate in effect for the terminal's agent
func (h *TransferHandler) Rate(c *gin.Context) {
	terminalID, ok := middleware.GetTerminalID(c)
	if !ok {
		RespondBadRequest(c, "missing terminal identity")
		return
	}

	rate, err := h.service.Rate(c.Request.Context(), terminalID, c.Param("base"), c.Param("quote"))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, RateResponse{
		Base:      rate.Base,
		Quote:     rate.Quote,
		Rate:      rate.Rate.String(),
		Source:    rate.Source,
		UpdatedAt: rate.UpdatedAt,
	})
}

// Balance returns the terminal's agent balances
func (h *TransferHandler) Balance(c *gin.Context) {
	terminalID, ok := middleware.GetTerminalID(c)
	if !ok {
		RespondBadRequest(c, "missing terminal identity")
		return
	}

	balances, err := h.service.Balance(c.Request.Context(), terminalID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, BalanceResponse{Balances: balances})
}
