package handler

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paynet-transfer-switch/internal/domain/fx"
)

// ABSService is the back-office surface the handler drives
type ABSService interface {
	CreditAgent(ctx context.Context, agentID uuid.UUID, amount int64, currency string) (int64, error)
	DebitAgent(ctx context.Context, agentID uuid.UUID, amount int64, currency string) (int64, error)
	UpsertRate(ctx context.Context, r *fx.Rate) error
}

// ABSHandler handles the back-office channel: balance adjustments and
// exchange-rate pushes from the accounting system.
type ABSHandler struct {
	service ABSService
	logger  *slog.Logger
}

// NewABSHandler creates a new back-office handler
func NewABSHandler(logger *slog.Logger, service ABSService) *ABSHandler {
	return &ABSHandler{
		service: service,
		logger:  logger,
	}
}

// Credit tops up an agent balance
func (h *ABSHandler) Credit(c *gin.Context) {
	h.adjust(c, h.service.CreditAgent)
}

// Debit draws down an agent balance
func (h *ABSHandler) Debit(c *gin.Context) {
	h.adjust(c, h.service.DebitAgent)
}

func (h *ABSHandler) adjust(c *gin.Context, op func(context.Context, uuid.UUID, int64, string) (int64, error)) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		RespondBadRequest(c, "Invalid agent ID")
		return
	}

	balance, err := op(c.Request.Context(), agentID, req.Amount, req.Currency)
	if err != nil {
		h.logger.Error("Balance adjustment failed", "agent_id", req.AgentID, "error", err)
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"agent_id": req.AgentID,
		"currency": req.Currency,
		"balance":  balance,
	})
}

// UpsertRate installs or replaces an exchange rate
func (h *ABSHandler) UpsertRate(c *gin.Context) {
	var req UpsertRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		RespondBadRequest(c, "Invalid rate value")
		return
	}

	var agentID *uuid.UUID
	if req.AgentID != "" {
		id, err := uuid.Parse(req.AgentID)
		if err != nil {
			RespondBadRequest(c, "Invalid agent ID")
			return
		}
		agentID = &id
	}

	r := &fx.Rate{
		AgentID: agentID,
		Base:    req.Base,
		Quote:   req.Quote,
		Rate:    rate,
		Source:  req.Source,
	}
	if err := h.service.UpsertRate(c.Request.Context(), r); err != nil {
		h.logger.Error("Rate upsert failed", "base", req.Base, "quote", req.Quote, "error", err)
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"base":  r.Base,
		"quote": r.Quote,
		"rate":  r.Rate.String(),
	})
}
