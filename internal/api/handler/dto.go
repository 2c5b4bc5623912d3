package handler

import (
	"time"

	"github.com/paynet-transfer-switch/internal/domain/transfer"
)

// CheckRequest asks whether a beneficiary account is payable
type CheckRequest struct {
	ServiceID  int64             `json:"service_id" binding:"required"`
	Account    string            `json:"account" binding:"required"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// PrepareRequest creates and prices a transfer
type PrepareRequest struct {
	ExternalID     string            `json:"external_id" binding:"required"`
	ServiceID      int64             `json:"service_id" binding:"required"`
	Method         string            `json:"method,omitempty"`
	Account        string            `json:"account" binding:"required"`
	Amount         int64             `json:"amount" binding:"required,gt=0"`
	Currency       string            `json:"currency" binding:"required,len=3"`
	PayoutCurrency string            `json:"payout_currency,omitempty"`
	Parameters     map[string]string `json:"parameters,omitempty"`
}

// ConfirmRequest commits a prepared transfer under its quote
type ConfirmRequest struct {
	QuotationID string `json:"quotation_id" binding:"required,uuid"`
}

// QuoteResponse represents the priced offer attached to a transfer
type QuoteResponse struct {
	QuotationID      string `json:"quotation_id"`
	TotalAmount      int64  `json:"total_amount"`
	Currency         string `json:"currency"`
	Fee              int64  `json:"fee"`
	ProviderFee      int64  `json:"provider_fee"`
	CreditedAmount   int64  `json:"credited_amount"`
	CreditedCurrency string `json:"credited_currency"`
	ExchangeRate     string `json:"exchange_rate"`
	ExpiresAt        string `json:"expires_at"`
}

// TransferResponse represents a transfer in API responses
type TransferResponse struct {
	TransferID         string            `json:"transfer_id"`
	NumID              int64             `json:"num_id"`
	ExternalID         string            `json:"external_id"`
	ServiceID          int64             `json:"service_id"`
	Account            string            `json:"account"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Status             string            `json:"status"`
	Quote              *QuoteResponse    `json:"quote,omitempty"`
	ProviderTransferID string            `json:"provider_transfer_id,omitempty"`
	ProviderCode       string            `json:"provider_code,omitempty"`
	ProviderFields     map[string]string `json:"provider_fields,omitempty"`
	ErrorDescription   string            `json:"error_description,omitempty"`
	CreatedAt          string            `json:"created_at"`
	CompletedAt        string            `json:"completed_at,omitempty"`
}

// BalanceResponse represents agent balances per currency
type BalanceResponse struct {
	Balances map[string]int64 `json:"balances"`
}

// RateResponse represents a resolved exchange rate
type RateResponse struct {
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Rate      string    `json:"rate"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AdjustBalanceRequest is a back-office balance top-up or drawdown
type AdjustBalanceRequest struct {
	AgentID  string `json:"agent_id" binding:"required,uuid"`
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// UpsertRateRequest installs or replaces an exchange rate
type UpsertRateRequest struct {
	AgentID string `json:"agent_id,omitempty"`
	Base    string `json:"base" binding:"required,len=3"`
	Quote   string `json:"quote" binding:"required,len=3"`
	Rate    string `json:"rate" binding:"required"`
	Source  string `json:"source,omitempty"`
}

func mapTransferToResponse(t *transfer.Transfer) TransferResponse {
	resp := TransferResponse{
		TransferID:         t.ID.String(),
		NumID:              t.NumID,
		ExternalID:         t.ExternalID,
		ServiceID:          t.ServiceID,
		Account:            t.Account,
		Amount:             t.Amount.Amount,
		Currency:           t.Amount.Currency,
		Status:             string(t.Status),
		ProviderTransferID: t.ProviderTransferID,
		ProviderCode:       t.ProviderCode,
		ProviderFields:     t.ProvReceivedParams,
		ErrorDescription:   t.ErrorDescription,
		CreatedAt:          t.CreatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	if q := t.CurrentQuote; q != nil {
		resp.Quote = &QuoteResponse{
			QuotationID:      q.ID.String(),
			TotalAmount:      q.Total.Amount,
			Currency:         q.Total.Currency,
			Fee:              q.Fee,
			ProviderFee:      q.ProviderFee,
			CreditedAmount:   q.CreditedAmount.Amount,
			CreditedCurrency: q.CreditedAmount.Currency,
			ExchangeRate:     q.ExchangeRate.String(),
			ExpiresAt:        q.ExpiresAt.Format(time.RFC3339),
		}
	}
	return resp
}
