package agent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInsufficientBalance = errors.New("insufficient balance for debit")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrEmptyName           = errors.New("agent name cannot be empty")
	ErrCurrencyNotAllowed  = errors.New("currency not enabled for agent")
	ErrServiceNotAllowed   = errors.New("service not enabled for agent")
)

// ServiceGrant is an agent's access grant for one service: the enable flag
// plus the agent-side fee schedule applied during Prepare.
type ServiceGrant struct {
	Enabled     bool  `json:"enabled"`
	FeePermille int64 `json:"fee_permille"`
	FeeFlat     int64 `json:"fee_flat"`
}

// Agent is a partner organization holding per-currency minor-unit balances
// and access grants. Balances are mutated only through Debit/Credit.
type Agent struct {
	ID            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Balances      map[string]int64       `json:"balances"`
	Currencies    map[string]bool        `json:"currencies"`
	ServiceGrants map[int64]ServiceGrant `json:"service_grants"`
	Version       int                    `json:"version"` // For optimistic locking
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewAgent creates an agent with empty balances and no grants
func NewAgent(name string) (*Agent, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	now := time.Now()
	return &Agent{
		ID:            uuid.New(),
		Name:          name,
		Balances:      make(map[string]int64),
		Currencies:    make(map[string]bool),
		ServiceGrants: make(map[int64]ServiceGrant),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Balance returns the agent's balance in the given currency, zero if none
func (a *Agent) Balance(currency string) int64 {
	return a.Balances[currency]
}

// HasSufficientBalance reports whether a debit of amount would succeed
func (a *Agent) HasSufficientBalance(amount int64, currency string) bool {
	return a.Balances[currency] >= amount
}

// Debit subtracts amount from the currency balance, asserting sufficiency
func (a *Agent) Debit(amount int64, currency string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balances[currency] < amount {
		return ErrInsufficientBalance
	}
	a.Balances[currency] -= amount
	a.touch()
	return nil
}

// Credit adds amount to the currency balance
func (a *Agent) Credit(amount int64, currency string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Balances == nil {
		a.Balances = make(map[string]int64)
	}
	a.Balances[currency] += amount
	a.touch()
	return nil
}

// CurrencyEnabled reports whether the agent may transact in the currency
func (a *Agent) CurrencyEnabled(currency string) bool {
	return a.Currencies[currency]
}

// Grant returns the agent's grant for a service; a missing grant is disabled
func (a *Agent) Grant(serviceID int64) ServiceGrant {
	return a.ServiceGrants[serviceID]
}

// CheckAccess validates both the currency and service grants at once
func (a *Agent) CheckAccess(serviceID int64, currency string) error {
	if !a.CurrencyEnabled(currency) {
		return ErrCurrencyNotAllowed
	}
	if !a.Grant(serviceID).Enabled {
		return ErrServiceNotAllowed
	}
	return nil
}

func (a *Agent) touch() {
	a.UpdatedAt = time.Now()
	a.Version++
}
