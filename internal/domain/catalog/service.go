// Package catalog holds the service catalog: the settlement products a
// terminal can pay into, with their account format, declared parameters and
// payout configuration.
package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/shared"
)

// ParamDef declares one caller-supplied parameter of a service
type ParamDef struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Regex    string `json:"regex,omitempty"`
}

// Service is one settlement product routed to a provider
type Service struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	ProviderID        int64          `json:"provider_id"`
	ProviderServiceID string         `json:"provider_service_id"`
	Enabled           bool           `json:"enabled"`
	AccountRegex      string         `json:"account_regex"`
	AccountStrip      string         `json:"account_strip,omitempty"` // characters removed before validation
	Params            []ParamDef     `json:"params"`
	PayoutCurrencies  []string       `json:"payout_currencies"`
	DefaultPayout     string         `json:"default_payout"`
	Rounding          money.Rounding `json:"rounding"`
	MinAmount         int64          `json:"min_amount"`
	MaxAmount         int64          `json:"max_amount"`
	CreatedAt         time.Time      `json:"created_at"`
}

// NormalizeAccount strips configured characters and validates the beneficiary
// identifier against the service's account format.
func (s *Service) NormalizeAccount(account string) (string, error) {
	normalized := strings.TrimSpace(account)
	for _, r := range s.AccountStrip {
		normalized = strings.ReplaceAll(normalized, string(r), "")
	}
	if normalized == "" {
		return "", shared.NewError(shared.CodeValidation, "account is required")
	}
	if s.AccountRegex != "" {
		re, err := regexp.Compile(s.AccountRegex)
		if err != nil {
			return "", shared.WrapError(shared.CodeUnexpected, "invalid account format definition", err)
		}
		if !re.MatchString(normalized) {
			return "", shared.NewErrorf(shared.CodeValidation, "account %q does not match required format", account)
		}
	}
	return normalized, nil
}

// ValidateParams checks caller parameters against the declared catalog:
// required parameters must be present, declared regexes must match. Unknown
// parameters are passed through untouched; providers ignore what they don't use.
func (s *Service) ValidateParams(params map[string]string) error {
	for _, def := range s.Params {
		value, ok := params[def.Name]
		if !ok || value == "" {
			if def.Required {
				return shared.NewErrorf(shared.CodeValidation, "parameter %q is required", def.Name)
			}
			continue
		}
		if def.Regex != "" {
			re, err := regexp.Compile(def.Regex)
			if err != nil {
				return shared.WrapError(shared.CodeUnexpected, fmt.Sprintf("invalid definition for parameter %q", def.Name), err)
			}
			if !re.MatchString(value) {
				return shared.NewErrorf(shared.CodeValidation, "parameter %q has invalid value", def.Name)
			}
		}
	}
	return nil
}

// ValidateAmount enforces the service's per-transfer limits in minor units
func (s *Service) ValidateAmount(amount int64) error {
	if amount <= 0 {
		return shared.NewError(shared.CodeValidation, "amount must be positive")
	}
	if s.MinAmount > 0 && amount < s.MinAmount {
		return shared.NewError(shared.CodeValidation, "amount below minimum of "+strconv.FormatInt(s.MinAmount, 10))
	}
	if s.MaxAmount > 0 && amount > s.MaxAmount {
		return shared.NewError(shared.CodeValidation, "amount above maximum of "+strconv.FormatInt(s.MaxAmount, 10))
	}
	return nil
}

// PayoutCurrency resolves the payout currency: an explicit request must be in
// the allowed set; empty falls back to the service default.
func (s *Service) PayoutCurrency(requested string) (string, error) {
	if requested == "" {
		if s.DefaultPayout == "" {
			return "", shared.NewError(shared.CodeValidation, "service has no default payout currency")
		}
		return s.DefaultPayout, nil
	}
	for _, c := range s.PayoutCurrencies {
		if c == requested {
			return requested, nil
		}
	}
	return "", shared.NewErrorf(shared.CodeValidation, "payout currency %s not allowed for service", requested)
}
