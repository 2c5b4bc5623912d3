package app

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/domain/catalog"
	"github.com/paynet-transfer-switch/internal/domain/fx"
	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/outbox"
	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/domain/terminal"
	"github.com/paynet-transfer-switch/internal/domain/transfer"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// CheckCommand asks the provider whether a beneficiary account exists before
// any money moves
type CheckCommand struct {
	TerminalID uuid.UUID
	ServiceID  int64
	Account    string
	Parameters map[string]string
}

// CheckResult is the provider's answer to a beneficiary inquiry
type CheckResult struct {
	Valid     bool              `json:"valid"`
	Fields    map[string]string `json:"fields,omitempty"`
	Offers    []CurrencyOffer   `json:"offers,omitempty"`
	ErrorText string            `json:"error_text,omitempty"`
}

// CurrencyOffer is one corridor the terminal may price a transfer through:
// the agent pays in Base, the beneficiary receives Quote at Rate.
type CurrencyOffer struct {
	Base  string          `json:"base"`
	Quote string          `json:"quote"`
	Rate  decimal.Decimal `json:"rate"`
}

// PrepareCommand creates and prices a transfer without moving money
type PrepareCommand struct {
	TerminalID     uuid.UUID
	ExternalID     string
	ServiceID      int64
	Method         string
	Account        string
	Amount         int64
	Currency       string
	PayoutCurrency string
	Parameters     map[string]string
}

// ConfirmCommand commits a prepared transfer under its quote
type ConfirmCommand struct {
	TerminalID  uuid.UUID
	TransferID  uuid.UUID
	QuotationID uuid.UUID
}

// SwitchService implements the transfer lifecycle commands
type SwitchService struct {
	pgDB      *persistence.PostgresDB
	agents    agent.Repository
	terminals terminal.Repository
	services  catalog.Repository
	transfers transfer.Repository
	outbox    outbox.Repository
	providers provider.Repository
	gateway   ProviderGateway
	quoter    *Quoter
	settler   *Settler
	logger    *slog.Logger
}

// NewSwitchService wires the command service
func NewSwitchService(
	pgDB *persistence.PostgresDB,
	agents agent.Repository,
	terminals terminal.Repository,
	services catalog.Repository,
	transfers transfer.Repository,
	outboxRepo outbox.Repository,
	providers provider.Repository,
	gateway ProviderGateway,
	quoter *Quoter,
	settler *Settler,
	logger *slog.Logger,
) *SwitchService {
	return &SwitchService{
		pgDB:      pgDB,
		agents:    agents,
		terminals: terminals,
		services:  services,
		transfers: transfers,
		outbox:    outboxRepo,
		providers: providers,
		gateway:   gateway,
		quoter:    quoter,
		settler:   settler,
		logger:    logger,
	}
}

// Check validates the beneficiary against the provider. Nothing is persisted;
// the throwaway transfer id only correlates the provider exchange in the
// journal.
func (s *SwitchService) Check(ctx context.Context, cmd CheckCommand) (*CheckResult, error) {
	a, _, err := s.resolveAgent(ctx, cmd.TerminalID)
	if err != nil {
		return nil, err
	}
	svc, err := s.resolveService(ctx, cmd.ServiceID)
	if err != nil {
		return nil, err
	}
	if !a.Grant(svc.ID).Enabled {
		return nil, shared.NewError(shared.CodeForbidden, "service not enabled for agent")
	}

	account, err := svc.NormalizeAccount(cmd.Account)
	if err != nil {
		return nil, err
	}
	if err := svc.ValidateParams(cmd.Parameters); err != nil {
		return nil, err
	}

	req := &provider.Request{
		AgentID:           a.ID,
		Operation:         provider.OperationCheck,
		TransferID:        uuid.New(),
		ServiceID:         svc.ID,
		ProviderServiceID: svc.ProviderServiceID,
		ServiceName:       svc.Name,
		Account:           account,
		Parameters:        cmd.Parameters,
		CreatedAt:         time.Now(),
	}
	result, err := s.gateway.Send(ctx, svc.ProviderID, req)
	if err != nil {
		return nil, err
	}
	if result.Status == shared.OutboxStatusTechnical {
		return nil, shared.NewError(shared.CodeProviderTechnical, result.ErrorText)
	}
	res := &CheckResult{
		Valid:     result.Status == shared.OutboxStatusSuccess,
		Fields:    result.Fields,
		ErrorText: result.ErrorText,
	}
	if res.Valid {
		res.Offers = s.buildOffers(ctx, a, svc, result.Fields)
	}
	return res, nil
}

// offerCurrenciesField is the check enrichment field some providers return,
// listing the payout currencies they accept for this beneficiary.
const offerCurrenciesField = "Currencies"

// buildOffers intersects the service's payout currencies with whatever the
// provider reported for the beneficiary and with the rates the agent can be
// priced at. Corridors without a resolvable rate are dropped silently; a
// missing rate is a pricing gap, not a check failure.
func (s *SwitchService) buildOffers(ctx context.Context, a *agent.Agent, svc *catalog.Service, fields map[string]string) []CurrencyOffer {
	payouts := svc.PayoutCurrencies
	if reported, ok := fields[offerCurrenciesField]; ok {
		eligible := make(map[string]bool)
		for _, c := range strings.Split(reported, ",") {
			eligible[strings.ToUpper(strings.TrimSpace(c))] = true
		}
		filtered := make([]string, 0, len(payouts))
		for _, c := range payouts {
			if eligible[c] {
				filtered = append(filtered, c)
			}
		}
		payouts = filtered
	}

	bases := make([]string, 0, len(a.Currencies))
	for c, enabled := range a.Currencies {
		if enabled {
			bases = append(bases, c)
		}
	}
	sort.Strings(bases)

	var offers []CurrencyOffer
	for _, base := range bases {
		for _, quote := range payouts {
			rate, err := s.quoter.Rate(ctx, a.ID, base, quote)
			if err != nil {
				continue
			}
			offers = append(offers, CurrencyOffer{Base: base, Quote: quote, Rate: rate.Rate})
		}
	}
	return offers
}

// Prepare validates, prices and persists a new PREPARED transfer. A repeated
// external id is rejected as a conflict; the (agent, external id) unique
// constraint closes the race between concurrent duplicates.
func (s *SwitchService) Prepare(ctx context.Context, cmd PrepareCommand) (*transfer.Transfer, error) {
	a, term, err := s.resolveAgent(ctx, cmd.TerminalID)
	if err != nil {
		return nil, err
	}
	svc, err := s.resolveService(ctx, cmd.ServiceID)
	if err != nil {
		return nil, err
	}

	if err := a.CheckAccess(svc.ID, cmd.Currency); err != nil {
		return nil, shared.WrapError(shared.CodeForbidden, "access denied", err)
	}

	account, err := svc.NormalizeAccount(cmd.Account)
	if err != nil {
		return nil, err
	}
	if err := svc.ValidateParams(cmd.Parameters); err != nil {
		return nil, err
	}
	if err := svc.ValidateAmount(cmd.Amount); err != nil {
		return nil, err
	}
	payout, err := svc.PayoutCurrency(cmd.PayoutCurrency)
	if err != nil {
		return nil, err
	}

	p, err := s.providers.GetByID(ctx, svc.ProviderID)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, shared.NewError(shared.CodeProviderTechnical, "service temporarily unavailable")
	}

	requested, err := money.New(cmd.Amount, cmd.Currency)
	if err != nil {
		return nil, err
	}
	quote, err := s.quoter.Build(ctx, a, svc, requested, payout, p.FeePermille)
	if err != nil {
		return nil, err
	}

	// Advisory check only; the binding balance check happens under the row
	// lock during Confirm.
	if !a.HasSufficientBalance(quote.Total.Amount, quote.Total.Currency) {
		return nil, shared.NewError(shared.CodeInsufficientBalance, "agent balance too low for total amount")
	}

	t, err := transfer.NewTransfer(a.ID, term.ID, cmd.ExternalID, svc.ID, cmd.Method, account, requested, quote, cmd.Parameters)
	if err != nil {
		return nil, err
	}

	if err := s.transfers.Create(ctx, t); err != nil {
		var dup transfer.ErrDuplicateExternalID
		if errors.As(err, &dup) {
			s.logger.Warn("prepare rejected for duplicate external id",
				"agent_id", a.ID.String(), "external_id", cmd.ExternalID)
			return nil, shared.WrapError(shared.CodeConflict, "external id already used", err)
		}
		return nil, err
	}

	if p.Synchronous {
		s.preflight(ctx, t, svc, p.ID)
	}

	s.logger.Info("transfer prepared",
		"transfer_id", t.ID.String(), "num_id", t.NumID,
		"agent_id", a.ID.String(), "service_id", svc.ID,
		"total", money.FormatMinor(quote.Total.Amount, quote.Total.Currency))
	return t, nil
}

// preflight runs the provider's beneficiary check right after a synchronous
// provider's transfer is persisted. A passing check enriches the transfer
// with the provider's fields; a declined or technical outcome is recorded on
// the transfer so Status exposes it. No money has moved yet either way, and
// the transfer stays PREPARED.
func (s *SwitchService) preflight(ctx context.Context, t *transfer.Transfer, svc *catalog.Service, providerID int64) {
	req := buildProviderRequest(t, svc, provider.OperationCheck)
	result, err := s.gateway.Send(ctx, providerID, req)
	if err != nil {
		result = provider.TechnicalResult(err.Error())
	}

	if result.Status == shared.OutboxStatusSuccess {
		t.MergeProviderParams(result.Fields)
	} else {
		t.ErrorDescription = result.ErrorText
		s.logger.Warn("provider check failed after prepare",
			"transfer_id", t.ID.String(), "status", string(result.Status), "error", result.ErrorText)
	}

	if err := s.transfers.Update(ctx, t); err != nil {
		s.logger.Error("failed to record provider check outcome",
			"transfer_id", t.ID.String(), "error", err)
	}
}

// Confirm debits the agent and commits the transfer. The debit, the state
// transition and (for asynchronous providers) the outbox record share one
// database transaction; the provider call itself never runs inside it.
func (s *SwitchService) Confirm(ctx context.Context, cmd ConfirmCommand) (*transfer.Transfer, error) {
	_, term, err := s.resolveAgent(ctx, cmd.TerminalID)
	if err != nil {
		return nil, err
	}

	var (
		t          *transfer.Transfer
		replay     bool
		settleSync bool
		pending    *provider.Request
		providerID int64
	)

	err = s.pgDB.ExecuteTx(ctx, func(tx pgx.Tx) error {
		transfers := s.transfers.WithTx(tx)

		var txErr error
		t, txErr = transfers.GetByID(ctx, cmd.TransferID)
		if txErr != nil {
			return txErr
		}
		if t.AgentID != term.AgentID {
			return shared.NewError(shared.CodeForbidden, "transfer belongs to another agent")
		}

		if txErr = t.ValidateConfirmable(cmd.QuotationID, time.Now()); txErr != nil {
			if errors.Is(txErr, transfer.ErrAlreadyFinished) {
				// Idempotent replay: return the transfer as it stands.
				replay = true
				return nil
			}
			return mapConfirmError(txErr)
		}

		svc, txErr := s.services.GetByID(ctx, t.ServiceID)
		if txErr != nil {
			return txErr
		}
		p, txErr := s.providers.WithTx(tx).GetByID(ctx, svc.ProviderID)
		if txErr != nil {
			return txErr
		}

		agents := s.agents.WithTx(tx)
		a, txErr := agents.LockForUpdate(ctx, t.AgentID)
		if txErr != nil {
			return txErr
		}
		total := t.CurrentQuote.Total
		if txErr = a.Debit(total.Amount, total.Currency); txErr != nil {
			if errors.Is(txErr, agent.ErrInsufficientBalance) {
				return shared.NewError(shared.CodeInsufficientBalance, "agent balance too low for total amount")
			}
			return txErr
		}
		if txErr = agents.Update(ctx, a); txErr != nil {
			return txErr
		}

		if txErr = t.MarkConfirmed(); txErr != nil {
			return txErr
		}
		if txErr = transfers.Update(ctx, t); txErr != nil {
			return txErr
		}

		req := buildProviderRequest(t, svc, provider.OperationPayment)
		providerID = p.ID
		if p.Synchronous {
			settleSync = true
			pending = req
			return nil
		}

		record, txErr := outbox.NewRecord(p.ID, req)
		if txErr != nil {
			return txErr
		}
		return s.outbox.WithTx(tx).Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	if replay {
		return t, nil
	}

	s.logger.Info("transfer confirmed",
		"transfer_id", t.ID.String(), "num_id", t.NumID, "synchronous", settleSync)

	if settleSync {
		if err := s.settler.Settle(ctx, t, providerID, pending); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Status returns a transfer by id or by the caller's external id
func (s *SwitchService) Status(ctx context.Context, terminalID uuid.UUID, transferID *uuid.UUID, externalID string) (*transfer.Transfer, error) {
	_, term, err := s.resolveAgent(ctx, terminalID)
	if err != nil {
		return nil, err
	}

	var t *transfer.Transfer
	switch {
	case transferID != nil:
		t, err = s.transfers.GetByID(ctx, *transferID)
	case externalID != "":
		t, err = s.transfers.GetByExternalID(ctx, term.AgentID, externalID)
	default:
		return nil, shared.NewError(shared.CodeValidation, "transfer id or external id is required")
	}
	if err != nil {
		return nil, err
	}
	if t.AgentID != term.AgentID {
		return nil, shared.NewError(shared.CodeForbidden, "transfer belongs to another agent")
	}
	return t, nil
}

// Balance returns the terminal's agent balances per currency
func (s *SwitchService) Balance(ctx context.Context, terminalID uuid.UUID) (map[string]int64, error) {
	a, _, err := s.resolveAgent(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	return a.Balances, nil
}

// Rate returns the exchange rate in effect for the terminal's agent
func (s *SwitchService) Rate(ctx context.Context, terminalID uuid.UUID, base, quote string) (*fx.Rate, error) {
	a, _, err := s.resolveAgent(ctx, terminalID)
	if err != nil {
		return nil, err
	}
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	if len(base) != 3 || len(quote) != 3 {
		return nil, shared.NewError(shared.CodeValidation, "currency must be a 3-letter code")
	}
	return s.quoter.Rate(ctx, a.ID, base, quote)
}

// resolveAgent authenticates the terminal and loads its agent
func (s *SwitchService) resolveAgent(ctx context.Context, terminalID uuid.UUID) (*agent.Agent, *terminal.Terminal, error) {
	term, err := s.terminals.GetByID(ctx, terminalID)
	if err != nil {
		var notFound terminal.ErrTerminalNotFound
		if errors.As(err, &notFound) {
			return nil, nil, shared.NewError(shared.CodeForbidden, "unknown terminal")
		}
		return nil, nil, err
	}
	if !term.Enabled {
		return nil, nil, shared.NewError(shared.CodeForbidden, "terminal is disabled")
	}
	a, err := s.agents.GetByID(ctx, term.AgentID)
	if err != nil {
		return nil, nil, err
	}
	return a, term, nil
}

func (s *SwitchService) resolveService(ctx context.Context, serviceID int64) (*catalog.Service, error) {
	svc, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Enabled {
		return nil, shared.NewError(shared.CodeNotFound, "service is not available")
	}
	return svc, nil
}

// buildProviderRequest snapshots everything an adapter needs to execute one
// operation for the transfer
func buildProviderRequest(t *transfer.Transfer, svc *catalog.Service, operation string) *provider.Request {
	return &provider.Request{
		AgentID:            t.AgentID,
		Operation:          operation,
		TransferID:         t.ID,
		NumID:              t.NumID,
		ExternalID:         t.ExternalID,
		ServiceID:          svc.ID,
		ProviderServiceID:  svc.ProviderServiceID,
		ServiceName:        svc.Name,
		Account:            t.Account,
		CreditAmount:       t.CurrentQuote.CreditedAmount.Amount,
		ProviderFee:        t.CurrentQuote.ProviderFee,
		Currency:           t.CurrentQuote.CreditedAmount.Currency,
		Parameters:         t.Parameters,
		ProvReceivedParams: t.ProvReceivedParams,
		CreatedAt:          t.CreatedAt,
	}
}

func mapConfirmError(err error) error {
	switch {
	case errors.Is(err, transfer.ErrQuoteExpired):
		return shared.WrapError(shared.CodeConflict, "quote has expired", err)
	case errors.Is(err, transfer.ErrQuoteMismatch):
		return shared.WrapError(shared.CodeConflict, "quotation id does not match", err)
	case errors.Is(err, transfer.ErrQuoteMissing), errors.Is(err, transfer.ErrNotPrepared):
		return shared.WrapError(shared.CodeConflict, "transfer is not confirmable", err)
	default:
		return err
	}
}
