package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet-transfer-switch/internal/app"
	"github.com/paynet-transfer-switch/internal/config"
	"github.com/paynet-transfer-switch/internal/domain/agent"
	"github.com/paynet-transfer-switch/internal/domain/money"
	"github.com/paynet-transfer-switch/internal/domain/outbox"
	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/domain/transfer"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeOutboxRepo struct {
	mu         sync.Mutex
	pending    []*outbox.Record
	pendingErr error
	increments int
	failed     []uuid.UUID
	deleted    []uuid.UUID
}

func (f *fakeOutboxRepo) Create(ctx context.Context, record *outbox.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, record)
	return nil
}

func (f *fakeOutboxRepo) GetPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxRepo) GetByTransferID(ctx context.Context, transferID uuid.UUID) (*outbox.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.pending {
		if r.TransferID == transferID {
			return r, nil
		}
	}
	return nil, outbox.ErrRecordNotFound{TransferID: transferID}
}

func (f *fakeOutboxRepo) IncrementAttempts(ctx context.Context, transferID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments++
	for _, r := range f.pending {
		if r.TransferID == transferID {
			r.IncrementAttempts()
		}
	}
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, transferID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, transferID)
	return nil
}

func (f *fakeOutboxRepo) Delete(ctx context.Context, transferID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, transferID)
	for i, r := range f.pending {
		if r.TransferID == transferID {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeOutboxRepo) WithTx(tx pgx.Tx) outbox.Repository { return f }

type fakeTransferRepo struct {
	mu        sync.Mutex
	transfers map[uuid.UUID]*transfer.Transfer
	updates   int
}

func (f *fakeTransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[t.ID] = t
	return nil
}

func (f *fakeTransferRepo) GetByID(ctx context.Context, id uuid.UUID) (*transfer.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return nil, transfer.ErrTransferNotFound{Ref: id.String()}
	}
	return t, nil
}

func (f *fakeTransferRepo) GetByExternalID(ctx context.Context, agentID uuid.UUID, externalID string) (*transfer.Transfer, error) {
	return nil, transfer.ErrTransferNotFound{Ref: externalID}
}

func (f *fakeTransferRepo) Update(ctx context.Context, t *transfer.Transfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.transfers[t.ID] = t
	return nil
}

func (f *fakeTransferRepo) WithTx(tx pgx.Tx) transfer.Repository { return f }

type fakeAgentRepo struct{}

func (f *fakeAgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	return nil, agent.ErrAgentNotFound{AgentID: id}
}
func (f *fakeAgentRepo) Update(ctx context.Context, a *agent.Agent) error { return nil }
func (f *fakeAgentRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	return nil, agent.ErrAgentNotFound{AgentID: id}
}
func (f *fakeAgentRepo) WithTx(tx pgx.Tx) agent.Repository { return f }

type fakeGateway struct {
	mu     sync.Mutex
	result *provider.Result
	err    error
	calls  int
}

func (g *fakeGateway) ExistsEnabled(ctx context.Context, providerID int64) (bool, error) {
	return true, nil
}

func (g *fakeGateway) Send(ctx context.Context, providerID int64, req *provider.Request) (*provider.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.result, g.err
}

type fixture struct {
	dispatcher *Dispatcher
	outboxRepo *fakeOutboxRepo
	transfers  *fakeTransferRepo
	gateway    *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	outboxRepo := &fakeOutboxRepo{}
	transfers := &fakeTransferRepo{transfers: make(map[uuid.UUID]*transfer.Transfer)}
	gateway := &fakeGateway{result: &provider.Result{Status: shared.OutboxStatusSuccess}}
	settler := app.NewSettler(nil, &fakeAgentRepo{}, transfers, gateway, nil, newTestLogger())

	d, err := NewDispatcher(
		&config.OutboxConfig{PollingInterval: 5 * time.Millisecond, BatchSize: 10, MaxRetryAttempts: 3},
		&config.WorkerPoolConfig{Size: 4},
		outboxRepo, transfers, gateway, settler, newTestLogger(),
	)
	require.NoError(t, err)
	t.Cleanup(d.Shutdown)

	return &fixture{dispatcher: d, outboxRepo: outboxRepo, transfers: transfers, gateway: gateway}
}

// queueTransfer stores a CONFIRMED transfer and its pending outbox record
func (f *fixture) queueTransfer(t *testing.T) *transfer.Transfer {
	t.Helper()
	requested := money.Money{Amount: 10_000, Currency: "RUB"}
	quote, err := transfer.NewQuote(requested, 150, 0, requested, decimal.NewFromInt(1), time.Now(), time.Minute)
	require.NoError(t, err)
	tr, err := transfer.NewTransfer(uuid.New(), uuid.New(), uuid.NewString(), 42, "cash", "79261234567", requested, quote, nil)
	require.NoError(t, err)
	require.NoError(t, tr.MarkConfirmed())
	require.NoError(t, f.transfers.Create(context.Background(), tr))

	req := &provider.Request{
		AgentID:      tr.AgentID,
		Operation:    provider.OperationPayment,
		TransferID:   tr.ID,
		ServiceID:    tr.ServiceID,
		Account:      tr.Account,
		CreditAmount: quote.CreditedAmount.Amount,
		Currency:     quote.CreditedAmount.Currency,
		CreatedAt:    tr.CreatedAt,
	}
	record, err := outbox.NewRecord(7, req)
	require.NoError(t, err)
	require.NoError(t, f.outboxRepo.Create(context.Background(), record))
	return tr
}

func TestDispatcher_ProcessBatch_SettlesSuccess(t *testing.T) {
	f := newFixture(t)
	tr := f.queueTransfer(t)
	f.gateway.result = &provider.Result{
		Status: shared.OutboxStatusSuccess,
		Fields: map[string]string{"ProviderTransferId": "p-5"},
	}

	require.NoError(t, f.dispatcher.processBatch(context.Background()))

	got, err := f.transfers.GetByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.TransferStatusSuccess, got.Status)
	assert.Equal(t, "p-5", got.ProviderTransferID)
	assert.Equal(t, []uuid.UUID{tr.ID}, f.outboxRepo.deleted)
	assert.Empty(t, f.outboxRepo.pending)
}

func TestDispatcher_ProcessBatch_DropsStaleRecord(t *testing.T) {
	f := newFixture(t)
	tr := f.queueTransfer(t)
	// settled by the synchronous path in the meantime
	require.NoError(t, tr.MarkCompleted())

	require.NoError(t, f.dispatcher.processBatch(context.Background()))

	assert.Zero(t, f.gateway.calls, "no provider call for a settled transfer")
	assert.Equal(t, []uuid.UUID{tr.ID}, f.outboxRepo.deleted)
}

func TestDispatcher_ProcessBatch_BooksRetryOnNonTerminalOutcome(t *testing.T) {
	f := newFixture(t)
	tr := f.queueTransfer(t)
	f.gateway.result = provider.TechnicalResult("upstream timeout")

	require.NoError(t, f.dispatcher.processBatch(context.Background()))

	assert.Equal(t, 1, f.outboxRepo.increments)
	assert.Empty(t, f.outboxRepo.deleted)
	assert.Empty(t, f.outboxRepo.failed)

	got, err := f.transfers.GetByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.TransferStatusConfirmed, got.Status, "transfer stays queued until the budget runs out")
}

func TestDispatcher_ProcessBatch_TransportErrorBooksRetry(t *testing.T) {
	f := newFixture(t)
	f.queueTransfer(t)
	f.gateway.result = nil
	f.gateway.err = errors.New("connection refused")

	require.NoError(t, f.dispatcher.processBatch(context.Background()))

	assert.Equal(t, 1, f.outboxRepo.increments)
	assert.Empty(t, f.outboxRepo.deleted)
}

func TestDispatcher_ProcessBatch_RetriesUntilBudget(t *testing.T) {
	f := newFixture(t)
	tr := f.queueTransfer(t)
	f.gateway.result = provider.TechnicalResult("upstream down")

	// two passes burn two of the three attempts; the record survives both
	require.NoError(t, f.dispatcher.processBatch(context.Background()))
	require.NoError(t, f.dispatcher.processBatch(context.Background()))

	assert.Equal(t, 2, f.outboxRepo.increments)
	record, err := f.outboxRepo.GetByTransferID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, record.Attempts)
	assert.Empty(t, f.outboxRepo.failed)
}

func TestDispatcher_ProcessBatch_EmptyBatch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dispatcher.processBatch(context.Background()))
	assert.Zero(t, f.gateway.calls)
}

func TestDispatcher_ProcessBatch_GetPendingError(t *testing.T) {
	f := newFixture(t)
	f.outboxRepo.pendingErr = errors.New("db down")

	err := f.dispatcher.processBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending outbox records")
}

func TestDispatcher_StartStopsOnContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.dispatcher.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}
