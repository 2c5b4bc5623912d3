// Package dispatcher drains the settlement outbox: pending records are
// fetched in FIFO batches, fanned out over a worker pool, executed against
// their providers and settled through the same path the synchronous flow
// uses.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/paynet-transfer-switch/internal/app"
	"github.com/paynet-transfer-switch/internal/config"
	"github.com/paynet-transfer-switch/internal/domain/outbox"
	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/domain/shared"
	"github.com/paynet-transfer-switch/internal/domain/transfer"
)

// Dispatcher polls the outbox and settles queued transfers
type Dispatcher struct {
	outboxRepo       outbox.Repository
	transfers        transfer.Repository
	gateway          app.ProviderGateway
	settler          *app.Settler
	pool             *ants.Pool
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

// NewDispatcher builds the dispatcher and its worker pool
func NewDispatcher(
	outboxCfg *config.OutboxConfig,
	poolCfg *config.WorkerPoolConfig,
	outboxRepo outbox.Repository,
	transfers transfer.Repository,
	gateway app.ProviderGateway,
	settler *app.Settler,
	logger *slog.Logger,
) (*Dispatcher, error) {
	pool, err := ants.NewPool(poolCfg.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &Dispatcher{
		outboxRepo:       outboxRepo,
		transfers:        transfers,
		gateway:          gateway,
		settler:          settler,
		pool:             pool,
		logger:           logger,
		pollInterval:     outboxCfg.PollingInterval,
		batchSize:        outboxCfg.BatchSize,
		maxRetryAttempts: outboxCfg.MaxRetryAttempts,
	}, nil
}

// Start polls until the context is canceled
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting outbox dispatcher",
		"poll_interval", d.pollInterval.String(),
		"batch_size", d.batchSize,
		"max_retry_attempts", d.maxRetryAttempts,
		"workers", d.pool.Cap(),
	)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopping")
			return
		case <-ticker.C:
			if err := d.processBatch(ctx); err != nil {
				d.logger.Error("Outbox batch processing failed", "error", err)
			}
		}
	}
}

// Shutdown releases the worker pool
func (d *Dispatcher) Shutdown() {
	d.logger.Info("Shutting down dispatcher worker pool", "running_workers", d.pool.Running())
	d.pool.Release()
}

// processBatch fans one batch of pending records out over the pool and waits
// for all of them, so a slow provider cannot let batches pile up on top of
// each other.
func (d *Dispatcher) processBatch(ctx context.Context) error {
	records, err := d.outboxRepo.GetPending(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	d.logger.Info("Fetched pending outbox records", "count", len(records))

	var wg sync.WaitGroup
	for _, record := range records {
		record := record
		wg.Add(1)
		if err := d.pool.Submit(func() {
			defer wg.Done()
			d.processRecord(ctx, record)
		}); err != nil {
			wg.Done()
			d.logger.Error("Failed to submit outbox record to worker pool",
				"transfer_id", record.TransferID.String(), "error", err)
		}
	}
	wg.Wait()
	return nil
}

// processRecord executes one settlement attempt for one queued transfer
func (d *Dispatcher) processRecord(ctx context.Context, record *outbox.Record) {
	logger := d.logger.With("transfer_id", record.TransferID.String())

	t, err := d.transfers.GetByID(ctx, record.TransferID)
	if err != nil {
		logger.Error("Failed to load transfer for outbox record", "error", err)
		return
	}
	if t.Status != shared.TransferStatusConfirmed {
		// Settled by someone else; the record is stale.
		logger.Warn("Dropping outbox record for already settled transfer", "status", string(t.Status))
		if err := d.outboxRepo.Delete(ctx, record.TransferID); err != nil {
			logger.Error("Failed to delete stale outbox record", "error", err)
		}
		return
	}

	req, err := record.ProviderRequest()
	if err != nil {
		logger.Error("Outbox record payload is unreadable, failing transfer", "error", err)
		d.finish(ctx, logger, record, t, provider.TechnicalResult("unreadable settlement payload: "+err.Error()))
		return
	}

	result, err := d.gateway.Send(ctx, record.ProviderID, req)
	if err != nil {
		result = provider.TechnicalResult(err.Error())
	}

	if !result.Status.IsTerminal() {
		d.retryLater(ctx, logger, record, t, result)
		return
	}

	if err := d.settler.Apply(ctx, t, record.ProviderID, result); err != nil {
		logger.Error("Failed to apply provider outcome", "error", err)
		return
	}
	if err := d.outboxRepo.Delete(ctx, record.TransferID); err != nil {
		logger.Error("Failed to delete settled outbox record", "error", err)
		return
	}
	logger.Info("Transfer settled", "status", string(t.Status), "attempts", record.Attempts+1)
}

// retryLater books one failed attempt; the retry budget exhausted, the
// transfer finishes as TECHNICAL and the agent is refunded.
func (d *Dispatcher) retryLater(ctx context.Context, logger *slog.Logger, record *outbox.Record, t *transfer.Transfer, result *provider.Result) {
	if err := d.outboxRepo.IncrementAttempts(ctx, record.TransferID); err != nil {
		logger.Error("Failed to increment outbox record attempts", "error", err)
		return
	}

	if record.Attempts+1 < d.maxRetryAttempts {
		logger.Warn("Provider attempt failed, will retry",
			"attempts", record.Attempts+1, "error_text", result.ErrorText)
		return
	}

	logger.Warn("Max settlement attempts reached, failing transfer",
		"attempts", record.Attempts+1, "error_text", result.ErrorText)
	d.finish(ctx, logger, record, t, provider.TechnicalResult(result.ErrorText))
}

// finish settles the transfer with a technical outcome and parks the record
// as FAILED for audit.
func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, record *outbox.Record, t *transfer.Transfer, result *provider.Result) {
	if err := d.settler.Apply(ctx, t, record.ProviderID, result); err != nil {
		logger.Error("Failed to fail transfer after exhausted retries", "error", err)
		return
	}
	if err := d.outboxRepo.MarkFailed(ctx, record.TransferID); err != nil {
		logger.Error("Failed to mark outbox record failed", "error", err)
	}
}
