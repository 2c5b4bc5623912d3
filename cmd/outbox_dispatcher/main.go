package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/paynet-transfer-switch/internal/app"
	"github.com/paynet-transfer-switch/internal/config"
	"github.com/paynet-transfer-switch/internal/data/mongo"
	"github.com/paynet-transfer-switch/internal/data/postgres"
	"github.com/paynet-transfer-switch/internal/dispatcher"
	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/logger"
	"github.com/paynet-transfer-switch/internal/platform/messaging/producers"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
	"github.com/paynet-transfer-switch/internal/providers"
	"github.com/paynet-transfer-switch/internal/providers/cryptoxml"
	"github.com/paynet-transfer-switch/internal/providers/generic"
	"github.com/paynet-transfer-switch/internal/providers/httpx"
	"github.com/paynet-transfer-switch/internal/providers/jsonstate"
	"github.com/paynet-transfer-switch/internal/providers/oauthpair"
	"github.com/paynet-transfer-switch/internal/providers/sessionxml"
	"github.com/paynet-transfer-switch/internal/providers/signedxml"
	"github.com/paynet-transfer-switch/internal/providers/token"
	"github.com/paynet-transfer-switch/internal/template"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("outbox_dispatcher")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Outbox Dispatcher",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for settlement events
	settlementProducer, err := producers.NewSettlementEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize settlement event producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	agentRepo := postgres.NewAgentRepository(log, postgresDB)
	transferRepo := postgres.NewTransferRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	providerRepo := postgres.NewProviderRepository(log, postgresDB)
	journalRepo := mongo.NewJournalRepository(log, mongoDB.Database())

	// Initialize the provider gateway. The dispatcher shares the adapter set
	// with the API process so both sides speak the same protocols.
	engine := template.NewEngine(template.NewBaseRegistry())
	httpClient := httpx.NewClient(log, httpx.RetryPolicy{}, 0)
	tokenService := token.NewService(providerRepo, persistence.NewAdvisoryLocker(postgresDB), log)

	fallback := generic.NewSender(engine, httpClient, log)
	adapters := map[string]providers.Client{
		provider.KindSessionXML: sessionxml.NewClient(engine, httpClient, tokenService, log),
		provider.KindCryptoXML:  cryptoxml.NewClient(engine, httpClient, log),
		provider.KindOAuthPair:  oauthpair.NewClient(engine, httpClient, tokenService, log),
		provider.KindSignedXML:  signedxml.NewClient(engine, httpClient, signedxml.NewExecSigner(), log),
		provider.KindJSONState:  jsonstate.NewClient(engine, httpClient, log),
	}
	gateway := providers.NewRouter(providerRepo, adapters, fallback, journalRepo, log)

	// Initialize the settler and the dispatcher itself
	settler := app.NewSettler(postgresDB, agentRepo, transferRepo, gateway, settlementProducer, log)
	outboxDispatcher, err := dispatcher.NewDispatcher(
		&cfg.Outbox,
		&cfg.WorkerPool,
		outboxRepo,
		transferRepo,
		gateway,
		settler,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize dispatcher", "error", err)
		os.Exit(1)
	}

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start dispatcher in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		outboxDispatcher.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	<-quit
	log.Info("Shutdown signal received")

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for in-flight settlements to finish
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Dispatcher stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Release the worker pool
	outboxDispatcher.Shutdown()

	if err = settlementProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if err != nil {
		log.Error("Outbox Dispatcher shutdown completed with errors")
	} else {
		log.Info("Outbox Dispatcher shutdown completed successfully")
	}
}
