package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paynet-transfer-switch/internal/api"
	"github.com/paynet-transfer-switch/internal/app"
	"github.com/paynet-transfer-switch/internal/config"
	"github.com/paynet-transfer-switch/internal/data/mongo"
	"github.com/paynet-transfer-switch/internal/data/postgres"
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
	cfg, err := config.LoadConfig("switch_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

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
	terminalRepo := postgres.NewTerminalRepository(log, postgresDB)
	catalogRepo := postgres.NewCatalogRepository(log, postgresDB)
	transferRepo := postgres.NewTransferRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	providerRepo := postgres.NewProviderRepository(log, postgresDB)
	fxRepo := postgres.NewFxRepository(log, postgresDB)
	journalRepo := mongo.NewJournalRepository(log, mongoDB.Database())

	// Initialize the provider gateway: one template engine and HTTP client
	// shared by every adapter, plus the session/token refresh service.
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

	// Initialize services
	quoter := app.NewQuoter(fxRepo, cfg.Quote.TTL)
	settler := app.NewSettler(postgresDB, agentRepo, transferRepo, gateway, settlementProducer, log)
	switchService := app.NewSwitchService(
		postgresDB, agentRepo, terminalRepo, catalogRepo, transferRepo,
		outboxRepo, providerRepo, gateway, quoter, settler, log,
	)
	absService := app.NewABSService(postgresDB, agentRepo, fxRepo, log)

	// Initialize REST server
	server := api.NewServer(log, cfg, terminalRepo, switchService, absService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so in-flight confirms finish against live pools
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = settlementProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
