package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paynet-transfer-switch/internal/api/handler"
	"github.com/paynet-transfer-switch/internal/api/middleware"
	"github.com/paynet-transfer-switch/internal/domain/terminal"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	terminals terminal.Repository,
	absSharedKey string,
	transferHandler *handler.TransferHandler,
	absHandler *handler.ABSHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// Terminal channel: signed requests only
	v1 := r.Group("/api/v1", middleware.TerminalAuth(terminals, logger))
	{
		transfers := v1.Group("/transfers")
		{
			transfers.POST("/check", transferHandler.Check)
			transfers.POST("", transferHandler.Prepare)
			transfers.POST("/:id/confirm", transferHandler.Confirm)
			transfers.GET("/:id", transferHandler.Status)
			transfers.GET("", transferHandler.Status) // lookup by ?external_id=
		}
		v1.GET("/balance", transferHandler.Balance)
		v1.GET("/rates/:base/:quote", transferHandler.Rate)
	}

	// Back-office channel: shared-key authenticated
	abs := r.Group("/abs/v1", middleware.ABSAuth(absSharedKey, logger))
	{
		abs.POST("/agents/credit", absHandler.Credit)
		abs.POST("/agents/debit", absHandler.Debit)
		abs.PUT("/rates", absHandler.UpsertRate)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
