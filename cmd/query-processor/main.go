package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seanankenbruck/transactions-ai/internal/app"
	"github.com/seanankenbruck/transactions-ai/internal/auth"
	"github.com/seanankenbruck/transactions-ai/internal/config"
)

const (
	serviceName = "query-processor"
	version     = "1.0.0"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	a, err := app.Build(ctx, cfg, serviceName, version)
	if err != nil {
		log.Fatalf("Failed to initialize query processor: %v", err)
	}
	defer a.Close()

	authHandlers := auth.NewAuthHandlers(a.Auth)
	router := a.Processor.SetupRoutes(a.Auth, authHandlers.SetupRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.Logger.Info(ctx, "Query processor starting", map[string]interface{}{
			"port":     cfg.Server.Port,
			"version":  version,
			"datasets": len(a.Connections),
			"llm":      a.LLMEnabled,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error(ctx, "Failed to start server", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error(ctx, "Server shutdown failed", err, nil)
	}
	a.Logger.Info(ctx, "Query processor stopped", nil)
}
