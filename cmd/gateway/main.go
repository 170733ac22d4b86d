package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unified_gateway/internal/config"
	"unified_gateway/internal/httpapi"
	"unified_gateway/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Failed to load config: %v", err)
	}

	// Build the provider registry and everything that hangs off it
	deps, err := httpapi.NewDependencies(context.Background(), cfg)
	if err != nil {
		logging.Fatalf("Failed to initialize gateway: %v", err)
	}

	// Create HTTP server. The write timeout must outlast the upstream call.
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(deps, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Provider.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logging.Infof("Unified gateway listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infof("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}

	// Flush the request log and ship remaining dispatch records
	if err := deps.Close(ctx); err != nil {
		logging.Errorf("Failed to shutdown cleanly: %v", err)
	}

	logging.Infof("Server exited")
}
