// Command main is the entry point for the comment thread API server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatapp/internal/bootstrap"
	"chatapp/internal/config"
	"chatapp/internal/middleware"
	"chatapp/internal/server"
)

const version = "1.0.0"

// @title Comment Thread API
// @version 1.0
// @description Threaded comments stored as nested sets, with likes and realtime notifications

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stopTracing, err := bootstrap.InitObservability(cfg, version)
	if err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}

	// Create server with dependency injection
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("Server shutdown error", "error", err)
		}
	}()

	err = srv.Start()
	stopTracing()
	if err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
