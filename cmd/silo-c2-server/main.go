package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/EternisAI/silo-c2/internal/agents"
	internalhttp "github.com/EternisAI/silo-c2/internal/api/http"
	"github.com/EternisAI/silo-c2/internal/results"
	"github.com/EternisAI/silo-c2/internal/store"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Silo C2 Server", "version", AppVersion, "storage", config.Storage.Driver)

	ctx := context.Background()

	backend, err := store.Open(ctx, config.Storage, config.DB, config.Redis)
	if err != nil {
		slog.Error("Failed to open storage", "error", err, "driver", config.Storage.Driver)
		os.Exit(1)
	}
	defer backend.Close()

	services := &internalhttp.Services{MaxResultBodySize: config.Http.MaxResultBodySize}
	if backend != nil {
		services.Agents = agents.NewService(backend.Agents)
		services.Results = results.NewService(backend.Artifacts)
	} else {
		slog.Warn("Storage is not configured; /checkin and /results will answer 500")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	if err := engine.SetTrustedProxies(config.Http.TrustedProxies); err != nil {
		slog.Error("Invalid trusted proxies", "error", err)
		os.Exit(1)
	}
	if len(config.Http.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:  config.Http.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST"},
			AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Http.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
