// Command shield runs the Shield edge gateway: an authenticated,
// policy-enforcing WebSocket-to-bus bridge. Wiring follows
// apps/helm-node/main.go's shape: env-driven subsystem construction,
// os.Exit on preflight failure, a goroutine-driven HTTP server, and
// signal-based graceful shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/novelbytelabs/ArqonBus/internal/app"
	"github.com/novelbytelabs/ArqonBus/internal/auth"
	"github.com/novelbytelabs/ArqonBus/internal/bus"
	"github.com/novelbytelabs/ArqonBus/internal/config"
	"github.com/novelbytelabs/ArqonBus/internal/policy"
	"github.com/novelbytelabs/ArqonBus/internal/schema"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.Default()
	ctx := context.Background()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("shield: preflight failed", "component", "app", "error", err)
		return 1
	}

	validator := schema.New(cfg.DescriptorPath, cfg.MessageName, cfg.StrictSchema)
	if err := validator.EnsureReady(); err != nil {
		logger.Error("shield: preflight failed", "component", "app", "error", err)
		return 1
	}

	engine, err := policy.NewEngine(ctx, cfg.HostConfig(), logger)
	if err != nil {
		log.Fatalf("shield: failed to init policy engine: %v", err)
	}
	defer func() { _ = engine.Close(ctx) }()

	if cfg.PolicyModulePath != "" {
		if err := engine.LoadModule(ctx, cfg.PolicyModulePath); err != nil {
			log.Fatalf("shield: failed to load policy module %q: %v", cfg.PolicyModulePath, err)
		}
		logger.Info("shield: policy module loaded", "component", "app", "path", cfg.PolicyModulePath)
	}

	bridge := bus.NewRedisBridge(cfg.BusAddr)

	state := &app.State{
		Bridge:              bridge,
		Policy:              engine,
		Mirror:              cfg.Mirror,
		Validator:           validator,
		Auth:                auth.Config{Secret: cfg.AuthSecret, SkipValidation: cfg.SkipAuth},
		Logger:              logger,
		RequestBodyCapBytes: cfg.RequestBodyCapBytes,
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: app.NewRouter(state),
	}

	go func() {
		logger.Info("shield: listening", "component", "app", "addr", cfg.ListenAddr, "fuel_budget", cfg.FuelBudget())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("shield: server error", "component", "app", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shield: shutting down", "component", "app")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shield: graceful shutdown failed", "component", "app", "error", err)
		return 1
	}
	return 0
}
