// Kestrel - Claim fraud scoring and approval workflow engine.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/claims"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/notify"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	// Workflow mode override
	switch os.Getenv("KESTREL_MODE") {
	case "automated":
		cfg.WorkflowMode = domain.ModeAutomated
	case "multiparty":
		cfg.WorkflowMode = domain.ModeMultiparty
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"workflow_mode", cfg.WorkflowMode,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Escalation Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load escalation rules from database (no hardcoded defaults -
	// configure via API)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Claim Service
	svc := claims.NewService(repo, cfg.Scoring, cfg.WorkflowMode, claims.Options{
		Cache:    cacheImpl,
		Bus:      busImpl,
		Notifier: notify.NewService(busImpl),
		Rules:    engine,
	})
	slog.Info("claim service initialized")

	// Start scoring workers for the configured tenants
	var scoringWorker *worker.Worker
	tenantIDs := splitTenants(os.Getenv("KESTREL_TENANTS"))
	if len(tenantIDs) > 0 {
		scoringWorker = worker.NewWorker(busImpl, svc)
		if err := scoringWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start scoring worker", "error", err)
		} else {
			slog.Info("scoring worker started", "tenant_count", len(tenantIDs))
		}
	} else {
		slog.Info("no tenants configured for async scoring - use POST /claims/{id}/score")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, svc, repo, cacheImpl, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop scoring worker first
	if scoringWorker != nil {
		if err := scoringWorker.Stop(); err != nil {
			slog.Error("failed to stop scoring worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadRulesFromDatabase loads escalation rules from the database into the
// engine. All rules must be configured via POST /rules API - no hardcoded
// defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListEscalationRules(ctx, api.GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - configure via POST /rules API")
	return nil
}

func splitTenants(raw string) []string {
	var tenants []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║      Claim Fraud Scoring Engine           ║")
	fmt.Println("  ║      Eyes on every claim.                 ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Mode:     %s\n", cfg.WorkflowMode)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /claims                    - Submit a claim")
	fmt.Println("    POST /claims/{id}/score         - Score a submitted claim")
	fmt.Println("    GET  /claims                    - List claims")
	fmt.Println("    GET  /claims/{id}               - Get claim by ID")
	fmt.Println("    GET  /claims/{id}/explanation   - Get scoring explanation")
	fmt.Println("    GET  /claims/{id}/assessments   - Get scoring audit trail")
	fmt.Println("    POST /claims/{id}/forward       - Agent: forward to admin")
	fmt.Println("    POST /claims/{id}/reject        - Agent: reject outright")
	fmt.Println("    POST /claims/{id}/approve       - Admin: approve claim")
	fmt.Println("    POST /claims/{id}/deny          - Admin: reject claim")
	fmt.Println("    PUT  /claims/{id}/request-info  - Request more information")
	fmt.Println("    PUT  /claims/{id}/review        - Resume review")
	fmt.Println("    GET  /profiles/{claimantID}     - Claimant reputation")
	fmt.Println("    GET  /leaderboard               - Top claimants by honesty score")
	fmt.Println("    GET  /rules                     - List escalation rules")
	fmt.Println("    POST /rules                     - Create an escalation rule")
	fmt.Println("    POST /rules/reload              - Hot-reload rules")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}
