package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/alerts"
	"github.com/platformbuilds/mirador-remedy/internal/anomaly"
	"github.com/platformbuilds/mirador-remedy/internal/api"
	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/remediation"
	"github.com/platformbuilds/mirador-remedy/internal/services"
	"github.com/platformbuilds/mirador-remedy/internal/tracing"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

const version = "v1.2.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting MIRADOR-REMEDY", "version", version, "environment", cfg.Environment)

	// Initialize Valkey store; fall back to the in-memory store so the
	// control loop keeps running without persistence.
	store, err := cache.NewValkeySingle(cfg.Cache.Addr, cfg.Cache.DB, cfg.Cache.Password, time.Duration(cfg.Cache.TTL)*time.Second)
	if err != nil {
		logger.Error("Valkey unavailable, using in-memory store", "addr", cfg.Cache.Addr, "error", err)
		store = cache.NewNoopValkeyStore(logger)
	} else {
		logger.Info("Valkey store initialized", "addr", cfg.Cache.Addr)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize distributed tracing
	if cfg.Monitoring.TracingEnabled && cfg.Monitoring.OTLPEndpoint != "" {
		tp, err := tracing.NewTracerProvider("mirador-remedy", version, cfg.Monitoring.OTLPEndpoint)
		if err != nil {
			logger.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Error("Tracer shutdown failed", "error", err)
				}
			}()
			logger.Info("Tracing initialized", "endpoint", cfg.Monitoring.OTLPEndpoint)
		}
	}

	// Outbound collaborators
	notifier := services.NewNotificationService(cfg.Integrations, logger.With("component", "notifications"))
	cluster := services.NewClusterService(cfg.Remediation.Orchestrator, logger.With("component", "cluster"))

	// Core subsystems, each tagged with its component field
	engine := anomaly.NewEngine(cfg.Anomaly, store, logger.With("component", "anomaly-engine"))
	manager := alerts.NewManager(cfg.Alerting, store, notifier, logger.With("component", "alert-manager"))
	orchestrator := remediation.NewOrchestrator(&cfg.Remediation, store, cluster, notifier, logger.With("component", "remediation"))

	// Alert transitions feed the remediation loop
	manager.OnStateChange(func(change *models.AlertStateChange) {
		orchestrator.HandleAlertStateChange(ctx, *change)
	})

	// Restore persisted state before accepting traffic
	engine.Hydrate(ctx)
	manager.Hydrate(ctx)
	orchestrator.Hydrate(ctx)

	// Bootstrap rules from file and hot-reload on change
	if cfg.Alerting.RulesPath != "" {
		applyRules := func(rules *config.RulesFile) {
			for _, rule := range rules.AlertRules {
				if err := manager.AddRule(rule); err != nil {
					logger.Warn("Skipping invalid alert rule from rules file", "rule", rule.Name, "error", err)
				}
			}
			manager.SetMaintenanceWindows(rules.MaintenanceWindows)
			orchestrator.ApplyRules(rules.RemediationActions, rules.AutoscalingConfigs)
		}

		if rules, err := config.LoadRulesFile(cfg.Alerting.RulesPath); err != nil {
			logger.Error("Failed to load rules file", "path", cfg.Alerting.RulesPath, "error", err)
		} else {
			applyRules(rules)
			logger.Info("Rules file loaded",
				"alertRules", len(rules.AlertRules),
				"remediationActions", len(rules.RemediationActions))
		}

		watcher := config.NewRulesWatcher(cfg.Alerting.RulesPath, logger)
		watcher.RegisterWatcher(applyRules)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Error("Rules watcher failed", "error", err)
			}
		}()
	}

	// Alert snapshot loop
	go manager.Run(ctx)

	// Model flush loop. The lock keeps concurrent replicas from flushing the
	// same models at the same time.
	go func() {
		interval := cfg.Anomaly.FlushInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				acquired, err := store.AcquireLock(ctx, "anomaly:flush", interval)
				if err != nil || !acquired {
					continue
				}
				engine.Flush(ctx)
				if err := store.ReleaseLock(ctx, "anomaly:flush"); err != nil {
					logger.Warn("Failed to release flush lock", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Initialize API server
	apiServer := api.NewServer(cfg, logger, store, engine, manager, orchestrator)
	if stream := apiServer.Stream(); stream != nil {
		manager.OnStateChange(stream.Broadcast)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Start server
	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed to start", "error", err)
	}

	// Final state flush before exit
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	engine.Flush(flushCtx)
	manager.Snapshot(flushCtx)

	logger.Info("MIRADOR-REMEDY shutdown complete")
}
