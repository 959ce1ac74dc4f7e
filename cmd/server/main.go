package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "susu-ledger-backend/internal/api/http"
	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/jobs"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/metrics"
	"susu-ledger-backend/internal/repository/sqlstore"
	"susu-ledger-backend/internal/scheduler"
	"susu-ledger-backend/internal/security"
	"susu-ledger-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	noScheduler := flag.Bool("no-scheduler", false, "Do not run cron jobs in this process (use cmd/cronjob instead)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Susu Ledger Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "database", cfg.Database.Database)
	logger.Info("Engine configuration", "unpaid_policy", cfg.Engine.UnpaidPolicy, "lock_timeout", cfg.Engine.LockTimeout,
		"min_members_to_activate", cfg.Engine.MinMembersToActivate)

	ctx := context.Background()

	// Initialize Store
	store, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	logger.Info("Database connection established", "dialect", store.Dialect())

	// Initialize Engine
	m := metrics.New()
	locks := lock.NewManager(cfg.Engine.LockTimeout, m.ObserveLockWait)
	services := service.New(service.Deps{
		Store:   store,
		Locks:   locks,
		Metrics: m,
		Engine:  cfg.Engine,
	})

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// Initialize Scheduler
	var cronScheduler *scheduler.Scheduler
	if !*noScheduler {
		jobRunner := jobs.NewJobRunner(store, services, m, cfg)
		cronScheduler = scheduler.NewScheduler(jobRunner)
		cronScheduler.Start()
	}

	// Set up HTTP server
	srv := &http.Server{
		Addr: cfg.GetServerAddress(),
		Handler: httpapi.NewRouter(httpapi.RouterDependencies{
			Services: services,
			Tokens:   tokenManager,
			Health:   store,
			Metrics:  m,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down...", "signal", sig.String())

	// Graceful shutdown: scheduler first, then drain HTTP, then the store
	if cronScheduler != nil {
		cronScheduler.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("Failed to close store", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
