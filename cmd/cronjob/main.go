package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/jobs"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/metrics"
	"susu-ledger-backend/internal/repository/sqlstore"
	"susu-ledger-backend/internal/scheduler"
	"susu-ledger-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'activate-groups', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Susu Cronjob Runner...", "log_level", cfg.Log.Level)

	ctx := context.Background()

	// Initialize Store
	store, err := sqlstore.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	logger.Info("Database connection established", "dialect", store.Dialect())

	// Initialize Services
	m := metrics.New()
	services := service.New(service.Deps{
		Store:   store,
		Locks:   lock.NewManager(cfg.Engine.LockTimeout, m.ObserveLockWait),
		Metrics: m,
		Engine:  cfg.Engine,
	})

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, services, m, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if err := runJobOnce(ctx, jobRunner, *runOnce); err != nil {
			logger.Error("Job execution failed", "job", *runOnce, "error", err)
			store.Close()
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once
func runJobOnce(ctx context.Context, jobRunner *jobs.JobRunner, jobName string) error {
	switch jobName {
	case jobs.JobActivateGroups, jobs.JobMarkOverdue, jobs.JobExpireSettlements, "all":
		return jobRunner.Run(ctx, jobName)
	}
	logger.Error("Unknown job name", "job", jobName)
	fmt.Printf("Available jobs:\n")
	fmt.Printf("  - %s\n", jobs.JobActivateGroups)
	fmt.Printf("  - %s\n", jobs.JobMarkOverdue)
	fmt.Printf("  - %s\n", jobs.JobExpireSettlements)
	fmt.Printf("  - all\n")
	return fmt.Errorf("unknown job %q", jobName)
}
