package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/lending-ledger/internal/config"
	"github.com/segyhp/lending-ledger/internal/repository"
	"github.com/segyhp/lending-ledger/internal/service"
	"github.com/segyhp/lending-ledger/pkg/logger"
)

// reconcileTimeout bounds a single reconciliation pass.
const reconcileTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.LogFormat())
	log.Info("Starting ledger scheduler...")

	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN(), repository.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	reconciler := service.NewReconciler(
		repository.NewLoanRepository(db),
		repository.NewRepaymentRepository(db),
		log,
	)

	// Initialize cron scheduler
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.SchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if err := setupCronJobs(c, cfg, reconciler, log); err != nil {
		log.WithError(err).Fatal("Error scheduling reconciliation job")
	}

	// Start the scheduler
	c.Start()
	log.Info("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	log.Info("Scheduler stopped")
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, reconciler *service.Reconciler, log *logrus.Logger) error {
	_, err := c.AddFunc(cfg.Scheduler.ReconcileCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		log.Info("Running ledger reconciliation job...")
		report, err := reconciler.Run(ctx)
		if err != nil {
			log.WithError(err).Error("Reconciliation failed")
			return
		}
		if !report.Clean() {
			log.WithField("discrepancies", len(report.Discrepancies)).Warn("Reconciliation found discrepancies")
		}
	})
	if err != nil {
		return err
	}

	log.WithField("spec", cfg.Scheduler.ReconcileCron).Info("Cron jobs scheduled successfully")
	return nil
}
