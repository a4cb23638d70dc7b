package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/lending-ledger/internal/cache"
	"github.com/segyhp/lending-ledger/internal/config"
	"github.com/segyhp/lending-ledger/internal/handler"
	"github.com/segyhp/lending-ledger/internal/ledger"
	"github.com/segyhp/lending-ledger/internal/repository"
	"github.com/segyhp/lending-ledger/internal/service"
	"github.com/segyhp/lending-ledger/pkg/logger"
	"github.com/segyhp/lending-ledger/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.LogFormat())

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	// Initialize Redis; without it the service runs uncached and relies on row locks
	var (
		redisClient *redis.Client
		redisCmd    redis.Cmdable
		loanCache   service.LoanCache
		locker      service.LoanLocker = cache.NopLocker{}
	)
	if cfg.RedisEnabled() {
		redisClient = initRedis(cfg)
		defer redisClient.Close()

		redisCmd = redisClient
		loanCache = cache.NewLoanCache(redisClient, cfg.Redis.CacheTTL)
		locker = cache.NewRedisLocker(redisClient, cfg.Redis.LockTTL)
	} else {
		log.Warn("REDIS_HOST not set, running without cache and distributed lock")
	}

	// Initialize repositories
	loanRepo := repository.NewLoanRepository(db)
	repaymentRepo := repository.NewRepaymentRepository(db)
	transactor := repository.NewTransactor(db)

	// Initialize service
	billingService := service.NewBillingService(
		loanRepo,
		repaymentRepo,
		transactor,
		loanCache,
		locker,
		ledger.OverpaymentPolicy(cfg.Business.OverpaymentPolicy),
		log,
	)
	billingHandler := handler.NewBillingHandler(billingService, log)
	healthHandler := handler.NewHealthHandler(db, redisCmd, cfg.Health.Timeout)

	// Setup routes
	router := setupRoutes(billingHandler, healthHandler, log)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"addr":   server.Addr,
			"driver": cfg.Database.Driver,
			"policy": cfg.Business.OverpaymentPolicy,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return
	}

	log.Info("Server exited")
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN(), repository.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(context.Background(), db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func setupRoutes(billingHandler *handler.BillingHandler, healthHandler *handler.HealthHandler, log logrus.FieldLogger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(log), response.CORSMiddleware)

	// Health check
	healthHandler.RegisterRoutes(router)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(response.JSONMiddleware)
	billingHandler.RegisterRoutes(api)

	return router
}
