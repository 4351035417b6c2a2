package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/grainhub/warehouse-backend/api/routes"
	"github.com/grainhub/warehouse-backend/internal/approvals"
	"github.com/grainhub/warehouse-backend/internal/identity"
	"github.com/grainhub/warehouse-backend/internal/ledger"
	"github.com/grainhub/warehouse-backend/internal/transactions"
	"github.com/grainhub/warehouse-backend/internal/visibility"
	"github.com/grainhub/warehouse-backend/internal/workflow"
	"github.com/grainhub/warehouse-backend/pkg/auth/session"
	"github.com/grainhub/warehouse-backend/pkg/config"
	"github.com/grainhub/warehouse-backend/pkg/db"
	"github.com/grainhub/warehouse-backend/pkg/logger"
	"github.com/grainhub/warehouse-backend/pkg/metrics"
	"github.com/grainhub/warehouse-backend/pkg/migrate"
	"github.com/grainhub/warehouse-backend/pkg/outbox"
	"github.com/grainhub/warehouse-backend/pkg/redis"
)

const serviceName = "api"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var (
		redisClient *redis.Client
		sessions    session.AccessSessionChecker
	)
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		if cfg.JWT.RequireSession {
			checker, err := session.NewChecker(redisClient)
			if err != nil {
				logg.Error(context.Background(), "failed to create session checker", err)
				os.Exit(1)
			}
			sessions = checker
		}
	} else {
		if cfg.JWT.RequireSession {
			logg.Error(context.Background(), "session checks need redis", errors.New("GRAINHUB_JWT_REQUIRE_SESSION set without redis"))
			os.Exit(1)
		}
		logg.Warn(context.Background(), "redis not configured; idempotency and rate limiting disabled")
	}

	conn := dbClient.DB()
	identitySvc, err := identity.NewService(identity.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create identity service", err)
		os.Exit(1)
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	locker := ledger.NewKeyedLocker()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	txRepo := transactions.NewRepository(conn)
	approvalRepo := approvals.NewRepository(conn)
	wfMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)

	engine, err := workflow.NewEngine(workflow.EngineParams{
		DB:           dbClient,
		Identity:     identitySvc,
		Transactions: txRepo,
		Approvals:    approvalRepo,
		Ledger:       ledgerSvc,
		Locker:       locker,
		Outbox:       emitter,
		Metrics:      wfMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create approval engine", err)
		os.Exit(1)
	}

	transactionsSvc, err := transactions.NewService(transactions.ServiceParams{
		DB:        dbClient,
		Repo:      txRepo,
		Approvals: approvalRepo,
		Identity:  identitySvc,
		Ledger:    ledgerSvc,
		Locker:    locker,
		Decider:   engine,
		Outbox:    emitter,
		Metrics:   wfMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create transactions service", err)
		os.Exit(1)
	}

	visibilitySvc, err := visibility.NewService(conn, txRepo, identitySvc, cfg.Visibility)
	if err != nil {
		logg.Error(context.Background(), "failed to create visibility service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, sessions, prometheus.DefaultGatherer, routes.Services{
			Transactions: transactionsSvc,
			Approvals:    engine,
			Visibility:   visibilitySvc,
			Ledger:       ledgerSvc,
			Identity:     identitySvc,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server stopped")
	}
}
