package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovenly/backend/api/routes"
	"github.com/ovenly/backend/internal/alerts"
	"github.com/ovenly/backend/internal/cron"
	"github.com/ovenly/backend/internal/idempotency"
	"github.com/ovenly/backend/internal/orders"
	"github.com/ovenly/backend/internal/payments"
	"github.com/ovenly/backend/internal/reconciliation"
	"github.com/ovenly/backend/internal/webhookauth"
	"github.com/ovenly/backend/pkg/config"
	"github.com/ovenly/backend/pkg/db"
	"github.com/ovenly/backend/pkg/instance"
	"github.com/ovenly/backend/pkg/logger"
	"github.com/ovenly/backend/pkg/maps"
	"github.com/ovenly/backend/pkg/metrics"
	"github.com/ovenly/backend/pkg/migrate"
	"github.com/ovenly/backend/pkg/mpesa"
	"github.com/ovenly/backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	alertsNotifier, closeAlerts := alerts.FromConfig(context.Background(), cfg.GCP, cfg.PubSub, logg)
	defer closeAlerts()

	limiter, err := newLimiter(cfg, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create rate limiter", err)
		os.Exit(1)
	}

	idemStore, err := idempotency.NewStore(dbClient.DB(), cfg.Idempotency.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency store", err)
		os.Exit(1)
	}

	var locator orders.PlaceLocator
	if cfg.Maps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.Maps.APIKey, maps.WithCacheSize(cfg.Maps.CacheSize))
		if err != nil {
			logg.Error(context.Background(), "failed to create maps client", err)
			os.Exit(1)
		}
		locator = mapsClient
	}

	busyGate := orders.NewBusyGate(redisClient, cfg.Orders.BusyMode)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:        orders.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Idempotency: idemStore,
		Limiter:     limiter,
		Busy:        busyGate,
		Catalog:     orders.DefaultCatalog(),
		Fees:        orders.DefaultFeeResolver(locator),
		Config:      cfg.Orders,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	paymentsRepo := payments.NewRepository(dbClient.DB())
	runner := payments.NewAsyncRunner(cfg.Webhook.ProcessingTimeout, logg)
	processor, err := payments.NewProcessor(payments.ProcessorParams{
		Repo:   paymentsRepo,
		Tx:     dbClient,
		Alerts: alertsNotifier,
		Runner: runner,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment processor", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Orders:   ordersSvc,
		Busy:     busyGate,
		Ingestor: processor,
		Verifier: webhookauth.New(webhookauth.Config{
			SharedSecret: cfg.Webhook.SharedSecret,
			HMACSecret:   cfg.Webhook.HMACSecret,
			FailClosed:   cfg.Webhook.FailClosed(cfg.App),
		}),
		Limiter:        limiter,
		PaymentMetrics: paymentMetrics,
		Gatherer:       registry,
		ReconcileLocks: func() (cron.Lock, error) {
			lock, err := cron.NewRedisLock(redisClient, cron.ReconcileLockKey(cfg.App.Env), 0)
			if err != nil {
				return nil, err
			}
			return lock, nil
		},
	}

	if cfg.Mpesa.Enabled() {
		mpesaClient, err := mpesa.NewClientFromConfig(cfg.Mpesa)
		if err != nil {
			logg.Error(context.Background(), "failed to create mpesa client", err)
			os.Exit(1)
		}
		stkSvc, err := payments.NewSTKService(payments.STKServiceParams{
			Repo:        paymentsRepo,
			Tx:          dbClient,
			Client:      mpesaClient,
			Idempotency: idemStore,
			Limiter:     limiter,
			Cooldown:    cfg.Orders.BalancePushCooldown,
			Logger:      logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create stk service", err)
			os.Exit(1)
		}
		reconciler, err := reconciliation.NewService(reconciliation.ServiceParams{
			Store:     paymentsRepo,
			Processor: processor,
			Client:    mpesaClient,
			Config:    cfg.Reconciliation,
			Metrics:   paymentMetrics,
			Logger:    logg,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create reconciliation service", err)
			os.Exit(1)
		}
		deps.STK = stkSvc
		deps.Reconciler = reconciler
	} else {
		logg.Warn(context.Background(), "mpesa credentials missing; stk push and manual reconciliation disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		// deferred ledger updates still in flight after the last ack
		if err := runner.Wait(shutdownCtx); err != nil {
			logg.Error(ctx, "payment processing did not drain", err)
		}
	}
}
