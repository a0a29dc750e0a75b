package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haleycommerce/storefront-backend/api/routes"
	checkoutsvc "github.com/haleycommerce/storefront-backend/internal/checkout"
	connectsvc "github.com/haleycommerce/storefront-backend/internal/connect"
	"github.com/haleycommerce/storefront-backend/internal/customers"
	"github.com/haleycommerce/storefront-backend/internal/delivery"
	"github.com/haleycommerce/storefront-backend/internal/notifications"
	"github.com/haleycommerce/storefront-backend/internal/orders"
	"github.com/haleycommerce/storefront-backend/internal/shops"
	stripewebhook "github.com/haleycommerce/storefront-backend/internal/webhooks/stripe"
	"github.com/haleycommerce/storefront-backend/pkg/config"
	"github.com/haleycommerce/storefront-backend/pkg/db"
	"github.com/haleycommerce/storefront-backend/pkg/logger"
	"github.com/haleycommerce/storefront-backend/pkg/mail"
	"github.com/haleycommerce/storefront-backend/pkg/metrics"
	"github.com/haleycommerce/storefront-backend/pkg/migrate"
	"github.com/haleycommerce/storefront-backend/pkg/redis"
	pkgstripe "github.com/haleycommerce/storefront-backend/pkg/stripe"
)

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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	mailTransport, err := mail.NewSendgridTransport(cfg.Sendgrid)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap mail transport", err)
		os.Exit(1)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	shopsRepo := shops.NewRepository(dbClient.DB())
	customersRepo := customers.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	ledgerRepo := delivery.NewLedgerRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	mailEngine, err := delivery.NewEngine(
		ledgerRepo,
		ordersRepo,
		customersRepo,
		shopsRepo,
		mailTransport,
		cfg.Mail,
		pipelineMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to build delivery engine", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to build notifications service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(dbClient, ordersRepo, shopsRepo, stripeClient, nil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build checkout service", err)
		os.Exit(1)
	}

	connectService, err := connectsvc.NewService(shopsRepo, stripeClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build connect service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		OrdersRepo:        ordersRepo,
		ShopRepo:          shopsRepo,
		Mailer:            mailEngine,
		Notifier:          notificationsService,
		TransactionRunner: dbClient,
		Metrics:           pipelineMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook guard", err)
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
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			checkoutService,
			connectService,
			notificationsService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server stopped")
	}
}
