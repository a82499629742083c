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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/carrental-backend/api/routes"
	"github.com/angelmondragon/carrental-backend/internal/cars"
	"github.com/angelmondragon/carrental-backend/internal/charge"
	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/internal/payments"
	"github.com/angelmondragon/carrental-backend/internal/reconcile"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/internal/stats"
	stripewebhook "github.com/angelmondragon/carrental-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/instance"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
	"github.com/angelmondragon/carrental-backend/pkg/migrate"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/carrental-backend/pkg/redis"
	"github.com/angelmondragon/carrental-backend/pkg/stripe"
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
	cfg.Service.Kind = "api"

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	deps, err := buildDependencies(cfg, logg, dbClient, redisClient, stripeClient, bookingMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	deps.Gatherer = registry
	deps.HTTPMetrics = metrics.NewHTTPMetrics(registry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.ID(),
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

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
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shutting down gracefully")
	}
}

func buildDependencies(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *stripe.Client,
	bookingMetrics *metrics.BookingMetrics,
) (routes.Dependencies, error) {
	currency, err := cfg.Reservations.Currency()
	if err != nil {
		return routes.Dependencies{}, err
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	reservationRepo := reservations.NewRepository(dbClient.DB())

	carService, err := cars.NewService(cars.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	reservationService, err := reservations.NewService(reservations.ServiceParams{
		Repository: reservationRepo,
		Tx:         dbClient,
		Outbox:     emitter,
		Metrics:    bookingMetrics,
		Logger:     logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	ledger, err := payments.NewLedger(payments.NewRepository(dbClient.DB()), currency, emitter, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	reconciler, err := reconcile.New(reconcile.Params{
		Reservations: reservationRepo,
		Tx:           dbClient,
		Outbox:       emitter,
		Metrics:      bookingMetrics,
		Logger:       logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	gateway, err := charge.NewStripeGateway(stripeClient, bookingMetrics, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Reservations: reservationRepo,
		Ledger:       ledger,
		Reconciler:   reconciler,
		Gateway:      gateway,
		Tx:           dbClient,
		Currency:     currency,
		Logger:       logg,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	statsService, err := stats.NewService(dbClient.DB())
	if err != nil {
		return routes.Dependencies{}, err
	}

	webhookService, err := stripewebhook.NewService(checkoutService, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	tracker, err := idempotency.NewManager(redisClient, cfg.Stripe.WebhookTTL)
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := stripewebhook.NewGuard(tracker)
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		DB:            dbClient,
		Redis:         redisClient,
		Keys:          redisClient,
		Cars:          carService,
		Reservations:  reservationService,
		Checkout:      checkoutService,
		Stats:         statsService,
		StripeSecrets: stripeClient,
		StripeWebhook: webhookService,
		WebhookGuard:  guard,
	}, nil
}
