package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/carrental-backend/internal/charge"
	"github.com/angelmondragon/carrental-backend/internal/checkout"
	"github.com/angelmondragon/carrental-backend/internal/cron"
	"github.com/angelmondragon/carrental-backend/internal/payments"
	"github.com/angelmondragon/carrental-backend/internal/reconcile"
	"github.com/angelmondragon/carrental-backend/internal/reservations"
	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/instance"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/metrics"
	"github.com/angelmondragon/carrental-backend/pkg/migrate"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/redis"
	"github.com/angelmondragon/carrental-backend/pkg/stripe"
)

const serviceKind = "cron-worker"

type jobList []string

func (j *jobList) String() string { return strings.Join(*j, ",") }

func (j *jobList) Set(v string) error {
	*j = append(*j, strings.TrimSpace(v))
	return nil
}

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	var only jobList
	flag.Var(&only, "job", "with -once, run only this job (repeatable)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.ID(),
		"once":        *once,
	})

	if err := run(ctx, cfg, logg, *once, only); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool, only []string) error {
	if len(only) > 0 && !once {
		return errors.New("-job requires -once")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer redisClient.Close()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return fmt.Errorf("bootstrap stripe: %w", err)
	}

	jobs, err := buildJobs(cfg, logg, dbClient, stripeClient, metrics.NewBookingMetrics(prometheus.DefaultRegisterer))
	if err != nil {
		return fmt.Errorf("build jobs: %w", err)
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return err
	}
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), 0)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if once {
		return service.RunOnce(ctx, only...)
	}
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildJobs(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	stripeClient *stripe.Client,
	bookingMetrics *metrics.BookingMetrics,
) ([]cron.Job, error) {
	currency, err := cfg.Reservations.Currency()
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)
	reservationRepo := reservations.NewRepository(dbClient.DB())

	ledger, err := payments.NewLedger(payments.NewRepository(dbClient.DB()), currency, emitter, logg)
	if err != nil {
		return nil, err
	}
	reconciler, err := reconcile.New(reconcile.Params{
		Reservations: reservationRepo,
		Tx:           dbClient,
		Outbox:       emitter,
		Metrics:      bookingMetrics,
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}
	gateway, err := charge.NewStripeGateway(stripeClient, bookingMetrics, logg)
	if err != nil {
		return nil, err
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
		return nil, err
	}

	pendingCards, err := cron.NewPendingCardJob(cron.PendingCardJobParams{
		Logger:    logg,
		Payments:  ledger,
		Gateway:   gateway,
		Finalizer: checkoutService,
		Lookback:  cfg.Cron.PendingCardLookback,
		Limit:     cfg.Cron.PendingCardBatchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("pending card job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:            logg,
		Tx:                dbClient,
		Outbox:            outboxRepo,
		RetentionDays:     cfg.Cron.OutboxRetentionDays,
		DeadAfterAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return []cron.Job{pendingCards, retention}, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
