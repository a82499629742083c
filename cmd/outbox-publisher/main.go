package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/carrental-backend/pkg/amqp"
	"github.com/angelmondragon/carrental-backend/pkg/config"
	"github.com/angelmondragon/carrental-backend/pkg/db"
	"github.com/angelmondragon/carrental-backend/pkg/instance"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	"github.com/angelmondragon/carrental-backend/pkg/migrate"
	"github.com/angelmondragon/carrental-backend/pkg/outbox"
	"github.com/angelmondragon/carrental-backend/pkg/outbox/registry"
	"github.com/angelmondragon/carrental-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
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
	})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

// run owns every resource so deferred closes happen before main exits.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	tr, closer, err := buildTransport(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("bootstrap transport: %w", err)
	}
	defer closeQuietly(ctx, logg, "transport", closer)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Transport:  tr,
		Repository: outbox.NewRepository(dbClient.DB()),
		Registry:   eventRegistry,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "transport", tr.Name())
	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", what), "close failed", err)
	}
}

func buildTransport(ctx context.Context, cfg *config.Config, logg *logger.Logger) (transport, io.Closer, error) {
	switch cfg.Outbox.Transport {
	case transportAMQP:
		pub, err := amqp.NewPublisher(ctx, cfg.AMQP, logg)
		if err != nil {
			return nil, nil, err
		}
		return &amqpTransport{publisher: pub}, pub, nil
	case transportPubSub, "":
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, nil, err
		}
		return &pubSubTransport{client: client}, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown outbox transport %q", cfg.Outbox.Transport)
	}
}
