package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/cecilphillip/shadowshop/internal/app"
	"github.com/cecilphillip/shadowshop/internal/config"
	"github.com/cecilphillip/shadowshop/internal/pkg/database"
	"github.com/cecilphillip/shadowshop/internal/pkg/dedup"
	"github.com/cecilphillip/shadowshop/internal/pkg/logging"
	"github.com/cecilphillip/shadowshop/internal/pkg/store"
)

func main() {
	cmd := &cobra.Command{
		Use:          "worker",
		Short:        "Run the fulfillment worker and the checkout event dispatcher",
		SilenceUsage: true,
	}
	flags := config.BindFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.Load()
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	if err := app.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate inventory: %w", err)
	}
	if err := dedup.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate idempotency ledger: %w", err)
	}

	rs, err := store.NewRedisStore(ctx, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rs.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return fmt.Errorf("connect to temporal: %w", err)
	}
	defer c.Close()

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	acts := &app.FulfillmentActivities{
		DB:               db,
		Confirmations:    rs,
		Deliveries:       rs,
		Notifier:         app.LogNotifier{Logger: logger},
		Recipient:        cfg.Fulfillment.ConfirmationRecipient,
		ConfirmationTTL:  cfg.Fulfillment.ConfirmationTTL,
		DeliveryCapacity: cfg.Fulfillment.DeliveryCapacity,
		Latency:          cfg.Fulfillment.Latency,
	}
	app.Register(w, app.NewFulfillment(cfg.Activity), acts)

	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()
	logger.Info("worker started", slog.String("task_queue", cfg.Temporal.TaskQueue))

	dispatcher := app.NewDispatcher(c,
		app.WithLogger(logger),
		app.WithQueue(cfg.RabbitMQ.Queue),
		app.WithTaskQueue(cfg.Temporal.TaskQueue),
		app.WithDeterministicIDs(cfg.Fulfillment.DeterministicIDs),
	)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(gctx, ch)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case amqpErr := <-closed:
			return fmt.Errorf("rabbitmq connection closed: %v", amqpErr)
		}
	})

	err = g.Wait()
	logger.Info("worker stopping")
	return err
}
