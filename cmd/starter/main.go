package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"github.com/cecilphillip/shadowshop/internal/app"
	"github.com/cecilphillip/shadowshop/internal/common"
	"github.com/cecilphillip/shadowshop/internal/config"
	"github.com/cecilphillip/shadowshop/internal/pkg/queue"
)

// starter publishes sample checkout-completed events, standing in for the
// payment provider webhook.
func main() {
	var (
		count     int
		sessionID string
	)
	cmd := &cobra.Command{
		Use:          "starter",
		Short:        "Publish checkout-completed events to the fulfillment queue",
		SilenceUsage: true,
	}
	flags := config.BindFlags(cmd.Flags())
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of events to publish")
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID to publish (every event reuses it)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.Load()
		if err != nil {
			return err
		}
		return publish(cmd.Context(), cfg, count, sessionID)
	}

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func publish(ctx context.Context, cfg config.Config, count int, sessionID string) error {
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

	publisher, err := queue.NewPublisher(ch, cfg.RabbitMQ.Queue)
	if err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		order := common.FulfillOrder{SessionID: sessionID}
		if order.SessionID == "" {
			order.SessionID = fmt.Sprintf("cs_test_%d_%d", time.Now().Unix(), i)
		}
		correlationID, err := publisher.Publish(ctx, order)
		if err != nil {
			return err
		}
		if cfg.Fulfillment.DeterministicIDs {
			log.Printf("published checkout event session=%s correlation=%s workflow=%s",
				order.SessionID, correlationID, app.OrderWorkflowID(order.SessionID))
			continue
		}
		log.Printf("published checkout event session=%s correlation=%s", order.SessionID, correlationID)
	}
	if !cfg.Fulfillment.DeterministicIDs {
		log.Printf("workflow IDs are assigned by the worker and logged as workflow_id when each workflow starts")
	}
	return nil
}
