// Package queue holds the RabbitMQ topology and publishing shared by the
// dispatcher and the event producers.
package queue

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer declares queues. *amqp.Channel satisfies it.
type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// Declare ensures the event queue exists: non-durable, non-auto-delete,
// non-exclusive.
func Declare(ch Declarer, name string) error {
	if _, err := ch.QueueDeclare(name, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Channel is the channel surface the publisher needs.
type Channel interface {
	Declarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends JSON events to a queue on the default exchange.
type Publisher struct {
	ch    Channel
	queue string
}

// NewPublisher declares queue on ch and returns a publisher bound to it.
func NewPublisher(ch Channel, queue string) (*Publisher, error) {
	if err := Declare(ch, queue); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, queue: queue}, nil
}

// Publish marshals message and sends it with a fresh correlation ID, which it
// returns.
func (p *Publisher) Publish(ctx context.Context, message any) (string, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	id := uuid.New()
	correlationID := hex.EncodeToString(id[:])
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	return correlationID, nil
}
