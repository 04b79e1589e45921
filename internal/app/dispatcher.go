package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/cecilphillip/shadowshop/internal/common"
	"github.com/cecilphillip/shadowshop/internal/pkg/queue"
)

var (
	ErrMalformedOrder   = errors.New("malformed fulfillment order")
	ErrDeliveriesClosed = errors.New("delivery channel closed")
)

// sessionNamespace scopes the name-based UUIDs of deterministic workflow IDs.
var sessionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:shadowshop:fulfillment"))

// NewWorkflowID returns a fresh fulfillment-<hex> workflow ID.
func NewWorkflowID() string {
	return workflowID(uuid.New())
}

// OrderWorkflowID returns the workflow ID derived from a session ID. Equal
// sessions always map to the same ID.
func OrderWorkflowID(sessionID string) string {
	return workflowID(uuid.NewSHA1(sessionNamespace, []byte(sessionID)))
}

func workflowID(id uuid.UUID) string {
	return common.WorkflowIDPrefix + hex.EncodeToString(id[:])
}

// WorkflowStarter starts workflow executions. client.Client satisfies it.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ConsumeChannel is the AMQP channel surface the dispatcher consumes from.
// *amqp.Channel satisfies it.
type ConsumeChannel interface {
	queue.Declarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithQueue sets the queue checkout-completed events are consumed from.
func WithQueue(name string) DispatcherOption {
	return func(d *Dispatcher) { d.queue = name }
}

// WithTaskQueue sets the Temporal task queue workflows are started on.
func WithTaskQueue(name string) DispatcherOption {
	return func(d *Dispatcher) { d.taskQueue = name }
}

// WithDeterministicIDs derives workflow IDs from session IDs and treats an
// already-started workflow as a duplicate delivery.
func WithDeterministicIDs(enabled bool) DispatcherOption {
	return func(d *Dispatcher) { d.deterministic = enabled }
}

// WithRedeliveryDelay sets how long a message whose start failed is held
// before it is handed back to the queue.
func WithRedeliveryDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.redeliveryDelay = delay }
}

// Dispatcher turns checkout-completed messages into fulfillment workflows.
// A message is acknowledged only after its workflow start succeeded.
type Dispatcher struct {
	starter         WorkflowStarter
	logger          *slog.Logger
	queue           string
	taskQueue       string
	deterministic   bool
	redeliveryDelay time.Duration
}

func NewDispatcher(starter WorkflowStarter, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		starter:         starter,
		logger:          slog.Default(),
		queue:           common.CheckoutCompletedQueue,
		taskQueue:       common.TaskQueue,
		redeliveryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes the event queue with prefetch 1 and manual acknowledgement
// until ctx is done or the broker closes the delivery channel.
func (d *Dispatcher) Run(ctx context.Context, ch ConsumeChannel) error {
	if err := queue.Declare(ch, d.queue); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, true); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(d.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", d.queue, err)
	}

	d.logger.Info("dispatcher consuming", slog.String("queue", d.queue), slog.String("task_queue", d.taskQueue))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			d.HandleDelivery(ctx, msg)
		}
	}
}

// HandleDelivery starts the workflow for msg and settles it: ack on success,
// reject without requeue when the body is malformed, requeue otherwise.
func (d *Dispatcher) HandleDelivery(ctx context.Context, msg amqp.Delivery) {
	id, err := d.Dispatch(ctx, msg.Body)
	switch {
	case err == nil:
		if ackErr := msg.Ack(false); ackErr != nil {
			d.logger.Error("ack failed", slog.String("workflow_id", id), slog.String("error", ackErr.Error()))
		}
	case errors.Is(err, ErrMalformedOrder):
		d.logger.Warn("rejecting malformed message",
			slog.Uint64("delivery_tag", msg.DeliveryTag),
			slog.String("error", err.Error()),
		)
		if nackErr := msg.Reject(false); nackErr != nil {
			d.logger.Error("reject failed", slog.String("error", nackErr.Error()))
		}
	default:
		d.logger.Error("workflow start failed, requeueing",
			slog.Uint64("delivery_tag", msg.DeliveryTag),
			slog.String("error", err.Error()),
		)
		d.holdBeforeRedelivery(ctx)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			d.logger.Error("nack failed", slog.String("error", nackErr.Error()))
		}
	}
}

func (d *Dispatcher) holdBeforeRedelivery(ctx context.Context) {
	if d.redeliveryDelay <= 0 {
		return
	}
	timer := time.NewTimer(d.redeliveryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Dispatch decodes body and starts one fulfillment workflow for it, returning
// the workflow ID.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (string, error) {
	var order common.FulfillOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOrder, err)
	}
	if order.SessionID == "" {
		return "", fmt.Errorf("%w: missing SessionId", ErrMalformedOrder)
	}

	opts := client.StartWorkflowOptions{
		ID:        NewWorkflowID(),
		TaskQueue: d.taskQueue,
	}
	if d.deterministic {
		opts.ID = OrderWorkflowID(order.SessionID)
		opts.WorkflowIDReusePolicy = enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE
		opts.WorkflowExecutionErrorWhenAlreadyStarted = true
	}

	run, err := d.starter.ExecuteWorkflow(ctx, opts, common.WorkflowFulfillment, order)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	switch {
	case d.deterministic && errors.As(err, &started):
		d.logger.Info("duplicate checkout event, workflow already started",
			slog.String("workflow_id", opts.ID),
			slog.String("session_id", order.SessionID),
		)
		return opts.ID, nil
	case err != nil:
		return "", fmt.Errorf("start workflow %s: %w", opts.ID, err)
	}

	d.logger.Info("fulfillment workflow started",
		slog.String("workflow_id", run.GetID()),
		slog.String("run_id", run.GetRunID()),
		slog.String("session_id", order.SessionID),
	)
	return run.GetID(), nil
}
