package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cecilphillip/shadowshop/internal/common"
	"github.com/cecilphillip/shadowshop/internal/pkg/dedup"
	"github.com/cecilphillip/shadowshop/internal/pkg/store"
)

var (
	ErrUnknownProduct = errors.New("unknown product")
	ErrOutOfStock     = errors.New("out of stock")
)

// heartbeatEvery is how often a waiting activity reports liveness, unless the
// heartbeat timeout calls for more often.
var heartbeatEvery = time.Second

// Notifier delivers the customer-facing order confirmation.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, recipient, sessionID string) error
}

// LogNotifier writes confirmations to a logger instead of a mail provider.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendOrderConfirmation(ctx context.Context, recipient, sessionID string) error {
	n.Logger.InfoContext(ctx, "order confirmation sent",
		slog.String("recipient", recipient),
		slog.String("session_id", sessionID),
	)
	return nil
}

// ConfirmationLedger remembers which sessions were already notified.
type ConfirmationLedger interface {
	ClaimConfirmation(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	ReleaseConfirmation(ctx context.Context, sessionID string) error
}

// DeliveryScheduler books delivery capacity.
type DeliveryScheduler interface {
	BookDelivery(ctx context.Context, sessionID, day string, defaultCapacity int) (store.BookingOutcome, error)
}

// FulfillmentActivities are the side-effecting steps of a fulfillment. Each one
// is keyed by session ID so engine retries never repeat a side effect.
type FulfillmentActivities struct {
	DB            *gorm.DB
	Confirmations ConfirmationLedger
	Deliveries    DeliveryScheduler
	Notifier      Notifier

	Recipient        string
	ConfirmationTTL  time.Duration
	DeliveryCapacity int
	// Latency simulates the duration of the external call of each step.
	Latency time.Duration
	Now     func() time.Time
}

// SendOrderConfirmation notifies the customer once per session.
func (a *FulfillmentActivities) SendOrderConfirmation(ctx context.Context, order common.FulfillOrder) (common.ActivityResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Sending order confirmation", "Recipient", a.Recipient, "SessionId", order.SessionID)

	if err := a.pause(ctx, "sending confirmation"); err != nil {
		return common.ActivityResult{}, err
	}

	claimed, err := a.Confirmations.ClaimConfirmation(ctx, order.SessionID, a.ConfirmationTTL)
	if err != nil {
		return common.ActivityResult{}, fmt.Errorf("claim confirmation: %w", err)
	}
	if !claimed {
		logger.Info("Order confirmation already sent", "SessionId", order.SessionID)
		return common.Succeeded(), nil
	}

	if err := a.Notifier.SendOrderConfirmation(ctx, a.Recipient, order.SessionID); err != nil {
		if rerr := a.Confirmations.ReleaseConfirmation(context.WithoutCancel(ctx), order.SessionID); rerr != nil {
			logger.Warn("Failed to release confirmation claim", "SessionId", order.SessionID, "Error", rerr)
		}
		return common.ActivityResult{}, fmt.Errorf("send order confirmation: %w", err)
	}

	logger.Info("Order confirmation sent", "SessionId", order.SessionID)
	return common.Succeeded(), nil
}

// UpdateInventory decrements stock for every line of the session exactly once.
// Unknown products and short stock decline the step without error.
func (a *FulfillmentActivities) UpdateInventory(ctx context.Context, order common.FulfillOrder) (common.ActivityResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Updating inventory", "SessionId", order.SessionID)

	if err := a.pause(ctx, "updating inventory"); err != nil {
		return common.ActivityResult{}, err
	}

	applied, err := dedup.Execute(ctx, a.DB, "inventory:"+order.SessionID, func(tx *gorm.DB) error {
		return decrementStock(tx, order.SessionID)
	})
	switch {
	case errors.Is(err, ErrUnknownProduct), errors.Is(err, ErrOutOfStock):
		logger.Warn("Inventory not updated", "SessionId", order.SessionID, "Reason", err.Error())
		return common.Declined(err.Error()), nil
	case err != nil:
		return common.ActivityResult{}, fmt.Errorf("update inventory: %w", err)
	}

	if !applied {
		logger.Info("Inventory already updated", "SessionId", order.SessionID)
	} else {
		logger.Info("Inventory updated", "SessionId", order.SessionID)
	}
	return common.Succeeded(), nil
}

func decrementStock(tx *gorm.DB, sessionID string) error {
	var lines []OrderLine
	if err := tx.Where("session_id = ?", sessionID).Order("id").Find(&lines).Error; err != nil {
		return err
	}
	for _, line := range lines {
		var product Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&product, "id = ?", line.ProductID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, line.ProductID)
		}
		if err != nil {
			return err
		}
		if product.Stock < line.Quantity {
			return fmt.Errorf("%w: %s", ErrOutOfStock, product.ID)
		}
		if err := tx.Model(&product).Update("stock", gorm.Expr("stock - ?", line.Quantity)).Error; err != nil {
			return err
		}
	}
	return nil
}

// ScheduleDelivery books a next-day delivery slot once per session. A full day
// declines the step.
func (a *FulfillmentActivities) ScheduleDelivery(ctx context.Context, order common.FulfillOrder) (common.ActivityResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Scheduling delivery", "SessionId", order.SessionID)

	if err := a.pause(ctx, "scheduling delivery"); err != nil {
		return common.ActivityResult{}, err
	}

	day := a.now().UTC().AddDate(0, 0, 1).Format(time.DateOnly)
	outcome, err := a.Deliveries.BookDelivery(ctx, order.SessionID, day, a.DeliveryCapacity)
	if err != nil {
		return common.ActivityResult{}, err
	}
	if outcome == store.BookingFull {
		logger.Warn("No delivery capacity", "SessionId", order.SessionID, "Day", day)
		return common.Declined("no delivery capacity on " + day), nil
	}

	logger.Info("Delivery scheduled", "SessionId", order.SessionID, "Day", day, "Booking", outcome.String())
	return common.Succeeded(), nil
}

func (a *FulfillmentActivities) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// pause waits out the simulated latency, heartbeating so that a cancelled or
// timed-out attempt is noticed.
func (a *FulfillmentActivities) pause(ctx context.Context, progress string) error {
	every := heartbeatInterval(activity.GetInfo(ctx).HeartbeatTimeout)
	return waitOrCancel(ctx, a.Latency, every, func() {
		activity.RecordHeartbeat(ctx, progress)
	})
}

// heartbeatInterval beats at least twice per heartbeat timeout.
func heartbeatInterval(timeout time.Duration) time.Duration {
	if half := timeout / 2; half > 0 && half < heartbeatEvery {
		return half
	}
	return heartbeatEvery
}

func waitOrCancel(ctx context.Context, d, every time.Duration, beat func()) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case <-ticker.C:
			beat()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
