package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BookingOutcome is the result of a delivery booking attempt.
type BookingOutcome int

const (
	BookingFull BookingOutcome = iota
	BookingCreated
	BookingExisting
)

func (o BookingOutcome) String() string {
	switch o {
	case BookingCreated:
		return "created"
	case BookingExisting:
		return "existing"
	default:
		return "full"
	}
}

// RedisStore keeps the confirmation ledger and delivery slot capacity.
type RedisStore struct {
	Client *redis.Client
	script *redis.Script
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts *redis.Options) (*RedisStore, error) {
	if opts.PoolSize == 0 {
		opts.PoolSize = 50
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = 5
	}
	if opts.PoolTimeout == 0 {
		opts.PoolTimeout = 30 * time.Second
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &RedisStore{Client: rdb, script: redis.NewScript(bookDeliveryScript)}, nil
}

func (r *RedisStore) Close() error {
	return r.Client.Close()
}

func confirmationKey(sessionID string) string { return "confirmation:" + sessionID }
func bookingKey(sessionID string) string      { return "delivery:booking:" + sessionID }
func capacityKey(day string) string           { return "delivery:capacity:" + day }

// ClaimConfirmation records that the confirmation for sessionID is being
// sent. It returns false when another attempt already claimed it.
func (r *RedisStore) ClaimConfirmation(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	return r.Client.SetNX(ctx, confirmationKey(sessionID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// ReleaseConfirmation drops a claim whose send failed so a retry can resend.
func (r *RedisStore) ReleaseConfirmation(ctx context.Context, sessionID string) error {
	return r.Client.Del(ctx, confirmationKey(sessionID)).Err()
}

// OpenDeliveryDay sets the number of deliveries bookable on day.
func (r *RedisStore) OpenDeliveryDay(ctx context.Context, day string, capacity int) error {
	return r.Client.Set(ctx, capacityKey(day), capacity, 0).Err()
}

// RemainingCapacity returns the open slots on day, -1 when the day is unopened.
func (r *RedisStore) RemainingCapacity(ctx context.Context, day string) (int, error) {
	n, err := r.Client.Get(ctx, capacityKey(day)).Int()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	return n, err
}

// BookDelivery atomically takes one slot on day for sessionID. A session that
// already holds a booking keeps it and consumes nothing.
func (r *RedisStore) BookDelivery(ctx context.Context, sessionID, day string, defaultCapacity int) (BookingOutcome, error) {
	res, err := r.script.Run(ctx, r.Client, []string{bookingKey(sessionID), capacityKey(day)}, day, defaultCapacity).Int()
	if err != nil {
		return BookingFull, fmt.Errorf("book delivery: %w", err)
	}
	switch res {
	case 0:
		return BookingFull, nil
	case 1:
		return BookingCreated, nil
	case 2:
		return BookingExisting, nil
	}
	return BookingFull, fmt.Errorf("book delivery: unexpected script result %d", res)
}

// DeliveryBooking returns the day booked for sessionID, empty when none.
func (r *RedisStore) DeliveryBooking(ctx context.Context, sessionID string) (string, error) {
	day, err := r.Client.Get(ctx, bookingKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return day, err
}
