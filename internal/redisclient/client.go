package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticketing-service/internal/service"

	"github.com/go-redis/redis/v8"
)

// Client caches payment projections for the polled lookup endpoint and keeps
// a short-lived fast-path dedup marker per webhook charge. The authoritative
// idempotency guard is the payments table; the marker only saves a DB
// round-trip on tight redelivery bursts.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetProjection returns a cached payment projection, or nil on a miss.
func (c *Client) GetProjection(ctx context.Context, chargeID string) (*service.PaymentProjection, error) {
	raw, err := c.rdb.Get(ctx, projectionKey(chargeID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var projection service.PaymentProjection
	if err := json.Unmarshal(raw, &projection); err != nil {
		return nil, fmt.Errorf("failed to decode cached projection: %w", err)
	}
	return &projection, nil
}

// SetProjection caches a payment projection with a TTL.
func (c *Client) SetProjection(ctx context.Context, chargeID string, p *service.PaymentProjection, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, projectionKey(chargeID), raw, ttl).Err()
}

// ChargeSeen reports whether a charge was successfully processed inside the
// marker window.
func (c *Client) ChargeSeen(ctx context.Context, chargeID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, chargeKey(chargeID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkChargeSeen records a successfully processed charge id with a TTL. Only
// called after the PAID transition is durable, so a positive marker always
// means duplicate delivery.
func (c *Client) MarkChargeSeen(ctx context.Context, chargeID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, chargeKey(chargeID), "1", ttl).Err()
}

func chargeKey(chargeID string) string {
	return "charge-seen:" + chargeID
}

func projectionKey(chargeID string) string {
	return "payment-projection:" + chargeID
}
