package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const deliveryKeyPrefix = "gitplumbers:webhook_delivery:"

// DeliveryGuard remembers webhook delivery ids so redelivered payloads are
// acknowledged without being handled twice.
type DeliveryGuard interface {
	// Claim returns true the first time deliveryID is seen within the TTL.
	Claim(ctx context.Context, deliveryID string) (bool, error)
	// Release forgets deliveryID so a redelivery is handled again.
	Release(ctx context.Context, deliveryID string) error
}

type redisDeliveryGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeliveryGuard(client *redis.Client, ttl time.Duration) DeliveryGuard {
	return &redisDeliveryGuard{client: client, ttl: ttl}
}

func (g *redisDeliveryGuard) Claim(ctx context.Context, deliveryID string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, deliveryKeyPrefix+deliveryID, time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", deliveryID, err)
	}
	return claimed, nil
}

func (g *redisDeliveryGuard) Release(ctx context.Context, deliveryID string) error {
	if err := g.client.Del(ctx, deliveryKeyPrefix+deliveryID).Err(); err != nil {
		return fmt.Errorf("release delivery %s: %w", deliveryID, err)
	}
	return nil
}
