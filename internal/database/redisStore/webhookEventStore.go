package redisStore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const webhookEventPrefix = "parking:webhook:event:"

// WebhookEventStore remembers which gateway webhook events were already
// handled so redelivered events are applied once.
type WebhookEventStore interface {
	// MarkProcessed returns false when id was marked before.
	MarkProcessed(ctx context.Context, id string) (bool, error)
	// Forget lets a failed event be processed again on redelivery.
	Forget(ctx context.Context, id string) error
}

type webhookEventStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewWebhookEventStore(client *redis.Client, ttl time.Duration) WebhookEventStore {
	return &webhookEventStore{client: client, ttl: ttl}
}

func (s *webhookEventStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.SetNX(ctx, webhookEventPrefix+id, time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark webhook event %s: %w", id, err)
	}
	return ok, nil
}

func (s *webhookEventStore) Forget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, webhookEventPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to forget webhook event %s: %w", id, err)
	}
	return nil
}
