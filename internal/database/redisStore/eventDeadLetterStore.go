package redisStore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

const defaultDeadLetterKey = "parking:events:dlq"

// FailedEvent is a lifecycle event the broker refused.
type FailedEvent struct {
	Event    *entity.SessionEvent `json:"event"`
	Error    string               `json:"error"`
	FailedAt time.Time            `json:"failed_at"`
}

// EventDeadLetterStore keeps undelivered session events ordered by failure
// time so operators can inspect and replay them.
type EventDeadLetterStore interface {
	Add(ctx context.Context, event *entity.SessionEvent, cause error) error
	List(ctx context.Context, limit int) ([]*FailedEvent, error)
	Size(ctx context.Context) (int64, error)
}

type eventDeadLetterStore struct {
	client *redis.Client
	key    string
}

func NewEventDeadLetterStore(client *redis.Client, key string) EventDeadLetterStore {
	if key == "" {
		key = defaultDeadLetterKey
	}
	return &eventDeadLetterStore{client: client, key: key}
}

func (s *eventDeadLetterStore) Add(ctx context.Context, event *entity.SessionEvent, cause error) error {
	failed := &FailedEvent{Event: event, FailedAt: time.Now()}
	if cause != nil {
		failed.Error = cause.Error()
	}

	data, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("failed to marshal failed event: %w", err)
	}

	score := float64(failed.FailedAt.UnixNano()) / 1e9
	if err := s.client.ZAdd(ctx, s.key, &redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to store failed event %s: %w", event.ID, err)
	}
	return nil
}

// List returns the newest failures first.
func (s *eventDeadLetterStore) List(ctx context.Context, limit int) ([]*FailedEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	members, err := s.client.ZRevRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read failed events: %w", err)
	}

	events := make([]*FailedEvent, 0, len(members))
	for _, m := range members {
		var failed FailedEvent
		if err := json.Unmarshal([]byte(m), &failed); err != nil {
			continue
		}
		events = append(events, &failed)
	}
	return events, nil
}

func (s *eventDeadLetterStore) Size(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count failed events: %w", err)
	}
	return n, nil
}
