package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schatha/stamford-parking-system-sub001/config"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsDriver(t *testing.T) {
	p, err := New(&config.EventsConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, noopPublisher{}, p)

	p, err = New(&config.EventsConfig{Driver: "kafka", Kafka: config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "parking-sessions",
	}})
	require.NoError(t, err)
	assert.IsType(t, &kafkaPublisher{}, p)
	assert.NoError(t, p.Close())

	_, err = New(&config.EventsConfig{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNoopPublisher(t *testing.T) {
	p := NewNoopPublisher()
	event := &entity.SessionEvent{
		ID:         uuid.New(),
		Type:       entity.SessionEventCreated,
		SessionID:  uuid.New(),
		OccurredAt: time.Now(),
	}

	assert.NoError(t, p.Publish(context.Background(), event))
	assert.NoError(t, p.Close())
}

type failingPublisher struct {
	noopPublisher
	err error
}

func (p failingPublisher) Publish(context.Context, *entity.SessionEvent) error {
	return p.err
}

type recordingSink struct {
	events []*entity.SessionEvent
	causes []error
}

func (s *recordingSink) Add(_ context.Context, event *entity.SessionEvent, cause error) error {
	s.events = append(s.events, event)
	s.causes = append(s.causes, cause)
	return nil
}

func TestWithDeadLetter(t *testing.T) {
	event := &entity.SessionEvent{ID: uuid.New(), Type: entity.SessionEventExpired}

	tests := []struct {
		name       string
		next       Publisher
		wantErr    bool
		wantParked int
	}{
		{name: "delivered", next: NewNoopPublisher(), wantErr: false, wantParked: 0},
		{name: "broker down", next: failingPublisher{err: errors.New("connection refused")}, wantErr: true, wantParked: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			p := WithDeadLetter(tt.next, sink)

			err := p.Publish(context.Background(), event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, sink.events, tt.wantParked)
			if tt.wantParked > 0 {
				assert.Equal(t, event.ID, sink.events[0].ID)
				assert.EqualError(t, sink.causes[0], "connection refused")
			}
		})
	}

	assert.Equal(t, NewNoopPublisher(), WithDeadLetter(NewNoopPublisher(), nil))
}
