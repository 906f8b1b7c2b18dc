// Package broker publishes session lifecycle events to a message broker.
package broker

import (
	"context"
	"fmt"

	"github.com/schatha/stamford-parking-system-sub001/config"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/sirupsen/logrus"
)

type Publisher interface {
	Publish(ctx context.Context, event *entity.SessionEvent) error
	Close() error
}

// New picks the publisher named by cfg.Driver.
func New(cfg *config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return NewNoopPublisher(), nil
	case "rabbitmq":
		return NewRabbitMQPublisher(RabbitMQConfig{
			URL:          cfg.RabbitMQ.URL,
			ExchangeName: cfg.RabbitMQ.ExchangeName,
		})
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(ctx context.Context, event *entity.SessionEvent) error {
	logrus.WithFields(logrus.Fields{
		"event":      event.Type,
		"session_id": event.SessionID,
	}).Debug("Session event not published, no broker configured")
	return nil
}

func (noopPublisher) Close() error { return nil }
