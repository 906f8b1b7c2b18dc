package broker

import (
	"context"
	"time"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/sirupsen/logrus"
)

// DeadLetterSink stores events the broker could not take.
type DeadLetterSink interface {
	Add(ctx context.Context, event *entity.SessionEvent, cause error) error
}

type deadLetterPublisher struct {
	Publisher
	sink DeadLetterSink
}

// WithDeadLetter parks events that next fails to publish in sink. The publish
// error is still returned to the caller.
func WithDeadLetter(next Publisher, sink DeadLetterSink) Publisher {
	if sink == nil {
		return next
	}
	return &deadLetterPublisher{Publisher: next, sink: sink}
}

func (p *deadLetterPublisher) Publish(ctx context.Context, event *entity.SessionEvent) error {
	err := p.Publisher.Publish(ctx, event)
	if err == nil {
		return nil
	}

	// The caller's deadline may be what failed the publish.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if sinkErr := p.sink.Add(storeCtx, event, err); sinkErr != nil {
		logrus.WithError(sinkErr).WithField("event_id", event.ID).Error("Failed to dead-letter session event")
	} else {
		logrus.WithField("event_id", event.ID).Warnf("Session event %s moved to dead letter queue", event.Type)
	}
	return err
}
