package service

import (
	"context"
	"fmt"

	"github.com/schatha/stamford-parking-system-sub001/internal/database/redisStore"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/sirupsen/logrus"
)

type paymentService struct {
	gateway        PaymentGateway
	eventStore     redisStore.WebhookEventStore
	sessionService SessionService
}

func NewPaymentService(gateway PaymentGateway, eventStore redisStore.WebhookEventStore, sessionService SessionService) PaymentService {
	return &paymentService{
		gateway:        gateway,
		eventStore:     eventStore,
		sessionService: sessionService,
	}
}

// HandleWebhook verifies and applies a gateway event once. Redelivered events
// are acknowledged without being applied again.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return &entity.ValidationError{Field: "signature", Message: err.Error()}
	}
	if event == nil {
		return nil
	}

	logger := logrus.WithFields(logrus.Fields{
		"event_id":  event.ID,
		"event":     event.Type,
		"charge_id": event.ChargeID,
	})

	if event.ID != "" {
		first, err := s.eventStore.MarkProcessed(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("deduplicate webhook: %w", err)
		}
		if !first {
			logger.Info("Duplicate webhook event ignored")
			return nil
		}
	}

	if err := s.sessionService.ApplyPaymentEvent(ctx, event); err != nil {
		if event.ID != "" {
			if forgetErr := s.eventStore.Forget(ctx, event.ID); forgetErr != nil {
				logger.WithError(forgetErr).Error("Failed to release webhook event")
			}
		}
		return fmt.Errorf("apply payment event: %w", err)
	}

	logger.Info("Payment webhook applied")
	return nil
}
