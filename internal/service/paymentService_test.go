package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWebhookAppliesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := newFakeEventStore()
	svc := NewPaymentService(env.gateway, store, env.svc)

	created, err := env.svc.CreateSession(ctx, testUserID, createRequest("1"))
	require.NoError(t, err)

	env.gateway.event = &entity.PaymentEvent{ID: "evt_1", Type: entity.PaymentEventSucceeded, ChargeID: "pi_1"}
	require.NoError(t, svc.HandleWebhook(ctx, []byte(`{}`), "sig"))
	assert.Equal(t, entity.SessionStatusActive, env.sessions.get(created.Session.ID).Status)
	activatedAt := env.sessions.get(created.Session.ID).StartTime

	// Redelivery must not restart the clock.
	env.advance(time.Minute)
	require.NoError(t, svc.HandleWebhook(ctx, []byte(`{}`), "sig"))
	assert.Equal(t, activatedAt, env.sessions.get(created.Session.ID).StartTime)
	assert.Empty(t, store.forgot)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	svc := NewPaymentService(env.gateway, newFakeEventStore(), env.svc)

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	store := newFakeEventStore()
	svc := NewPaymentService(env.gateway, store, env.svc)

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
	assert.Empty(t, store.seen)
}

type failingSessionService struct {
	SessionService
}

func (failingSessionService) ApplyPaymentEvent(context.Context, *entity.PaymentEvent) error {
	return errors.New("database unavailable")
}

func TestHandleWebhookForgetsFailedEvent(t *testing.T) {
	env := newTestEnv(t)
	store := newFakeEventStore()
	svc := NewPaymentService(env.gateway, store, failingSessionService{})
	env.gateway.event = &entity.PaymentEvent{ID: "evt_9", Type: entity.PaymentEventFailed, ChargeID: "pi_9"}

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.Error(t, err)
	assert.Equal(t, []string{"evt_9"}, store.forgot)
	assert.False(t, store.seen["evt_9"])
}
