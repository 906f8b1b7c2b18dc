// Package payment talks to Stripe: payment intents for charges, refunds and
// signed webhook events.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/schatha/stamford-parking-system-sub001/config"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

var (
	ErrNoPaymentMethod = errors.New("original charge has no saved payment method")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

type StripeGateway struct {
	api           *client.API
	currency      string
	webhookSecret string
}

func NewStripeGateway(cfg *config.StripeConfig) *StripeGateway {
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, nil),
		currency:      cfg.Currency,
		webhookSecret: cfg.WebhookSecret,
	}
}

// ToCents converts a money amount into the smallest currency unit.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CreateCharge opens a payment intent the client confirms with the returned
// client secret. The card is saved for later off-session extension charges.
func (g *StripeGateway) CreateCharge(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (*entity.Charge, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(ToCents(amount)),
		Currency:           stripe.String(g.currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SetupFutureUsage:   stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if key, ok := metadata["idempotency_key"]; ok {
		params.SetIdempotencyKey(key)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &entity.Charge{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       FromCents(pi.Amount),
	}, nil
}

// ChargeOffSession charges the payment method used for originalChargeID
// again without the driver being present.
func (g *StripeGateway) ChargeOffSession(ctx context.Context, originalChargeID string, amount decimal.Decimal, metadata map[string]string) (*entity.Charge, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	original, err := g.api.PaymentIntents.Get(originalChargeID, getParams)
	if err != nil {
		return nil, fmt.Errorf("get original payment intent: %w", err)
	}
	if original.PaymentMethod == nil {
		return nil, ErrNoPaymentMethod
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(ToCents(amount)),
		Currency:      stripe.String(g.currency),
		PaymentMethod: stripe.String(original.PaymentMethod.ID),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if original.Customer != nil {
		params.Customer = stripe.String(original.Customer.ID)
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if key, ok := metadata["idempotency_key"]; ok {
		params.SetIdempotencyKey(key)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create off-session payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("off-session payment intent %s is %s", pi.ID, pi.Status)
	}

	return &entity.Charge{
		ID:     pi.ID,
		Status: string(pi.Status),
		Amount: FromCents(pi.Amount),
	}, nil
}

// GetCharge fetches the current state of a payment intent.
func (g *StripeGateway) GetCharge(ctx context.Context, chargeID string) (*entity.Charge, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(chargeID, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	return &entity.Charge{
		ID:     pi.ID,
		Status: string(pi.Status),
		Amount: FromCents(pi.Amount),
	}, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, chargeID string, amount decimal.Decimal) (*entity.Refund, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(chargeID),
		Amount:        stripe.Int64(ToCents(amount)),
	}
	params.Context = ctx

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	return &entity.Refund{
		ID:     refund.ID,
		Status: string(refund.Status),
		Amount: FromCents(refund.Amount),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps payment intent
// events. Other event types yield nil, nil.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*entity.PaymentEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}
	return paymentEventFrom(event.ID, event.Type, event.Data.Raw)
}

func paymentEventFrom(eventID, eventType string, raw json.RawMessage) (*entity.PaymentEvent, error) {
	var kind entity.PaymentEventType
	switch eventType {
	case "payment_intent.succeeded":
		kind = entity.PaymentEventSucceeded
	case "payment_intent.payment_failed":
		kind = entity.PaymentEventFailed
	case "payment_intent.canceled":
		kind = entity.PaymentEventCanceled
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	event := &entity.PaymentEvent{
		ID:       eventID,
		Type:     kind,
		ChargeID: pi.ID,
		Metadata: pi.Metadata,
	}
	switch {
	case pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "":
		event.FailureReason = pi.LastPaymentError.Msg
	case kind == entity.PaymentEventCanceled:
		event.FailureReason = "payment canceled"
		if pi.CancellationReason != "" {
			event.FailureReason += ": " + string(pi.CancellationReason)
		}
	case kind == entity.PaymentEventFailed:
		event.FailureReason = "payment failed"
	}
	return event, nil
}
