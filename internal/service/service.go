package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/shopspring/decimal"
)

// ZoneService answers read-only questions used to preview a session.
type ZoneService interface {
	GetZone(ctx context.Context, zoneNumber string) (*entity.ParkingZone, error)
	ListZones(ctx context.Context) ([]*entity.ParkingZone, error)
	CheckRestrictions(ctx context.Context, zoneNumber string, start time.Time, durationHours decimal.Decimal) (*entity.RestrictionCheck, error)
	EstimateCost(ctx context.Context, zoneNumber string, durationHours decimal.Decimal) (*CostEstimate, error)
	NextAvailableTime(ctx context.Context, zoneNumber string, from time.Time) (time.Time, error)
}

// SessionService drives the parking session state machine
// PENDING -> ACTIVE -> EXTENDED -> COMPLETED / EXPIRED / CANCELLED.
type SessionService interface {
	CreateSession(ctx context.Context, userID int64, req *CreateSessionRequest) (*CreateSessionResult, error)
	ConfirmPayment(ctx context.Context, userID int64, sessionID uuid.UUID, paymentRef string) (*entity.ParkingSession, error)
	ExtendSession(ctx context.Context, userID int64, sessionID uuid.UUID, additionalHours decimal.Decimal) (*ExtendSessionResult, error)
	TerminateSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*TerminateSessionResult, error)

	// Maintenance, safe to run concurrently with itself and user transitions
	ExpireSessions(ctx context.Context) (int, error)
	ReapStalePending(ctx context.Context) (int, error)

	// ApplyPaymentEvent maps a gateway webhook onto transactions and sessions.
	ApplyPaymentEvent(ctx context.Context, event *entity.PaymentEvent) error

	GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*SessionDetails, error)
	GetUserSessions(ctx context.Context, userID int64, limit int) ([]*entity.ParkingSession, error)
	ListSessions(ctx context.Context, filter entity.SessionFilter) ([]*entity.ParkingSession, error)
}

type PaymentService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// PaymentGateway is the external charge and refund processor.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (*entity.Charge, error)
	ChargeOffSession(ctx context.Context, originalChargeID string, amount decimal.Decimal, metadata map[string]string) (*entity.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*entity.Charge, error)
	CreateRefund(ctx context.Context, chargeID string, amount decimal.Decimal) (*entity.Refund, error)
	ParseWebhook(payload []byte, signature string) (*entity.PaymentEvent, error)
}

// EventPublisher receives lifecycle events after they are persisted.
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.SessionEvent) error
}

type CreateSessionRequest struct {
	VehicleID     int64           `json:"vehicle_id" binding:"required"`
	ZoneNumber    string          `json:"zone_number" binding:"required"`
	DurationHours decimal.Decimal `json:"duration_hours"`
}

type CreateSessionResult struct {
	Session      *entity.ParkingSession      `json:"session"`
	ClientSecret string                      `json:"client_secret"`
	Warnings     []entity.RestrictionWarning `json:"warnings"`
}

type ExtendSessionResult struct {
	Session         *entity.ParkingSession `json:"session"`
	IncrementalCost entity.CostBreakdown   `json:"incremental_cost"`
}

type TerminateSessionResult struct {
	Session       *entity.ParkingSession `json:"session"`
	TimeUsedHours decimal.Decimal        `json:"time_used_hours"`
	RefundDue     decimal.Decimal        `json:"refund_due"`
	RefundedTotal decimal.Decimal        `json:"refunded_total"`
	// RefundError is set when the session completed but the refund did not.
	RefundError *entity.RefundError `json:"-"`
}

type SessionDetails struct {
	Session      *entity.ParkingSession `json:"session"`
	Zone         *entity.ParkingZone    `json:"zone"`
	Transactions []*entity.Transaction  `json:"transactions"`
	TimeLeft     string                 `json:"time_left,omitempty"`
}

type CostEstimate struct {
	ZoneNumber    string               `json:"zone_number"`
	HourlyRate    decimal.Decimal      `json:"hourly_rate"`
	DurationHours decimal.Decimal      `json:"duration_hours"`
	Cost          entity.CostBreakdown `json:"cost"`
}
