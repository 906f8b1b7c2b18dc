package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "PENDING"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusExtended  SessionStatus = "EXTENDED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// OpenSessionStatuses are the non-terminal statuses. A vehicle holds at most
// one session in any of them.
var OpenSessionStatuses = []SessionStatus{
	SessionStatusPending,
	SessionStatusActive,
	SessionStatusExtended,
}

func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusExpired, SessionStatusCancelled:
		return true
	}
	return false
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusActive, SessionStatusExtended,
		SessionStatusCompleted, SessionStatusExpired, SessionStatusCancelled:
		return true
	}
	return false
}

type ParkingSession struct {
	ID                  uuid.UUID           `json:"id" db:"id"`
	UserID              int64               `json:"user_id" db:"user_id"`
	VehicleID           int64               `json:"vehicle_id" db:"vehicle_id"`
	ZoneID              int64               `json:"zone_id" db:"zone_id"`
	StartTime           time.Time           `json:"start_time" db:"start_time"`
	ScheduledEndTime    time.Time           `json:"scheduled_end_time" db:"scheduled_end_time"`
	EndTime             *time.Time          `json:"end_time,omitempty" db:"end_time"`
	DurationHours       decimal.Decimal     `json:"duration_hours" db:"duration_hours"`
	ActualDurationHours decimal.NullDecimal `json:"actual_duration_hours" db:"actual_duration_hours"`
	CostBreakdown
	Status       SessionStatus `json:"status" db:"status"`
	ExtendedFrom uuid.NullUUID `json:"extended_from" db:"extended_from"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// Schedule sets StartTime to start and recomputes ScheduledEndTime from the
// cumulative duration.
func (s *ParkingSession) Schedule(start time.Time) {
	s.StartTime = start
	s.ScheduledEndTime = start.Add(HoursToDuration(s.DurationHours))
}

func (s *ParkingSession) IsOwnedBy(userID int64) bool {
	return s.UserID == userID
}

type SessionFilter struct {
	Status    SessionStatus
	ZoneID    int64
	VehicleID int64
	UserID    int64
	Limit     int
	Offset    int
}

type SessionEventType string

const (
	SessionEventCreated   SessionEventType = "session.created"
	SessionEventActivated SessionEventType = "session.activated"
	SessionEventExtended  SessionEventType = "session.extended"
	SessionEventCompleted SessionEventType = "session.completed"
	SessionEventExpired   SessionEventType = "session.expired"
	SessionEventCancelled SessionEventType = "session.cancelled"
)

// SessionEvent is published after a lifecycle transition has been persisted.
type SessionEvent struct {
	ID               uuid.UUID        `json:"id"`
	Type             SessionEventType `json:"type"`
	SessionID        uuid.UUID        `json:"session_id"`
	UserID           int64            `json:"user_id"`
	VehicleID        int64            `json:"vehicle_id"`
	ZoneID           int64            `json:"zone_id"`
	Status           SessionStatus    `json:"status"`
	ScheduledEndTime time.Time        `json:"scheduled_end_time"`
	TotalCost        decimal.Decimal  `json:"total_cost"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

func NewSessionEvent(eventType SessionEventType, s *ParkingSession, at time.Time) *SessionEvent {
	return &SessionEvent{
		ID:               uuid.New(),
		Type:             eventType,
		SessionID:        s.ID,
		UserID:           s.UserID,
		VehicleID:        s.VehicleID,
		ZoneID:           s.ZoneID,
		Status:           s.Status,
		ScheduledEndTime: s.ScheduledEndTime,
		TotalCost:        s.TotalCost,
		OccurredAt:       at,
	}
}
