package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

type ZoneRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.ParkingZone, error)
	GetByNumber(ctx context.Context, zoneNumber string) (*entity.ParkingZone, error)
	GetAll(ctx context.Context, activeOnly bool) ([]*entity.ParkingZone, error)
}

type VehicleRepository interface {
	// GetByIDAndOwner returns entity.ErrVehicleNotFound when the vehicle
	// does not exist or belongs to another user.
	GetByIDAndOwner(ctx context.Context, id, userID int64) (*entity.Vehicle, error)
}

type SessionRepository interface {
	// Create fails with *entity.ConflictError when the vehicle already holds
	// a non-terminal session.
	Create(ctx context.Context, session *entity.ParkingSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ParkingSession, error)
	// GetOpenByVehicle returns nil, nil when the vehicle has no
	// non-terminal session.
	GetOpenByVehicle(ctx context.Context, vehicleID int64) (*entity.ParkingSession, error)
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*entity.ParkingSession, error)
	List(ctx context.Context, filter entity.SessionFilter) ([]*entity.ParkingSession, error)

	// UpdateIfStatus writes every mutable field of session only while the
	// stored status is one of expected. It returns entity.ErrConcurrentUpdate
	// when no row matched.
	UpdateIfStatus(ctx context.Context, session *entity.ParkingSession, expected ...entity.SessionStatus) error

	// Batch transitions, each a single conditional statement.
	ExpireOverdue(ctx context.Context, now time.Time) ([]*entity.ParkingSession, error)
	CancelStalePending(ctx context.Context, createdBefore, now time.Time) ([]*entity.ParkingSession, error)
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	GetByExternalRef(ctx context.Context, externalRef string) (*entity.Transaction, error)
	// GetPendingCharge returns nil, nil when the session has no pending charge.
	GetPendingCharge(ctx context.Context, sessionID uuid.UUID) (*entity.Transaction, error)
	// GetCompletedCharges returns completed charges oldest first.
	GetCompletedCharges(ctx context.Context, sessionID uuid.UUID) ([]*entity.Transaction, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*entity.Transaction, error)
	// UpdateStatus keeps the stored external reference when externalRef is empty.
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.TransactionStatus, externalRef, reason string) error
}
