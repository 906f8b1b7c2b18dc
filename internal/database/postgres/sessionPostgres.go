package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

const uniqueViolation = "23505"

type sessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) SessionRepository {
	return &sessionRepository{db: db}
}

const sessionColumns = `
	id, user_id, vehicle_id, zone_id, start_time, scheduled_end_time, end_time,
	duration_hours, actual_duration_hours, base_cost, tax_amount, processing_fee,
	total_cost, status, extended_from, created_at, updated_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*entity.ParkingSession, error) {
	var s entity.ParkingSession
	var endTime sql.NullTime
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.VehicleID,
		&s.ZoneID,
		&s.StartTime,
		&s.ScheduledEndTime,
		&endTime,
		&s.DurationHours,
		&s.ActualDurationHours,
		&s.BaseCost,
		&s.TaxAmount,
		&s.ProcessingFee,
		&s.TotalCost,
		&s.Status,
		&s.ExtendedFrom,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		s.EndTime = &endTime.Time
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*entity.ParkingSession, error) {
	defer rows.Close()

	var sessions []*entity.ParkingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %v", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %v", err)
	}
	return sessions, nil
}

func statusList(statuses []entity.SessionStatus) interface{} {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return pq.Array(values)
}

// Create inserts a new session. The partial unique index on vehicle_id makes
// a second non-terminal session for the same vehicle fail atomically.
func (r *sessionRepository) Create(ctx context.Context, s *entity.ParkingSession) error {
	query := `
		INSERT INTO parking_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.VehicleID,
		s.ZoneID,
		s.StartTime,
		s.ScheduledEndTime,
		s.EndTime,
		s.DurationHours,
		s.ActualDurationHours,
		s.BaseCost,
		s.TaxAmount,
		s.ProcessingFee,
		s.TotalCost,
		s.Status,
		s.ExtendedFrom,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return &entity.ConflictError{Message: "vehicle already has an open session", Err: err}
		}
		return fmt.Errorf("failed to create session: %v", err)
	}
	return nil
}

// GetByID retrieves a session by its ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.ParkingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM parking_sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}
	return s, nil
}

func (r *sessionRepository) GetOpenByVehicle(ctx context.Context, vehicleID int64) (*entity.ParkingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE vehicle_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, vehicleID, statusList(entity.OpenSessionStatuses)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session by vehicle: %v", err)
	}
	return s, nil
}

func (r *sessionRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*entity.ParkingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM parking_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions by user: %v", err)
	}
	return scanSessions(rows)
}

// List returns sessions matching every non-zero field of filter
func (r *sessionRepository) List(ctx context.Context, filter entity.SessionFilter) ([]*entity.ParkingSession, error) {
	var conditions []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.ZoneID != 0 {
		add("zone_id = $%d", filter.ZoneID)
	}
	if filter.VehicleID != 0 {
		add("vehicle_id = $%d", filter.VehicleID)
	}
	if filter.UserID != 0 {
		add("user_id = $%d", filter.UserID)
	}

	query := `SELECT ` + sessionColumns + ` FROM parking_sessions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %v", err)
	}
	return scanSessions(rows)
}

// UpdateIfStatus is a compare-and-swap on status. Concurrent transitions of
// the same session cannot both succeed.
func (r *sessionRepository) UpdateIfStatus(ctx context.Context, s *entity.ParkingSession, expected ...entity.SessionStatus) error {
	query := `
		UPDATE parking_sessions
		SET start_time = $3,
			scheduled_end_time = $4,
			end_time = $5,
			duration_hours = $6,
			actual_duration_hours = $7,
			base_cost = $8,
			tax_amount = $9,
			processing_fee = $10,
			total_cost = $11,
			status = $12,
			updated_at = $13
		WHERE id = $1 AND status = ANY($2)
	`

	result, err := r.db.ExecContext(ctx, query,
		s.ID,
		statusList(expected),
		s.StartTime,
		s.ScheduledEndTime,
		s.EndTime,
		s.DurationHours,
		s.ActualDurationHours,
		s.BaseCost,
		s.TaxAmount,
		s.ProcessingFee,
		s.TotalCost,
		s.Status,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return entity.ErrConcurrentUpdate
	}
	return nil
}

// ExpireOverdue moves every active session past its scheduled end to
// EXPIRED. Rows already moved by a user transition no longer match, so
// running it again changes nothing.
func (r *sessionRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]*entity.ParkingSession, error) {
	query := `
		UPDATE parking_sessions
		SET status = $1, end_time = $2, updated_at = $2
		WHERE status = ANY($3) AND scheduled_end_time < $2
		RETURNING ` + sessionColumns

	rows, err := r.db.QueryContext(ctx, query,
		entity.SessionStatusExpired,
		now,
		statusList([]entity.SessionStatus{entity.SessionStatusActive, entity.SessionStatusExtended}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire sessions: %v", err)
	}
	return scanSessions(rows)
}

func (r *sessionRepository) CancelStalePending(ctx context.Context, createdBefore, now time.Time) ([]*entity.ParkingSession, error) {
	query := `
		UPDATE parking_sessions
		SET status = $1, updated_at = $2
		WHERE status = $3 AND created_at < $4
		RETURNING ` + sessionColumns

	rows, err := r.db.QueryContext(ctx, query,
		entity.SessionStatusCancelled,
		now,
		entity.SessionStatusPending,
		createdBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stale pending sessions: %v", err)
	}
	return scanSessions(rows)
}
