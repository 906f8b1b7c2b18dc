package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	repository "github.com/schatha/stamford-parking-system-sub001/internal/database/postgres"
	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/pricing"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/restriction"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultPendingGrace = 10 * time.Minute
	defaultListLimit    = 50
	publishTimeout      = 5 * time.Second
)

type SessionOptions struct {
	// PendingGrace is how long an unpaid PENDING session blocks its vehicle.
	PendingGrace time.Duration
	ListLimit    int
}

type sessionService struct {
	sessionRepo     repository.SessionRepository
	zoneRepo        repository.ZoneRepository
	vehicleRepo     repository.VehicleRepository
	transactionRepo repository.TransactionRepository
	calculator      *pricing.Calculator
	evaluator       *restriction.Evaluator
	gateway         PaymentGateway
	publisher       EventPublisher
	pendingGrace    time.Duration
	listLimit       int
	now             func() time.Time
}

func NewSessionService(
	sessionRepo repository.SessionRepository,
	zoneRepo repository.ZoneRepository,
	vehicleRepo repository.VehicleRepository,
	transactionRepo repository.TransactionRepository,
	calculator *pricing.Calculator,
	evaluator *restriction.Evaluator,
	gateway PaymentGateway,
	publisher EventPublisher,
	opts SessionOptions,
) SessionService {
	if opts.PendingGrace <= 0 {
		opts.PendingGrace = defaultPendingGrace
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = defaultListLimit
	}
	return &sessionService{
		sessionRepo:     sessionRepo,
		zoneRepo:        zoneRepo,
		vehicleRepo:     vehicleRepo,
		transactionRepo: transactionRepo,
		calculator:      calculator,
		evaluator:       evaluator,
		gateway:         gateway,
		publisher:       publisher,
		pendingGrace:    opts.PendingGrace,
		listLimit:       opts.ListLimit,
		now:             time.Now,
	}
}

// CreateSession validates the request, settles any open session of the
// vehicle, persists a PENDING session and opens a charge for its total.
func (s *sessionService) CreateSession(ctx context.Context, userID int64, req *CreateSessionRequest) (*CreateSessionResult, error) {
	if req.VehicleID <= 0 {
		return nil, &entity.ValidationError{Field: "vehicle_id", Message: "is required"}
	}
	if err := validateHours("duration_hours", req.DurationHours); err != nil {
		return nil, err
	}

	vehicle, err := s.vehicleRepo.GetByIDAndOwner(ctx, req.VehicleID, userID)
	if errors.Is(err, entity.ErrVehicleNotFound) {
		return nil, &entity.NotFoundError{Resource: "vehicle", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}

	zone, err := findZone(ctx, s.zoneRepo, req.ZoneNumber)
	if err != nil {
		return nil, err
	}
	if !zone.IsActive {
		return nil, &entity.ValidationError{Field: "zone_number", Message: entity.ErrZoneInactive.Error()}
	}
	if req.DurationHours.GreaterThan(zone.MaxDurationHours) {
		return nil, &entity.LimitExceededError{MaxHours: zone.MaxDurationHours, Remaining: zone.MaxDurationHours}
	}

	now := s.now()
	if err := s.settleOpenSession(ctx, vehicle.ID, now); err != nil {
		return nil, err
	}

	check := s.evaluator.Check(zone.Restrictions, now, entity.HoursToDuration(req.DurationHours))
	if !check.CanPark {
		return nil, &entity.RestrictionError{Restrictions: check.Restrictions}
	}

	cost, err := s.calculator.Calculate(s.calculator.RateForZone(zone), req.DurationHours)
	if err != nil {
		return nil, fmt.Errorf("calculate cost: %w", err)
	}

	session := &entity.ParkingSession{
		ID:            uuid.New(),
		UserID:        userID,
		VehicleID:     vehicle.ID,
		ZoneID:        zone.ID,
		DurationHours: req.DurationHours,
		CostBreakdown: cost,
		Status:        entity.SessionStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	session.Schedule(now)

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		var conflict *entity.ConflictError
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	charge, err := s.gateway.CreateCharge(ctx, cost.TotalCost, chargeMetadata(session, "create", "create-"+session.ID.String()))
	if err != nil {
		if cancelErr := s.cancelPending(ctx, session, now, "payment could not be initiated"); cancelErr != nil {
			logrus.WithError(cancelErr).WithField("session_id", session.ID).Error("Failed to cancel session after charge failure")
		}
		return nil, &entity.PaymentError{Op: "create charge", Err: err}
	}

	s.recordTransaction(ctx, &entity.Transaction{
		ID:          uuid.New(),
		SessionID:   session.ID,
		UserID:      userID,
		Kind:        entity.TransactionKindCharge,
		Amount:      cost.TotalCost,
		Status:      entity.TransactionStatusPending,
		ExternalRef: charge.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"vehicle_id": session.VehicleID,
		"zone":       zone.ZoneNumber,
		"total":      cost.TotalCost.StringFixed(2),
	}).Info("Parking session created")
	s.publish(ctx, entity.SessionEventCreated, session)

	warnings := check.Warnings
	if warnings == nil {
		warnings = []entity.RestrictionWarning{}
	}
	return &CreateSessionResult{
		Session:      session,
		ClientSecret: charge.ClientSecret,
		Warnings:     warnings,
	}, nil
}

// settleOpenSession rejects the request while the vehicle holds an active or
// freshly pending session and cancels a pending one past its grace period.
func (s *sessionService) settleOpenSession(ctx context.Context, vehicleID int64, now time.Time) error {
	existing, err := s.sessionRepo.GetOpenByVehicle(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("get open session: %w", err)
	}
	if existing == nil {
		return nil
	}

	switch existing.Status {
	case entity.SessionStatusActive, entity.SessionStatusExtended:
		return &entity.ConflictError{Message: "vehicle already has an active session"}
	case entity.SessionStatusPending:
		if now.Sub(existing.CreatedAt) < s.pendingGrace {
			return &entity.ConflictError{Message: "pending payment exists for this vehicle"}
		}
		err := s.cancelPending(ctx, existing, now, "superseded by a new session")
		if errors.Is(err, entity.ErrConcurrentUpdate) {
			return &entity.ConflictError{Message: "vehicle session changed concurrently", Err: err}
		}
		return err
	}
	return nil
}

func (s *sessionService) cancelPending(ctx context.Context, session *entity.ParkingSession, now time.Time, reason string) error {
	cancelled := *session
	cancelled.Status = entity.SessionStatusCancelled
	cancelled.UpdatedAt = now

	if err := s.sessionRepo.UpdateIfStatus(ctx, &cancelled, entity.SessionStatusPending); err != nil {
		return err
	}
	*session = cancelled

	s.failPendingCharge(ctx, session.ID, reason)

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"vehicle_id": session.VehicleID,
		"reason":     reason,
	}).Info("Pending parking session cancelled")
	s.publish(ctx, entity.SessionEventCancelled, session)
	return nil
}

// ConfirmPayment activates a session on behalf of its owner. The reference
// must be the session's own pending charge and the gateway must report it
// paid; nothing is written otherwise.
func (s *sessionService) ConfirmPayment(ctx context.Context, userID int64, sessionID uuid.UUID, paymentRef string) (*entity.ParkingSession, error) {
	if paymentRef == "" {
		return nil, &entity.ValidationError{Field: "payment_ref", Message: "is required"}
	}

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionStatusPending {
		return nil, &entity.ConflictError{
			Message: fmt.Sprintf("session is %s, only PENDING sessions can be confirmed", session.Status),
			Err:     entity.ErrInvalidSessionStatus,
		}
	}

	pending, err := s.transactionRepo.GetPendingCharge(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("get pending charge: %w", err)
	}
	if pending == nil || pending.ExternalRef != paymentRef {
		return nil, &entity.ValidationError{Field: "payment_ref", Message: "does not match the session's pending charge"}
	}

	charge, err := s.gateway.GetCharge(ctx, paymentRef)
	if err != nil {
		return nil, &entity.PaymentError{Op: "verify charge", Err: err}
	}
	if charge.Status != entity.ChargeStatusSucceeded {
		return nil, &entity.PaymentError{Op: "verify charge", Err: fmt.Errorf("charge %s is %s", charge.ID, charge.Status)}
	}
	if !charge.Amount.Equal(pending.Amount) {
		return nil, &entity.PaymentError{
			Op:  "verify charge",
			Err: fmt.Errorf("charge %s amount %s does not match %s", charge.ID, charge.Amount, pending.Amount),
		}
	}

	return s.confirm(ctx, session, paymentRef)
}

// confirm activates a PENDING session. The clock restarts at confirmation so
// the driver gets the full paid duration.
func (s *sessionService) confirm(ctx context.Context, session *entity.ParkingSession, paymentRef string) (*entity.ParkingSession, error) {
	if session.Status != entity.SessionStatusPending {
		return nil, &entity.ConflictError{
			Message: fmt.Sprintf("session is %s, only PENDING sessions can be confirmed", session.Status),
			Err:     entity.ErrInvalidSessionStatus,
		}
	}

	now := s.now()
	activated := *session
	activated.Status = entity.SessionStatusActive
	activated.Schedule(now)
	activated.UpdatedAt = now

	if err := s.sessionRepo.UpdateIfStatus(ctx, &activated, entity.SessionStatusPending); err != nil {
		if errors.Is(err, entity.ErrConcurrentUpdate) {
			return nil, &entity.ConflictError{Message: "session was already confirmed or cancelled", Err: err}
		}
		return nil, fmt.Errorf("confirm session: %w", err)
	}

	s.completeCharge(ctx, &activated, paymentRef, now)

	logrus.WithFields(logrus.Fields{
		"session_id":   activated.ID,
		"vehicle_id":   activated.VehicleID,
		"scheduled_end": activated.ScheduledEndTime,
	}).Info("Parking session activated")
	s.publish(ctx, entity.SessionEventActivated, &activated)

	return &activated, nil
}

// completeCharge marks the session's charge COMPLETED, creating the record
// when the charge was never stored.
func (s *sessionService) completeCharge(ctx context.Context, session *entity.ParkingSession, paymentRef string, now time.Time) {
	var charge *entity.Transaction
	if paymentRef != "" {
		tx, err := s.transactionRepo.GetByExternalRef(ctx, paymentRef)
		if err == nil && tx.SessionID == session.ID {
			charge = tx
		}
	}
	if charge == nil {
		tx, err := s.transactionRepo.GetPendingCharge(ctx, session.ID)
		if err != nil {
			logrus.WithError(err).WithField("session_id", session.ID).Error("Failed to load pending charge")
		}
		charge = tx
	}

	if charge != nil {
		if charge.Status == entity.TransactionStatusCompleted {
			return
		}
		// A stored gateway reference is never replaced.
		ref := paymentRef
		if charge.ExternalRef != "" {
			if paymentRef != "" && paymentRef != charge.ExternalRef {
				logrus.WithFields(logrus.Fields{
					"transaction_id": charge.ID,
					"charge_id":      charge.ExternalRef,
					"payment_ref":    paymentRef,
				}).Warn("Payment reference differs from stored charge, keeping stored reference")
			}
			ref = ""
		}
		if err := s.transactionRepo.UpdateStatus(ctx, charge.ID, entity.TransactionStatusCompleted, ref, ""); err != nil {
			logrus.WithError(err).WithField("transaction_id", charge.ID).Error("Failed to complete charge")
		}
		return
	}

	s.recordTransaction(ctx, &entity.Transaction{
		ID:          uuid.New(),
		SessionID:   session.ID,
		UserID:      session.UserID,
		Kind:        entity.TransactionKindCharge,
		Amount:      session.TotalCost,
		Status:      entity.TransactionStatusCompleted,
		ExternalRef: paymentRef,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// ExtendSession adds time from the current scheduled end, so unused time is
// kept. The extra cost is charged off-session before anything is written; a
// failed charge leaves the session untouched.
func (s *sessionService) ExtendSession(ctx context.Context, userID int64, sessionID uuid.UUID, additionalHours decimal.Decimal) (*ExtendSessionResult, error) {
	if err := validateHours("additional_hours", additionalHours); err != nil {
		return nil, err
	}

	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionStatusActive {
		return nil, &entity.ConflictError{
			Message: fmt.Sprintf("session is %s, only ACTIVE sessions can be extended", session.Status),
			Err:     entity.ErrInvalidSessionStatus,
		}
	}

	now := s.now()
	if !now.Before(session.ScheduledEndTime) {
		return nil, &entity.ConflictError{Message: "session has already ended", Err: entity.ErrInvalidSessionStatus}
	}

	zone, err := s.zoneRepo.GetByID(ctx, session.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}

	newDuration := session.DurationHours.Add(additionalHours)
	if newDuration.GreaterThan(zone.MaxDurationHours) {
		return nil, &entity.LimitExceededError{
			MaxHours:  zone.MaxDurationHours,
			Remaining: decimal.Max(decimal.Zero, zone.MaxDurationHours.Sub(session.DurationHours)),
		}
	}

	incremental, err := s.calculator.Calculate(s.calculator.RateForZone(zone), additionalHours)
	if err != nil {
		return nil, fmt.Errorf("calculate extension cost: %w", err)
	}

	paid, err := s.transactionRepo.GetCompletedCharges(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("get completed charges: %w", err)
	}
	if len(paid) == 0 {
		return nil, &entity.PaymentError{Op: "charge extension", Err: errors.New("session has no completed charge")}
	}

	idempotencyKey := "extend-" + session.ID.String() + "-" + newDuration.String()
	charge, err := s.gateway.ChargeOffSession(ctx, paid[0].ExternalRef, incremental.TotalCost,
		chargeMetadata(session, "extend", idempotencyKey))
	if err != nil {
		return nil, &entity.PaymentError{Op: "charge extension", Err: err}
	}

	extended := *session
	extended.DurationHours = newDuration
	extended.CostBreakdown = session.CostBreakdown.Add(incremental)
	extended.Status = entity.SessionStatusExtended
	extended.UpdatedAt = now
	// Same start, longer duration: the scheduled end moves by exactly additionalHours.
	extended.Schedule(session.StartTime)

	if err := s.sessionRepo.UpdateIfStatus(ctx, &extended, entity.SessionStatusActive); err != nil {
		s.reverseCharge(ctx, session, charge, incremental.TotalCost)
		if errors.Is(err, entity.ErrConcurrentUpdate) {
			return nil, &entity.ConflictError{Message: "session changed while extending", Err: err}
		}
		return nil, fmt.Errorf("extend session: %w", err)
	}

	s.recordTransaction(ctx, &entity.Transaction{
		ID:          uuid.New(),
		SessionID:   session.ID,
		UserID:      session.UserID,
		Kind:        entity.TransactionKindCharge,
		Amount:      incremental.TotalCost,
		Status:      entity.TransactionStatusCompleted,
		ExternalRef: charge.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	logrus.WithFields(logrus.Fields{
		"session_id":       extended.ID,
		"additional_hours": additionalHours.String(),
		"scheduled_end":    extended.ScheduledEndTime,
	}).Info("Parking session extended")
	s.publish(ctx, entity.SessionEventExtended, &extended)

	return &ExtendSessionResult{Session: &extended, IncrementalCost: incremental}, nil
}

// reverseCharge refunds an extension charge whose session update lost a race.
func (s *sessionService) reverseCharge(ctx context.Context, session *entity.ParkingSession, charge *entity.Charge, amount decimal.Decimal) {
	if _, err := s.gateway.CreateRefund(ctx, charge.ID, amount); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": session.ID,
			"charge_id":  charge.ID,
		}).Error("Failed to reverse extension charge")
	}
}

// TerminateSession completes the session first and refunds afterwards. A
// failed refund never undoes the termination; it is reported on the result.
func (s *sessionService) TerminateSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*TerminateSessionResult, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionStatusActive && session.Status != entity.SessionStatusExtended {
		return nil, &entity.ConflictError{
			Message: fmt.Sprintf("session is %s, only ACTIVE or EXTENDED sessions can be terminated", session.Status),
			Err:     entity.ErrInvalidSessionStatus,
		}
	}

	now := s.now()
	if !now.Before(session.ScheduledEndTime) {
		return nil, &entity.ConflictError{Message: "session has already ended", Err: entity.ErrInvalidSessionStatus}
	}

	zone, err := s.zoneRepo.GetByID(ctx, session.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}

	used := now.Sub(session.StartTime)
	if used < 0 {
		used = 0
	}
	usedHours := entity.DurationToHours(used)
	reportedHours := usedHours.Round(4)

	refundDue, err := s.calculator.Refund(s.calculator.RateForZone(zone), session.CostBreakdown, usedHours)
	if err != nil {
		return nil, fmt.Errorf("calculate refund: %w", err)
	}

	completed := *session
	completed.Status = entity.SessionStatusCompleted
	completed.EndTime = &now
	completed.ActualDurationHours = decimal.NewNullDecimal(reportedHours)
	completed.UpdatedAt = now

	if err := s.sessionRepo.UpdateIfStatus(ctx, &completed, entity.SessionStatusActive, entity.SessionStatusExtended); err != nil {
		if errors.Is(err, entity.ErrConcurrentUpdate) {
			return nil, &entity.ConflictError{Message: "session changed while terminating", Err: err}
		}
		return nil, fmt.Errorf("terminate session: %w", err)
	}

	result := &TerminateSessionResult{
		Session:       &completed,
		TimeUsedHours: reportedHours,
		RefundDue:     refundDue,
		RefundedTotal: decimal.Zero,
	}

	if refundDue.IsPositive() {
		refunded, err := s.refund(ctx, &completed, refundDue, now)
		result.RefundedTotal = refunded
		if err != nil {
			result.RefundError = &entity.RefundError{Amount: refundDue.Sub(refunded), Err: err}
			logrus.WithError(err).WithFields(logrus.Fields{
				"session_id": completed.ID,
				"refund_due": refundDue.StringFixed(2),
				"refunded":   refunded.StringFixed(2),
			}).Warn("Session terminated but refund failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"session_id": completed.ID,
		"time_used":  reportedHours.String(),
		"refund":     result.RefundedTotal.StringFixed(2),
	}).Info("Parking session terminated early")
	s.publish(ctx, entity.SessionEventCompleted, &completed)

	return result, nil
}

// refund returns amount against the session's completed charges, original
// charge first, and reports how much actually went back.
func (s *sessionService) refund(ctx context.Context, session *entity.ParkingSession, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	charges, err := s.transactionRepo.GetCompletedCharges(ctx, session.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get completed charges: %w", err)
	}
	if len(charges) == 0 {
		return decimal.Zero, errors.New("session has no completed charge to refund")
	}

	refunded := decimal.Zero
	remaining := amount
	for _, charge := range charges {
		if !remaining.IsPositive() {
			break
		}
		part := decimal.Min(remaining, charge.Amount)

		res, err := s.gateway.CreateRefund(ctx, charge.ExternalRef, part)
		if err != nil {
			s.recordRefund(ctx, session, part, "", entity.TransactionStatusFailed, err.Error(), now)
			return refunded, err
		}
		s.recordRefund(ctx, session, part, res.ID, entity.TransactionStatusCompleted, "", now)

		if part.Equal(charge.Amount) {
			if err := s.transactionRepo.UpdateStatus(ctx, charge.ID, entity.TransactionStatusRefunded, "", ""); err != nil {
				logrus.WithError(err).WithField("transaction_id", charge.ID).Error("Failed to mark charge refunded")
			}
		}

		refunded = refunded.Add(part)
		remaining = remaining.Sub(part)
	}

	if remaining.IsPositive() {
		return refunded, fmt.Errorf("refund exceeds completed charges by %s", remaining.StringFixed(2))
	}
	return refunded, nil
}

func (s *sessionService) recordRefund(ctx context.Context, session *entity.ParkingSession, amount decimal.Decimal, ref string, status entity.TransactionStatus, reason string, now time.Time) {
	s.recordTransaction(ctx, &entity.Transaction{
		ID:            uuid.New(),
		SessionID:     session.ID,
		UserID:        session.UserID,
		Kind:          entity.TransactionKindRefund,
		Amount:        amount.Neg(),
		Status:        status,
		ExternalRef:   ref,
		FailureReason: reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// ExpireSessions moves every active session past its scheduled end to EXPIRED.
func (s *sessionService) ExpireSessions(ctx context.Context) (int, error) {
	now := s.now()

	expired, err := s.sessionRepo.ExpireOverdue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}

	for _, session := range expired {
		logrus.WithFields(logrus.Fields{
			"session_id": session.ID,
			"vehicle_id": session.VehicleID,
		}).Debug("Parking session expired")
		s.publish(ctx, entity.SessionEventExpired, session)
	}
	return len(expired), nil
}

// ReapStalePending cancels every PENDING session older than the grace period.
func (s *sessionService) ReapStalePending(ctx context.Context) (int, error) {
	now := s.now()

	cancelled, err := s.sessionRepo.CancelStalePending(ctx, now.Add(-s.pendingGrace), now)
	if err != nil {
		return 0, fmt.Errorf("cancel stale pending sessions: %w", err)
	}

	for _, session := range cancelled {
		s.failPendingCharge(ctx, session.ID, "payment not completed in time")
		s.publish(ctx, entity.SessionEventCancelled, session)
	}
	return len(cancelled), nil
}

// ApplyPaymentEvent is idempotent: events for charges already settled are
// no-ops.
func (s *sessionService) ApplyPaymentEvent(ctx context.Context, event *entity.PaymentEvent) error {
	if event == nil || event.ChargeID == "" {
		return &entity.ValidationError{Field: "charge_id", Message: "is required"}
	}

	tx, err := s.transactionRepo.GetByExternalRef(ctx, event.ChargeID)
	if errors.Is(err, entity.ErrTransactionNotFound) {
		logrus.WithField("charge_id", event.ChargeID).Warn("Payment event for unknown charge ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if tx.Kind != entity.TransactionKindCharge {
		return nil
	}

	session, err := s.sessionRepo.GetByID(ctx, tx.SessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"charge_id":  event.ChargeID,
		"event":      event.Type,
	})

	switch event.Type {
	case entity.PaymentEventSucceeded:
		switch session.Status {
		case entity.SessionStatusPending:
			_, err := s.confirm(ctx, session, event.ChargeID)
			var conflict *entity.ConflictError
			if errors.As(err, &conflict) {
				logger.Info("Session already settled, payment event ignored")
				return nil
			}
			return err
		case entity.SessionStatusCancelled:
			// Paid after the session was cancelled: give the money back.
			if tx.Status == entity.TransactionStatusCompleted || tx.Status == entity.TransactionStatusRefunded {
				return nil
			}
			if err := s.transactionRepo.UpdateStatus(ctx, tx.ID, entity.TransactionStatusCompleted, "", ""); err != nil {
				return fmt.Errorf("complete late charge: %w", err)
			}
			logger.Warn("Payment succeeded for a cancelled session, refunding")
			if _, err := s.refund(ctx, session, tx.Amount, s.now()); err != nil {
				logger.WithError(err).Error("Failed to refund late payment")
			}
			return nil
		}
		if tx.Status == entity.TransactionStatusPending {
			return s.transactionRepo.UpdateStatus(ctx, tx.ID, entity.TransactionStatusCompleted, "", "")
		}
		return nil

	case entity.PaymentEventFailed, entity.PaymentEventCanceled:
		reason := event.FailureReason
		if reason == "" {
			reason = "payment " + string(event.Type)
		}
		if tx.Status == entity.TransactionStatusPending {
			if err := s.transactionRepo.UpdateStatus(ctx, tx.ID, entity.TransactionStatusFailed, "", reason); err != nil {
				return fmt.Errorf("fail charge: %w", err)
			}
		}
		if session.Status != entity.SessionStatusPending {
			return nil
		}
		err := s.cancelPending(ctx, session, s.now(), reason)
		if errors.Is(err, entity.ErrConcurrentUpdate) {
			logger.Info("Session already settled, payment event ignored")
			return nil
		}
		return err
	}

	return &entity.ValidationError{Field: "type", Message: "unsupported payment event " + string(event.Type)}
}

func (s *sessionService) GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*SessionDetails, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	zone, err := s.zoneRepo.GetByID(ctx, session.ZoneID)
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}

	txs, err := s.transactionRepo.GetBySessionID(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}
	if txs == nil {
		txs = []*entity.Transaction{}
	}

	details := &SessionDetails{Session: session, Zone: zone, Transactions: txs}
	if session.Status == entity.SessionStatusActive || session.Status == entity.SessionStatusExtended {
		if left := session.ScheduledEndTime.Sub(s.now()); left > 0 {
			details.TimeLeft = left.Round(time.Second).String()
		}
	}
	return details, nil
}

func (s *sessionService) GetUserSessions(ctx context.Context, userID int64, limit int) ([]*entity.ParkingSession, error) {
	if limit <= 0 || limit > s.listLimit {
		limit = s.listLimit
	}

	sessions, err := s.sessionRepo.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get user sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*entity.ParkingSession{}
	}
	return sessions, nil
}

func (s *sessionService) ListSessions(ctx context.Context, filter entity.SessionFilter) ([]*entity.ParkingSession, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &entity.ValidationError{Field: "status", Message: "unknown session status " + string(filter.Status)}
	}
	if filter.Limit <= 0 || filter.Limit > s.listLimit {
		filter.Limit = s.listLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	sessions, err := s.sessionRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*entity.ParkingSession{}
	}
	return sessions, nil
}

// ownedSession hides sessions of other users behind NotFoundError.
func (s *sessionService) ownedSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*entity.ParkingSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if errors.Is(err, entity.ErrSessionNotFound) {
		return nil, &entity.NotFoundError{Resource: "session", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !session.IsOwnedBy(userID) {
		return nil, &entity.NotFoundError{Resource: "session", Err: entity.ErrSessionNotFound}
	}
	return session, nil
}

func (s *sessionService) failPendingCharge(ctx context.Context, sessionID uuid.UUID, reason string) {
	tx, err := s.transactionRepo.GetPendingCharge(ctx, sessionID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to load pending charge")
		return
	}
	if tx == nil {
		return
	}
	if err := s.transactionRepo.UpdateStatus(ctx, tx.ID, entity.TransactionStatusFailed, "", reason); err != nil {
		logrus.WithError(err).WithField("transaction_id", tx.ID).Error("Failed to mark charge failed")
	}
}

// recordTransaction never fails the caller; session state is authoritative.
func (s *sessionService) recordTransaction(ctx context.Context, tx *entity.Transaction) {
	if err := s.transactionRepo.Create(ctx, tx); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": tx.SessionID,
			"kind":       tx.Kind,
			"status":     tx.Status,
			"amount":     tx.Amount.StringFixed(2),
		}).Error("Failed to record transaction")
	}
}

func (s *sessionService) publish(ctx context.Context, eventType entity.SessionEventType, session *entity.ParkingSession) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, entity.NewSessionEvent(eventType, session, s.now())); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": session.ID,
			"event":      eventType,
		}).Warn("Failed to publish session event")
	}
}

func chargeMetadata(session *entity.ParkingSession, purpose, idempotencyKey string) map[string]string {
	return map[string]string{
		"session_id":      session.ID.String(),
		"user_id":         strconv.FormatInt(session.UserID, 10),
		"vehicle_id":      strconv.FormatInt(session.VehicleID, 10),
		"zone_id":         strconv.FormatInt(session.ZoneID, 10),
		"purpose":         purpose,
		"idempotency_key": idempotencyKey,
	}
}
