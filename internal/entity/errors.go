package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// Zone errors
	ErrZoneNotFound = errors.New("zone not found")
	ErrZoneInactive = errors.New("zone is not active")

	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrVehicleNotFound      = errors.New("vehicle not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrInvalidSessionStatus = errors.New("invalid session status")

	// Restriction errors
	ErrNoAvailability = errors.New("zone is fully restricted for the next 7 days")

	// General errors
	ErrInvalidInput     = errors.New("invalid input")
	ErrConcurrentUpdate = errors.New("concurrent update detected")
)

// ValidationError reports malformed or missing input. Nothing is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError is returned when a zone, vehicle or session is absent or not
// owned by the caller.
type NotFoundError struct {
	Resource string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ConflictError is returned when the vehicle already holds a non-terminal
// session or the session is not in a state that allows the operation.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return e.Err }

type RestrictionError struct {
	Restrictions []ActiveRestriction
}

func (e *RestrictionError) Error() string {
	descriptions := make([]string, 0, len(e.Restrictions))
	for _, r := range e.Restrictions {
		descriptions = append(descriptions, r.Description)
	}
	return "parking restricted: " + strings.Join(descriptions, "; ")
}

// LimitExceededError reports that a duration would exceed the zone maximum.
// Remaining is how many more hours can still be booked.
type LimitExceededError struct {
	MaxHours  decimal.Decimal
	Remaining decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("duration exceeds zone maximum of %s hours, %s hours remaining",
		e.MaxHours.String(), e.Remaining.String())
}

type PaymentError struct {
	Op  string
	Err error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed: %s: %v", e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// RefundError never aborts a termination; it rides along with the result.
type RefundError struct {
	Amount decimal.Decimal
	Err    error
}

func (e *RefundError) Error() string {
	return fmt.Sprintf("refund of %s failed: %v", e.Amount.StringFixed(2), e.Err)
}

func (e *RefundError) Unwrap() error { return e.Err }
