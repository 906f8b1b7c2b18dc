package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindCharge TransactionKind = "CHARGE"
	TransactionKindRefund TransactionKind = "REFUND"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusRefunded  TransactionStatus = "REFUNDED"
)

// Transaction is a money movement tied to a session. Charges carry a positive
// Amount, refunds a negative one.
type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	SessionID     uuid.UUID         `json:"session_id" db:"session_id"`
	UserID        int64             `json:"user_id" db:"user_id"`
	Kind          TransactionKind   `json:"kind" db:"kind"`
	Amount        decimal.Decimal   `json:"amount" db:"amount"`
	Status        TransactionStatus `json:"status" db:"status"`
	ExternalRef   string            `json:"external_ref,omitempty" db:"external_ref"`
	FailureReason string            `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}
