package entity

import "github.com/shopspring/decimal"

// ChargeStatusSucceeded is the gateway status of a charge that has been paid.
const ChargeStatusSucceeded = "succeeded"

// Charge is a payment gateway charge. ClientSecret is handed to the client
// to finish an on-session payment.
type Charge struct {
	ID           string          `json:"id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
}

type Refund struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
}

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "succeeded"
	PaymentEventFailed    PaymentEventType = "failed"
	PaymentEventCanceled  PaymentEventType = "canceled"
)

// PaymentEvent is an asynchronous gateway notification about a charge.
type PaymentEvent struct {
	ID            string
	Type          PaymentEventType
	ChargeID      string
	FailureReason string
	Metadata      map[string]string
}
