package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentState string

const (
	PaymentStateCreated   PaymentState = "created"
	PaymentStateConfirmed PaymentState = "confirmed"
	PaymentStateCanceled  PaymentState = "canceled"
	PaymentStateFailed    PaymentState = "failed"
)

type RefundState string

const (
	RefundStateDone     RefundState = "done"
	RefundStateCanceled RefundState = "canceled"
)

// Payment is a captured amount against an order. LocalID numbers payments
// within one order, matching the public API path shape.
type Payment struct {
	ID        string
	OrderID   string
	LocalID   int
	Amount    decimal.Decimal
	State     PaymentState
	CreatedAt time.Time
}

// Refund returns part of a payment. The refund guard keeps the sum of all
// non-canceled refunds at or below the payment amount.
type Refund struct {
	ID        string
	PaymentID string
	LocalID   int
	Amount    decimal.Decimal
	State     RefundState
	CreatedAt time.Time
}
