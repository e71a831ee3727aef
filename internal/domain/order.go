package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusRefunded OrderStatus = "refunded"
)

// Order is the header of a confirmed purchase.
type Order struct {
	ID        string
	EventID   string
	Code      string
	Email     string
	Status    OrderStatus
	Total     decimal.Decimal
	CreatedAt time.Time
}

// OrderPosition is the permanent allocation of one unit to an order. Created
// only by the finalizer; immutable afterwards except for cancellation.
type OrderPosition struct {
	ID          string
	OrderID     string
	SubEventID  string
	ProductID   string
	VariationID string
	VoucherID   string
	Seat        string
	Price       decimal.Decimal
	Canceled    bool
}
