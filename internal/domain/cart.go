package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartPosition is a temporary reservation of one unit of a product. It counts
// against every covering quota until it expires, is removed, or is converted
// into an order position. Liveness is purely time-based: a position whose
// ExpiresAt has passed consumes nothing, whether or not the reaper has
// deleted the row yet.
type CartPosition struct {
	ID          string
	CartID      string
	EventID     string
	SubEventID  string
	ProductID   string
	VariationID string
	VoucherID   string
	Seat        string
	Price       decimal.Decimal
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Live reports whether the position still consumes quota capacity at t.
func (p CartPosition) Live(t time.Time) bool {
	return p.ExpiresAt.After(t)
}
