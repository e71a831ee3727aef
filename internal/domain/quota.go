package domain

import "time"

// Quota is a bounded pool of sellable capacity shared by one or more
// products/variations. A nil Size means unlimited. Closed quotas reject new
// reservations regardless of remaining capacity.
type Quota struct {
	ID         string
	EventID    string
	SubEventID string
	Name       string
	Size       *int
	Closed     bool
	CreatedAt  time.Time
}

// Unlimited reports whether the quota has no size bound.
func (q Quota) Unlimited() bool {
	return q.Size == nil
}

// QuotaItem links a quota to a product or one of its variations. A nil
// variation covers every variation of the product.
type QuotaItem struct {
	QuotaID     string
	ProductID   string
	VariationID string
}

// OrderCounts splits a quota's order-position demand by order status.
type OrderCounts struct {
	Pending int
	Paid    int
}

// Availability is the advisory result of the batch calculator. Callers must
// not treat Remaining as a commit guarantee; capacity-consuming paths
// recompute under row locks.
type Availability struct {
	QuotaID         string
	Unlimited       bool
	TotalSize       int
	Remaining       int
	PaidOrders      int
	PendingOrders   int
	CartPositions   int
	BlockedVouchers int
}

// Available reports whether at least one unit can plausibly be reserved.
func (a Availability) Available() bool {
	return a.Unlimited || a.Remaining > 0
}
