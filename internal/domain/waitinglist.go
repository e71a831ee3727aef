package domain

import "time"

type WaitingStatus string

const (
	WaitingStatusWaiting WaitingStatus = "waiting"
	WaitingStatusOffered WaitingStatus = "offered"
	WaitingStatusClaimed WaitingStatus = "claimed"
	WaitingStatusExpired WaitingStatus = "expired"
)

// WaitingListEntry queues demand for a product with no remaining capacity.
// Entries are served oldest first. An offered entry holds one reserved unit
// until OfferExpires; unclaimed offers lapse and the unit returns to the pool.
type WaitingListEntry struct {
	ID           string
	EventID      string
	SubEventID   string
	ProductID    string
	VariationID  string
	Email        string
	Status       WaitingStatus
	OfferExpires *time.Time
	CreatedAt    time.Time
}
