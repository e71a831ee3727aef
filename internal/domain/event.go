package domain

import "time"

// Event represents a ticketed event owned by an organizer.
type Event struct {
	ID        string
	Organizer string
	Slug      string
	Name      string
	StartsAt  time.Time
}

// SubEvent is one date of an event series. Quotas, vouchers and waiting list
// entries may be scoped to a single subevent instead of the whole series.
type SubEvent struct {
	ID       string
	EventID  string
	Name     string
	StartsAt time.Time
}
