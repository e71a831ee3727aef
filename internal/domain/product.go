package domain

import "github.com/shopspring/decimal"

// Product is a sellable unit type. Capacity is not tracked here: a product is
// covered by one or more quotas and an allocation must fit all of them.
type Product struct {
	ID           string
	EventID      string
	Name         string
	DefaultPrice decimal.Decimal
	Active       bool
}

// Variation is a priced variant of a product (e.g. a ticket tier).
type Variation struct {
	ID        string
	ProductID string
	Name      string
	Price     decimal.Decimal
}
