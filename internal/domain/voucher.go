package domain

import "time"

// Voucher authorizes (and optionally reserves) capacity. With BlockQuota set,
// the voucher's unredeemed usages are subtracted from the general pool until
// they are redeemed or the voucher expires; without it the voucher merely
// permits use of the normal quota path.
type Voucher struct {
	ID          string
	EventID     string
	Code        string
	MaxUsages   int
	Redeemed    int
	ValidUntil  *time.Time
	BlockQuota  bool
	QuotaID     string
	ProductID   string
	VariationID string
	Seat        string
	CreatedAt   time.Time
}

// Expired reports whether the voucher's validity window has lapsed at t.
func (v Voucher) Expired(t time.Time) bool {
	return v.ValidUntil != nil && !v.ValidUntil.After(t)
}

// BlockedUnits is the capacity a block-quota voucher sets aside: one unit per
// usage not yet redeemed.
func (v Voucher) BlockedUnits(t time.Time) int {
	if !v.BlockQuota || v.Expired(t) {
		return 0
	}
	if left := v.MaxUsages - v.Redeemed; left > 0 {
		return left
	}
	return 0
}

// MatchesProduct reports whether the voucher's scope admits the given
// product/variation. An empty scope field matches anything.
func (v Voucher) MatchesProduct(productID, variationID string) bool {
	if v.ProductID != "" && v.ProductID != productID {
		return false
	}
	if v.VariationID != "" && v.VariationID != variationID {
		return false
	}
	return true
}
