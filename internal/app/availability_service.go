package app

import (
	"context"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
)

// AvailabilityStore is the read side of the quota ledger. The count methods
// each batch over every requested quota in a single query.
type AvailabilityStore interface {
	GetQuotas(ctx context.Context, ids []string) ([]domain.Quota, error)
	CountOrderPositions(ctx context.Context, quotaIDs []string) (map[string]domain.OrderCounts, error)
	CountLiveCartPositions(ctx context.Context, quotaIDs []string, now time.Time, excludeCartID string) (map[string]int, error)
	CountBlockedVoucherUnits(ctx context.Context, quotaIDs []string, now time.Time) (map[string]int, error)
}

// AvailabilityCache is an optional read accelerator for advisory results.
type AvailabilityCache interface {
	GetMany(ctx context.Context, quotaIDs []string) map[string]domain.Availability
	SetMany(ctx context.Context, results map[string]domain.Availability)
	Invalidate(ctx context.Context, quotaIDs []string)
}

// AvailabilityService batch-computes remaining capacity for many quotas.
// Results are advisory: they short-circuit obviously exhausted attempts but
// are never a commit guarantee. The locking paths in the cart and order
// services redo this math on live rows.
type AvailabilityService struct {
	store AvailabilityStore
	cache AvailabilityCache
	clock clock.Clock
}

// NewAvailabilityService builds the calculator. cache may be nil.
func NewAvailabilityService(store AvailabilityStore, cache AvailabilityCache, clk clock.Clock) *AvailabilityService {
	return &AvailabilityService{
		store: store,
		cache: cache,
		clock: clk,
	}
}

// Compute returns availability for each requested quota that exists. Cached
// entries are served when fresh; the rest is computed in one batched pass
// and written back to the cache.
func (s *AvailabilityService) Compute(ctx context.Context, quotaIDs []string) (map[string]domain.Availability, error) {
	ids := dedupe(quotaIDs)
	if len(ids) == 0 {
		return map[string]domain.Availability{}, nil
	}

	results := make(map[string]domain.Availability, len(ids))
	missing := ids
	if s.cache != nil {
		hits := s.cache.GetMany(ctx, ids)
		missing = missing[:0:0]
		for _, id := range ids {
			if a, ok := hits[id]; ok {
				results[id] = a
			} else {
				missing = append(missing, id)
			}
		}
	}

	if len(missing) > 0 {
		fresh, err := computeAvailability(ctx, s.store, missing, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.SetMany(ctx, fresh)
		}
		for id, a := range fresh {
			results[id] = a
		}
	}
	return results, nil
}

// computeAvailability is the shared ledger math. Inside a transaction that
// already holds the quota row locks it yields the authoritative numbers; on
// a plain connection it is the advisory read.
func computeAvailability(ctx context.Context, store AvailabilityStore, quotaIDs []string, now time.Time) (map[string]domain.Availability, error) {
	quotas, err := store.GetQuotas(ctx, quotaIDs)
	if err != nil {
		return nil, err
	}
	if len(quotas) == 0 {
		return map[string]domain.Availability{}, nil
	}

	orderCounts, err := store.CountOrderPositions(ctx, quotaIDs)
	if err != nil {
		return nil, err
	}
	cartCounts, err := store.CountLiveCartPositions(ctx, quotaIDs, now, "")
	if err != nil {
		return nil, err
	}
	voucherCounts, err := store.CountBlockedVoucherUnits(ctx, quotaIDs, now)
	if err != nil {
		return nil, err
	}

	results := make(map[string]domain.Availability, len(quotas))
	for _, q := range quotas {
		results[q.ID] = assembleAvailability(q, orderCounts[q.ID], cartCounts[q.ID], voucherCounts[q.ID])
	}
	return results, nil
}

func assembleAvailability(q domain.Quota, orders domain.OrderCounts, carts, blocked int) domain.Availability {
	a := domain.Availability{
		QuotaID:         q.ID,
		PaidOrders:      orders.Paid,
		PendingOrders:   orders.Pending,
		CartPositions:   carts,
		BlockedVouchers: blocked,
	}

	// A closed quota sells nothing no matter how much room is left, and an
	// unlimited quota always has room. Everything else is plain arithmetic,
	// clamped so overbooked pools report zero rather than negative capacity.
	switch {
	case q.Closed:
	case q.Unlimited():
		a.Unlimited = true
	default:
		a.TotalSize = *q.Size
		remaining := *q.Size - orders.Paid - orders.Pending - carts - blocked
		if remaining > 0 {
			a.Remaining = remaining
		}
	}
	return a
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
