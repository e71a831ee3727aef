package app

import (
	"context"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
)

// QuotaLedger is the write-side view of quota accounting: resolving which
// quotas govern a product, locking their rows, and recounting live demand
// inside the lock.
type QuotaLedger interface {
	CoveringQuotaIDs(ctx context.Context, eventID, subEventID, productID, variationID string) ([]string, error)
	GetQuotasForUpdate(ctx context.Context, ids []string) ([]domain.Quota, error)
	CountOrderPositions(ctx context.Context, quotaIDs []string) (map[string]domain.OrderCounts, error)
	CountLiveCartPositions(ctx context.Context, quotaIDs []string, now time.Time, excludeCartID string) (map[string]int, error)
	CountBlockedVoucherUnits(ctx context.Context, quotaIDs []string, now time.Time) (map[string]int, error)
}

// checkQuotaCapacity locks the given quota rows (ascending by ID) and
// verifies each one can absorb need[quotaID] additional units right now.
// Must run inside a transaction. excludeCartID discounts a cart's own live
// holds, which is how the finalizer converts holds without double-counting
// them. On shortage every failing quota is reported, not just the first.
func checkQuotaCapacity(ctx context.Context, ledger QuotaLedger, quotaIDs []string, need map[string]int, now time.Time, excludeCartID string) error {
	quotas, err := ledger.GetQuotasForUpdate(ctx, quotaIDs)
	if err != nil {
		return err
	}
	if len(quotas) < len(quotaIDs) {
		return domain.ErrQuotaNotFound
	}

	orderCounts, err := ledger.CountOrderPositions(ctx, quotaIDs)
	if err != nil {
		return err
	}
	cartCounts, err := ledger.CountLiveCartPositions(ctx, quotaIDs, now, excludeCartID)
	if err != nil {
		return err
	}
	voucherCounts, err := ledger.CountBlockedVoucherUnits(ctx, quotaIDs, now)
	if err != nil {
		return err
	}

	var failing []string
	for _, q := range quotas {
		n := need[q.ID]
		if n == 0 {
			continue
		}
		if q.Closed {
			failing = append(failing, q.ID)
			continue
		}
		if q.Unlimited() {
			continue
		}
		oc := orderCounts[q.ID]
		remaining := *q.Size - oc.Paid - oc.Pending - cartCounts[q.ID] - voucherCounts[q.ID]
		if remaining < n {
			failing = append(failing, q.ID)
		}
	}
	if len(failing) > 0 {
		return &domain.QuotaExceededError{QuotaIDs: failing}
	}
	return nil
}
