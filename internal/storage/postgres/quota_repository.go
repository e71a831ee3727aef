package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuotaRepository reads and locks quota rows and computes the per-quota
// demand aggregates the availability calculator and the reservation paths
// share. All count methods batch over many quotas in a single query.
type QuotaRepository struct {
	db
}

func NewQuotaRepository(pool *pgxpool.Pool) *QuotaRepository {
	return &QuotaRepository{db: db{pool: pool}}
}

// CoveringQuotaIDs resolves every quota that governs the given
// product/variation, ascending by ID. An empty variation matches only
// product-wide quota items; subevent-scoped quotas are filtered to the
// requested subevent.
func (r *QuotaRepository) CoveringQuotaIDs(ctx context.Context, eventID, subEventID, productID, variationID string) ([]string, error) {
	const query = `
SELECT DISTINCT q.id
FROM quotas q
JOIN quota_items qi ON qi.quota_id = q.id
WHERE q.event_id = $1
  AND (q.subevent_id IS NULL OR q.subevent_id = $2)
  AND qi.product_id = $3
  AND (qi.variation_id IS NULL OR qi.variation_id = $4)
ORDER BY q.id`

	rows, err := r.query(ctx, query, eventID, nullUUID(subEventID), productID, nullUUID(variationID))
	if err != nil {
		return nil, fmt.Errorf("covering quotas: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quota id: %w", err)
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		if isInvalidUUID(rows.Err()) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("iterate quota ids: %w", rows.Err())
	}
	return ids, nil
}

// GetQuotasForUpdate locks the given quota rows. IDs are sorted before the
// query and rows are locked in ascending ID order so overlapping reservations
// cannot deadlock on each other.
func (r *QuotaRepository) GetQuotasForUpdate(ctx context.Context, ids []string) ([]domain.Quota, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	const query = `
SELECT id, event_id, subevent_id, name, size, closed, created_at
FROM quotas
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`
	return r.scanQuotas(ctx, query, sorted)
}

// GetQuotas reads quota rows without locking.
func (r *QuotaRepository) GetQuotas(ctx context.Context, ids []string) ([]domain.Quota, error) {
	const query = `
SELECT id, event_id, subevent_id, name, size, closed, created_at
FROM quotas
WHERE id = ANY($1)
ORDER BY id`
	return r.scanQuotas(ctx, query, ids)
}

func (r *QuotaRepository) scanQuotas(ctx context.Context, query string, ids []string) ([]domain.Quota, error) {
	rows, err := r.query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get quotas: %w", err)
	}
	defer rows.Close()

	var quotas []domain.Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}
	if rows.Err() != nil {
		if isInvalidUUID(rows.Err()) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("iterate quotas: %w", rows.Err())
	}
	return quotas, nil
}

func scanQuota(row pgx.Row) (domain.Quota, error) {
	var q domain.Quota
	var subevent *string
	if err := row.Scan(&q.ID, &q.EventID, &subevent, &q.Name, &q.Size, &q.Closed, &q.CreatedAt); err != nil {
		return domain.Quota{}, fmt.Errorf("scan quota: %w", err)
	}
	if subevent != nil {
		q.SubEventID = *subevent
	}
	return q, nil
}

// CountOrderPositions returns, per quota, the number of non-canceled order
// positions belonging to pending and paid orders.
func (r *QuotaRepository) CountOrderPositions(ctx context.Context, quotaIDs []string) (map[string]domain.OrderCounts, error) {
	const query = `
SELECT qi.quota_id, o.status, COUNT(*)
FROM order_positions op
JOIN orders o ON o.id = op.order_id
JOIN quota_items qi ON qi.product_id = op.product_id
	AND (qi.variation_id IS NULL OR qi.variation_id = op.variation_id)
WHERE qi.quota_id = ANY($1)
  AND op.canceled = FALSE
  AND o.status IN ('pending', 'paid')
GROUP BY qi.quota_id, o.status`

	rows, err := r.query(ctx, query, quotaIDs)
	if err != nil {
		return nil, fmt.Errorf("count order positions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]domain.OrderCounts)
	for rows.Next() {
		var quotaID, status string
		var n int
		if err := rows.Scan(&quotaID, &status, &n); err != nil {
			return nil, fmt.Errorf("scan order count: %w", err)
		}
		c := counts[quotaID]
		switch domain.OrderStatus(status) {
		case domain.OrderStatusPaid:
			c.Paid = n
		case domain.OrderStatusPending:
			c.Pending = n
		}
		counts[quotaID] = c
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate order counts: %w", rows.Err())
	}
	return counts, nil
}

// CountLiveCartPositions returns, per quota, the number of unexpired cart
// positions. Positions backed by a still-valid block-quota voucher are
// excluded: their capacity is already set aside by the voucher itself. Once
// the voucher's validity lapses it sets nothing aside anymore, so its live
// holds count like any other. excludeCartID, when non-empty, discounts the
// caller's own cart (used by the finalizer).
func (r *QuotaRepository) CountLiveCartPositions(ctx context.Context, quotaIDs []string, now time.Time, excludeCartID string) (map[string]int, error) {
	const query = `
SELECT qi.quota_id, COUNT(*)
FROM cart_positions cp
JOIN quota_items qi ON qi.product_id = cp.product_id
	AND (qi.variation_id IS NULL OR qi.variation_id = cp.variation_id)
WHERE qi.quota_id = ANY($1)
  AND cp.expires_at > $2
  AND ($3::text IS NULL OR cp.cart_id <> $3)
  AND NOT EXISTS (
	SELECT 1 FROM vouchers v
	WHERE v.id = cp.voucher_id
	  AND v.block_quota
	  AND (v.valid_until IS NULL OR v.valid_until > $2)
  )
GROUP BY qi.quota_id`

	var exclude any
	if excludeCartID != "" {
		exclude = excludeCartID
	}
	return r.countByQuota(ctx, query, quotaIDs, now, exclude)
}

// CountBlockedVoucherUnits returns, per quota, the capacity reserved by
// still-valid block-quota vouchers: one unit per unredeemed usage.
func (r *QuotaRepository) CountBlockedVoucherUnits(ctx context.Context, quotaIDs []string, now time.Time) (map[string]int, error) {
	const query = `
SELECT q.id, COALESCE(SUM(GREATEST(v.max_usages - v.redeemed, 0)), 0)
FROM quotas q
JOIN vouchers v ON v.block_quota
	AND (v.valid_until IS NULL OR v.valid_until > $2)
	AND (
		v.quota_id = q.id
		OR EXISTS (
			SELECT 1 FROM quota_items qi
			WHERE qi.quota_id = q.id
			  AND qi.product_id = v.product_id
			  AND (qi.variation_id IS NULL OR v.variation_id IS NULL OR qi.variation_id = v.variation_id)
		)
	)
WHERE q.id = ANY($1)
GROUP BY q.id`

	return r.countByQuota(ctx, query, quotaIDs, now)
}

func (r *QuotaRepository) countByQuota(ctx context.Context, query string, quotaIDs []string, args ...any) (map[string]int, error) {
	all := append([]any{quotaIDs}, args...)
	rows, err := r.query(ctx, query, all...)
	if err != nil {
		return nil, fmt.Errorf("count by quota: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var quotaID string
		var n int
		if err := rows.Scan(&quotaID, &n); err != nil {
			return nil, fmt.Errorf("scan quota count: %w", err)
		}
		counts[quotaID] = n
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate quota counts: %w", rows.Err())
	}
	return counts, nil
}

// CreateQuota inserts a quota and its product/variation memberships.
func (r *QuotaRepository) CreateQuota(ctx context.Context, quota domain.Quota, items []domain.QuotaItem) error {
	const stmt = `
INSERT INTO quotas (id, event_id, subevent_id, name, size, closed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		quota.ID,
		quota.EventID,
		nullUUID(quota.SubEventID),
		quota.Name,
		quota.Size,
		quota.Closed,
		quota.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create quota: %w", err)
	}

	const itemStmt = `
INSERT INTO quota_items (quota_id, product_id, variation_id)
VALUES ($1, $2, $3)`
	for _, item := range items {
		if _, err := r.exec(ctx, itemStmt, quota.ID, item.ProductID, nullUUID(item.VariationID)); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("create quota item: %w", err)
		}
	}
	return nil
}

// ListQuotasByEvent lists an event's quotas ascending by creation time.
func (r *QuotaRepository) ListQuotasByEvent(ctx context.Context, eventID string) ([]domain.Quota, error) {
	const query = `
SELECT id, event_id, subevent_id, name, size, closed, created_at
FROM quotas
WHERE event_id = $1
ORDER BY created_at ASC`

	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()

	var quotas []domain.Quota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, err
		}
		quotas = append(quotas, q)
	}
	if rows.Err() != nil {
		if isInvalidUUID(rows.Err()) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("iterate quotas: %w", rows.Err())
	}
	return quotas, nil
}

func nullUUID(id string) any {
	if id == "" {
		return nil
	}
	return id
}
