package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WaitlistRepository struct {
	db
}

func NewWaitlistRepository(pool *pgxpool.Pool) *WaitlistRepository {
	return &WaitlistRepository{db: db{pool: pool}}
}

const waitlistColumns = `id, event_id, subevent_id, product_id, variation_id, email, status, offer_expires, created_at`

// Insert appends a waiting entry.
func (r *WaitlistRepository) Insert(ctx context.Context, e domain.WaitingListEntry) error {
	const stmt = `
INSERT INTO waiting_list_entries (id, event_id, subevent_id, product_id, variation_id, email, status, offer_expires, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.exec(ctx, stmt,
		e.ID,
		e.EventID,
		nullUUID(e.SubEventID),
		e.ProductID,
		nullUUID(e.VariationID),
		e.Email,
		e.Status,
		e.OfferExpires,
		e.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("insert waiting list entry: %w", err)
	}
	return nil
}

// OldestWaitingForQuota locks and returns the oldest waiting entry the quota
// actually covers, or nil when the queue is empty. A subevent-scoped quota
// only matches entries waiting for that subevent; a unit freed on one date
// must not be offered to someone queued for another.
// SKIP LOCKED keeps two concurrent promoters from fighting over one entry.
func (r *WaitlistRepository) OldestWaitingForQuota(ctx context.Context, quotaID string) (*domain.WaitingListEntry, error) {
	const query = `
SELECT w.id, w.event_id, w.subevent_id, w.product_id, w.variation_id, w.email, w.status, w.offer_expires, w.created_at
FROM waiting_list_entries w
WHERE w.status = 'waiting'
  AND EXISTS (
	SELECT 1 FROM quotas q
	JOIN quota_items qi ON qi.quota_id = q.id
	WHERE q.id = $1
	  AND (q.subevent_id IS NULL OR q.subevent_id = w.subevent_id)
	  AND qi.product_id = w.product_id
	  AND (qi.variation_id IS NULL OR qi.variation_id = w.variation_id)
  )
ORDER BY w.created_at ASC, w.id ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`

	e, err := scanWaitlistEntry(r.queryRow(ctx, query, quotaID))
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest waiting entry: %w", err)
	}
	return &e, nil
}

// GetForUpdate locks a single entry row.
func (r *WaitlistRepository) GetForUpdate(ctx context.Context, id string) (domain.WaitingListEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waiting_list_entries WHERE id = $1 FOR UPDATE`

	e, err := scanWaitlistEntry(r.queryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.WaitingListEntry{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.WaitingListEntry{}, domain.ErrEntryNotFound
		}
		return domain.WaitingListEntry{}, fmt.Errorf("get waiting list entry: %w", err)
	}
	return e, nil
}

func scanWaitlistEntry(row pgx.Row) (domain.WaitingListEntry, error) {
	var e domain.WaitingListEntry
	var subevent, variation *string
	var status string
	err := row.Scan(&e.ID, &e.EventID, &subevent, &e.ProductID, &variation, &e.Email, &status, &e.OfferExpires, &e.CreatedAt)
	if err != nil {
		return domain.WaitingListEntry{}, err
	}
	if subevent != nil {
		e.SubEventID = *subevent
	}
	if variation != nil {
		e.VariationID = *variation
	}
	e.Status = domain.WaitingStatus(status)
	return e, nil
}

// UpdateStatus transitions an entry, setting or clearing its offer window.
func (r *WaitlistRepository) UpdateStatus(ctx context.Context, id string, status domain.WaitingStatus, offerExpires *time.Time) error {
	const stmt = `
UPDATE waiting_list_entries
SET status = $2, offer_expires = $3
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, status, offerExpires)
	if err != nil {
		return fmt.Errorf("update waiting list entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// ExpireLapsedOffers flips offered entries whose window has passed to
// expired and returns the quotas their reservations will hand back (the
// reservation rows themselves die through the cart reaper).
func (r *WaitlistRepository) ExpireLapsedOffers(ctx context.Context, now time.Time) ([]string, error) {
	const stmt = `
WITH lapsed AS (
	UPDATE waiting_list_entries
	SET status = 'expired'
	WHERE status = 'offered' AND offer_expires <= $1
	RETURNING product_id, variation_id
)
SELECT DISTINCT qi.quota_id
FROM lapsed
JOIN quota_items qi ON qi.product_id = lapsed.product_id
	AND (qi.variation_id IS NULL OR qi.variation_id = lapsed.variation_id)`

	rows, err := r.query(ctx, stmt, now)
	if err != nil {
		return nil, fmt.Errorf("expire lapsed offers: %w", err)
	}
	defer rows.Close()

	var quotaIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lapsed quota: %w", err)
		}
		quotaIDs = append(quotaIDs, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate lapsed quotas: %w", rows.Err())
	}
	return quotaIDs, nil
}

// QuotasWithWaiting returns the quotas that currently have waiting demand.
func (r *WaitlistRepository) QuotasWithWaiting(ctx context.Context) ([]string, error) {
	const query = `
SELECT DISTINCT qi.quota_id
FROM waiting_list_entries w
JOIN quota_items qi ON qi.product_id = w.product_id
	AND (qi.variation_id IS NULL OR qi.variation_id = w.variation_id)
WHERE w.status = 'waiting'
ORDER BY qi.quota_id`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("quotas with waiting: %w", err)
	}
	defer rows.Close()

	var quotaIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan waiting quota: %w", err)
		}
		quotaIDs = append(quotaIDs, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate waiting quotas: %w", rows.Err())
	}
	return quotaIDs, nil
}
