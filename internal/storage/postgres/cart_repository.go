package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CartRepository struct {
	db
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: db{pool: pool}}
}

// InsertPositions writes one row per reserved unit.
func (r *CartRepository) InsertPositions(ctx context.Context, positions []domain.CartPosition) error {
	const stmt = `
INSERT INTO cart_positions (id, cart_id, event_id, subevent_id, product_id, variation_id, voucher_id, seat, price, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	for _, p := range positions {
		_, err := r.exec(ctx, stmt,
			p.ID,
			p.CartID,
			p.EventID,
			nullUUID(p.SubEventID),
			p.ProductID,
			nullUUID(p.VariationID),
			nullUUID(p.VoucherID),
			nullString(p.Seat),
			p.Price,
			p.ExpiresAt,
			p.CreatedAt,
		)
		if err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			if isForeignKeyViolation(err) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("insert cart position: %w", err)
		}
	}
	return nil
}

// PositionsForCart reads a cart's positions, oldest first.
func (r *CartRepository) PositionsForCart(ctx context.Context, cartID string) ([]domain.CartPosition, error) {
	return r.positions(ctx, cartID, false)
}

// PositionsForCartForUpdate reads a cart's positions under row locks, so a
// finalize cannot race the reaper deleting them.
func (r *CartRepository) PositionsForCartForUpdate(ctx context.Context, cartID string) ([]domain.CartPosition, error) {
	return r.positions(ctx, cartID, true)
}

func (r *CartRepository) positions(ctx context.Context, cartID string, forUpdate bool) ([]domain.CartPosition, error) {
	query := `
SELECT id, cart_id, event_id, subevent_id, product_id, variation_id, voucher_id, seat, price, expires_at, created_at
FROM cart_positions
WHERE cart_id = $1
ORDER BY created_at ASC, id ASC`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	rows, err := r.query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("cart positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.CartPosition
	for rows.Next() {
		p, err := scanCartPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cart positions: %w", rows.Err())
	}
	return positions, nil
}

func scanCartPosition(row pgx.Row) (domain.CartPosition, error) {
	var p domain.CartPosition
	var subevent, variation, voucher, seat *string
	err := row.Scan(&p.ID, &p.CartID, &p.EventID, &subevent, &p.ProductID, &variation, &voucher, &seat, &p.Price, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		return domain.CartPosition{}, fmt.Errorf("scan cart position: %w", err)
	}
	if subevent != nil {
		p.SubEventID = *subevent
	}
	if variation != nil {
		p.VariationID = *variation
	}
	if voucher != nil {
		p.VoucherID = *voucher
	}
	if seat != nil {
		p.Seat = *seat
	}
	return p, nil
}

// DeletePosition removes a single position from a cart.
func (r *CartRepository) DeletePosition(ctx context.Context, cartID, positionID string) error {
	const stmt = `DELETE FROM cart_positions WHERE cart_id = $1 AND id = $2`

	tag, err := r.exec(ctx, stmt, cartID, positionID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("delete cart position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartNotFound
	}
	return nil
}

// DeletePositions removes the given positions by ID (finalize cleanup).
func (r *CartRepository) DeletePositions(ctx context.Context, ids []string) error {
	const stmt = `DELETE FROM cart_positions WHERE id = ANY($1)`
	if _, err := r.exec(ctx, stmt, ids); err != nil {
		return fmt.Errorf("delete cart positions: %w", err)
	}
	return nil
}

// ExtendCart pushes the expiry of all still-live positions of a cart to
// expiresAt and returns how many were touched. Expired positions stay
// expired; extension never resurrects a lapsed hold.
func (r *CartRepository) ExtendCart(ctx context.Context, cartID string, expiresAt, now time.Time) (int, error) {
	const stmt = `
UPDATE cart_positions
SET expires_at = $2
WHERE cart_id = $1 AND expires_at > $3`

	tag, err := r.exec(ctx, stmt, cartID, expiresAt, now)
	if err != nil {
		return 0, fmt.Errorf("extend cart: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired reaps positions whose expiry has passed and returns the IDs
// of the quotas whose capacity the deletions freed. Running it again
// immediately is a no-op.
func (r *CartRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	const stmt = `
WITH reaped AS (
	DELETE FROM cart_positions
	WHERE expires_at <= $1
	RETURNING product_id, variation_id
)
SELECT DISTINCT qi.quota_id
FROM reaped
JOIN quota_items qi ON qi.product_id = reaped.product_id
	AND (qi.variation_id IS NULL OR qi.variation_id = reaped.variation_id)`

	rows, err := r.query(ctx, stmt, now)
	if err != nil {
		return nil, fmt.Errorf("reap cart positions: %w", err)
	}
	defer rows.Close()

	var quotaIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reaped quota: %w", err)
		}
		quotaIDs = append(quotaIDs, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reaped quotas: %w", rows.Err())
	}
	return quotaIDs, nil
}

// ReassignCart moves all positions of one cart to another with a fresh
// expiry (waiting list claim).
func (r *CartRepository) ReassignCart(ctx context.Context, fromCartID, toCartID string, expiresAt time.Time) (int, error) {
	const stmt = `
UPDATE cart_positions
SET cart_id = $2, expires_at = $3
WHERE cart_id = $1`

	tag, err := r.exec(ctx, stmt, fromCartID, toCartID, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("reassign cart: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SeatTaken reports whether a seat is already reserved by a live cart
// position or a non-canceled order position of the event.
func (r *CartRepository) SeatTaken(ctx context.Context, eventID, seat string, now time.Time) (bool, error) {
	const query = `
SELECT EXISTS (
	SELECT 1 FROM cart_positions
	WHERE event_id = $1 AND seat = $2 AND expires_at > $3
) OR EXISTS (
	SELECT 1 FROM order_positions op
	JOIN orders o ON o.id = op.order_id
	WHERE o.event_id = $1 AND op.seat = $2 AND op.canceled = FALSE
	  AND o.status IN ('pending', 'paid')
)`

	var taken bool
	if err := r.queryRow(ctx, query, eventID, seat, now).Scan(&taken); err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("seat taken: %w", err)
	}
	return taken, nil
}

// CountLiveVoucherUses counts unexpired cart positions attached to a voucher.
func (r *CartRepository) CountLiveVoucherUses(ctx context.Context, voucherID string, now time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM cart_positions
WHERE voucher_id = $1 AND expires_at > $2`

	var n int
	if err := r.queryRow(ctx, query, voucherID, now).Scan(&n); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count voucher uses: %w", err)
	}
	return n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
