package postgres

import (
	"context"
	"fmt"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepository struct {
	db
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db{pool: pool}}
}

// CreateOrder inserts the order header.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const stmt = `
INSERT INTO orders (id, event_id, code, email, status, total, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.exec(ctx, stmt,
		order.ID,
		order.EventID,
		order.Code,
		order.Email,
		order.Status,
		order.Total,
		order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// CreateOrderPositions inserts the permanent allocations of an order.
func (r *OrderRepository) CreateOrderPositions(ctx context.Context, positions []domain.OrderPosition) error {
	const stmt = `
INSERT INTO order_positions (id, order_id, subevent_id, product_id, variation_id, voucher_id, seat, price, canceled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, p := range positions {
		_, err := r.exec(ctx, stmt,
			p.ID,
			p.OrderID,
			nullUUID(p.SubEventID),
			p.ProductID,
			nullUUID(p.VariationID),
			nullUUID(p.VoucherID),
			nullString(p.Seat),
			p.Price,
			p.Canceled,
		)
		if err != nil {
			return fmt.Errorf("create order position: %w", err)
		}
	}
	return nil
}

// GetOrderForUpdate locks the order header row.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	const query = `
SELECT id, event_id, code, email, status, total, created_at
FROM orders
WHERE id = $1
FOR UPDATE`
	return r.getOrder(ctx, query, orderID)
}

// GetOrderByCode resolves an order by its event-scoped public code.
func (r *OrderRepository) GetOrderByCode(ctx context.Context, eventID, code string) (domain.Order, error) {
	const query = `
SELECT id, event_id, code, email, status, total, created_at
FROM orders
WHERE event_id = $1 AND code = $2`
	return r.getOrder(ctx, query, eventID, code)
}

func (r *OrderRepository) getOrder(ctx context.Context, query string, args ...any) (domain.Order, error) {
	var o domain.Order
	var status string
	err := r.queryRow(ctx, query, args...).
		Scan(&o.ID, &o.EventID, &o.Code, &o.Email, &status, &o.Total, &o.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Order{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// UpdateOrderStatus transitions the order header.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	const stmt = `UPDATE orders SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, orderID, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// CancelPositions marks all positions of an order canceled and returns the
// IDs of the quotas whose capacity that freed.
func (r *OrderRepository) CancelPositions(ctx context.Context, orderID string) ([]string, error) {
	const stmt = `
WITH canceled AS (
	UPDATE order_positions
	SET canceled = TRUE
	WHERE order_id = $1 AND canceled = FALSE
	RETURNING product_id, variation_id
)
SELECT DISTINCT qi.quota_id
FROM canceled
JOIN quota_items qi ON qi.product_id = canceled.product_id
	AND (qi.variation_id IS NULL OR qi.variation_id = canceled.variation_id)`

	rows, err := r.query(ctx, stmt, orderID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("cancel order positions: %w", err)
	}
	defer rows.Close()

	var quotaIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan freed quota: %w", err)
		}
		quotaIDs = append(quotaIDs, id)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate freed quotas: %w", rows.Err())
	}
	return quotaIDs, nil
}
