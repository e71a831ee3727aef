package postgres

import (
	"context"
	"fmt"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PaymentRepository struct {
	db
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db{pool: pool}}
}

// CreatePayment inserts a payment with the next local_id for its order.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	const stmt = `
INSERT INTO payments (id, order_id, local_id, amount, state, created_at)
VALUES ($1, $2, (SELECT COALESCE(MAX(local_id), 0) + 1 FROM payments WHERE order_id = $2), $3, $4, $5)
RETURNING local_id`

	err := r.queryRow(ctx, stmt, p.ID, p.OrderID, p.Amount, p.State, p.CreatedAt).Scan(&p.LocalID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Payment{}, domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.Payment{}, domain.ErrOrderNotFound
		}
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// GetPaymentForUpdate locks the payment row; the refund guard's amount check
// and refund insert both happen under this lock.
func (r *PaymentRepository) GetPaymentForUpdate(ctx context.Context, paymentID string) (domain.Payment, error) {
	const query = `
SELECT id, order_id, local_id, amount, state, created_at
FROM payments
WHERE id = $1
FOR UPDATE`
	return r.getPayment(ctx, query, paymentID)
}

// GetPaymentByLocalID resolves a payment by order and payment number.
func (r *PaymentRepository) GetPaymentByLocalID(ctx context.Context, orderID string, localID int) (domain.Payment, error) {
	const query = `
SELECT id, order_id, local_id, amount, state, created_at
FROM payments
WHERE order_id = $1 AND local_id = $2`
	return r.getPayment(ctx, query, orderID, localID)
}

func (r *PaymentRepository) getPayment(ctx context.Context, query string, args ...any) (domain.Payment, error) {
	var p domain.Payment
	var state string
	err := r.queryRow(ctx, query, args...).
		Scan(&p.ID, &p.OrderID, &p.LocalID, &p.Amount, &state, &p.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Payment{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	p.State = domain.PaymentState(state)
	return p, nil
}

// SumRefunds totals the non-canceled refunds of a payment.
func (r *PaymentRepository) SumRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	const query = `
SELECT COALESCE(SUM(amount), 0)
FROM refunds
WHERE payment_id = $1 AND state <> 'canceled'`

	var total decimal.Decimal
	if err := r.queryRow(ctx, query, paymentID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return decimal.Zero, domain.ErrInvalidID
		}
		return decimal.Zero, fmt.Errorf("sum refunds: %w", err)
	}
	return total, nil
}

// CreateRefund inserts a refund with the next local_id for its payment.
func (r *PaymentRepository) CreateRefund(ctx context.Context, ref domain.Refund) (domain.Refund, error) {
	const stmt = `
INSERT INTO refunds (id, payment_id, local_id, amount, state, created_at)
VALUES ($1, $2, (SELECT COALESCE(MAX(local_id), 0) + 1 FROM refunds WHERE payment_id = $2), $3, $4, $5)
RETURNING local_id`

	err := r.queryRow(ctx, stmt, ref.ID, ref.PaymentID, ref.Amount, ref.State, ref.CreatedAt).Scan(&ref.LocalID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Refund{}, domain.ErrPaymentNotFound
		}
		return domain.Refund{}, fmt.Errorf("create refund: %w", err)
	}
	return ref, nil
}
