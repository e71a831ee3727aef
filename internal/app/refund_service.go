package app

import (
	"context"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

type RefundStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetPaymentForUpdate(ctx context.Context, paymentID string) (domain.Payment, error)
	GetPaymentByLocalID(ctx context.Context, orderID string, localID int) (domain.Payment, error)
	SumRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error)
	CreateRefund(ctx context.Context, ref domain.Refund) (domain.Refund, error)
}

// RefundService guards refund creation. Two refunds against the same payment
// serialize on the payment's row lock, so the sum of issued refunds can never
// exceed the captured amount no matter how the requests interleave.
type RefundService struct {
	payments RefundStore
	clock    clock.Clock
}

func NewRefundService(payments RefundStore, clk clock.Clock) *RefundService {
	return &RefundService{payments: payments, clock: clk}
}

// Refund issues a refund against a payment. The already-refunded total is
// read under the payment's row lock and re-checked there; losing a race to a
// competing refund yields domain.ErrRefundExceedsAmount, not an over-refund.
func (s *RefundService) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (domain.Refund, error) {
	if paymentID == "" {
		return domain.Refund{}, domain.ErrInvalidID
	}
	if !amount.IsPositive() {
		return domain.Refund{}, domain.ErrInvalidAmount
	}

	var refund domain.Refund
	err := withRetry(ctx, func(ctx context.Context) error {
		return s.payments.WithTx(ctx, func(txCtx context.Context) error {
			payment, err := s.payments.GetPaymentForUpdate(txCtx, paymentID)
			if err != nil {
				return err
			}
			if payment.State != domain.PaymentStateConfirmed {
				return domain.ErrPaymentNotRefundable
			}

			refunded, err := s.payments.SumRefunds(txCtx, paymentID)
			if err != nil {
				return err
			}
			if refunded.Add(amount).GreaterThan(payment.Amount) {
				return domain.ErrRefundExceedsAmount
			}

			refund, err = s.payments.CreateRefund(txCtx, domain.Refund{
				ID:        newID(),
				PaymentID: paymentID,
				Amount:    amount,
				State:     domain.RefundStateDone,
				CreatedAt: s.clock.Now(),
			})
			return err
		})
	})
	if err != nil {
		return domain.Refund{}, err
	}
	return refund, nil
}

// RefundByLocalID resolves a payment by order and payment number, then
// refunds against it.
func (s *RefundService) RefundByLocalID(ctx context.Context, orderID string, localID int, amount decimal.Decimal) (domain.Refund, error) {
	payment, err := s.payments.GetPaymentByLocalID(ctx, orderID, localID)
	if err != nil {
		return domain.Refund{}, err
	}
	return s.Refund(ctx, payment.ID, amount)
}
