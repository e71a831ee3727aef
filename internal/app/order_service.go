package app

import (
	"context"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
	CreateOrderPositions(ctx context.Context, positions []domain.OrderPosition) error
	GetOrderForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	GetOrderByCode(ctx context.Context, eventID, code string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	CancelPositions(ctx context.Context, orderID string) ([]string, error)
}

// FinalizeCartStore is the slice of cart storage the finalizer needs: locked
// reads so the reaper cannot delete positions mid-finalize, and deletion once
// they have been converted.
type FinalizeCartStore interface {
	PositionsForCartForUpdate(ctx context.Context, cartID string) ([]domain.CartPosition, error)
	DeletePositions(ctx context.Context, ids []string) error
}

// VoucherRedeemer is the slice of voucher storage the finalizer needs to
// consume usages under row locks.
type VoucherRedeemer interface {
	GetVouchers(ctx context.Context, ids []string) ([]domain.Voucher, error)
	GetVouchersForUpdate(ctx context.Context, ids []string) ([]domain.Voucher, error)
	IncrementRedeemed(ctx context.Context, id string, qty int) error
}

// PaymentCreator records a confirmed payment when an order is marked paid.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, p domain.Payment) (domain.Payment, error)
}

// OrderService converts cart holds into permanent order positions and walks
// orders through their lifecycle. Finalize re-verifies everything the hold
// path verified, because time has passed: holds may have expired, capacity
// may have shifted, vouchers may have been consumed elsewhere.
type OrderService struct {
	orders   OrderStore
	carts    FinalizeCartStore
	quotas   QuotaLedger
	vouchers VoucherRedeemer
	payments PaymentCreator
	cache    AvailabilityCache
	clock    clock.Clock
}

type OrderServiceOption func(*OrderService)

// WithOrderCache lets the service drop stale advisory entries after commits.
func WithOrderCache(c AvailabilityCache) OrderServiceOption {
	return func(s *OrderService) {
		s.cache = c
	}
}

func NewOrderService(orders OrderStore, carts FinalizeCartStore, quotas QuotaLedger, vouchers VoucherRedeemer, payments PaymentCreator, clk clock.Clock, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		orders:   orders,
		carts:    carts,
		quotas:   quotas,
		vouchers: vouchers,
		payments: payments,
		clock:    clk,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type FinalizeInput struct {
	CartID  string
	EventID string
	Email   string
}

// Finalize atomically converts a cart's holds into an order. On any failure
// the cart is left exactly as it was: positions keep their own TTLs and the
// caller may retry. Quota rows are locked in the same ascending order the
// hold path uses, then voucher rows ascending, so the two paths cannot
// deadlock against each other.
func (s *OrderService) Finalize(ctx context.Context, in FinalizeInput) (domain.Order, error) {
	if in.CartID == "" || in.EventID == "" {
		return domain.Order{}, domain.ErrInvalidID
	}
	if in.Email == "" {
		return domain.Order{}, domain.ErrEmailRequired
	}

	var order domain.Order
	var touchedQuotas []string
	err := withRetry(ctx, func(ctx context.Context) error {
		return s.orders.WithTx(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()

			positions, err := s.carts.PositionsForCartForUpdate(txCtx, in.CartID)
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				return domain.ErrCartNotFound
			}

			// A finalize racing the reaper must fail cleanly, never allocate
			// past expiry.
			for _, p := range positions {
				if !p.Live(now) {
					return domain.ErrCartExpired
				}
				if p.EventID != in.EventID {
					return domain.ErrCartNotFound
				}
			}

			need := make(map[string]int)
			voucherNeed := make(map[string]int)
			blockVoucher := make(map[string]bool)
			for _, p := range positions {
				if p.VoucherID != "" {
					voucherNeed[p.VoucherID]++
				}
			}

			// Block flags are needed before the quota pass (block-quota
			// positions do not consume general capacity), but the voucher
			// rows must not be locked yet: quota locks always come first.
			voucherIDs := keys(voucherNeed)
			if len(voucherIDs) > 0 {
				vouchers, err := s.vouchers.GetVouchers(txCtx, voucherIDs)
				if err != nil {
					return err
				}
				if len(vouchers) < len(voucherIDs) {
					return domain.ErrVoucherInvalid
				}
				for _, v := range vouchers {
					blockVoucher[v.ID] = v.BlockQuota
				}
			}

			// Each position re-resolves its covering quotas with the subevent
			// it was held under, so the finalize re-check locks the same set
			// the hold path locked.
			for _, p := range positions {
				if p.VoucherID != "" && blockVoucher[p.VoucherID] {
					continue
				}
				covering, err := s.quotas.CoveringQuotaIDs(txCtx, p.EventID, p.SubEventID, p.ProductID, p.VariationID)
				if err != nil {
					return err
				}
				if len(covering) == 0 {
					return domain.ErrQuotaNotFound
				}
				for _, id := range covering {
					need[id]++
				}
			}

			quotaIDs := keys(need)
			touchedQuotas = quotaIDs
			if len(quotaIDs) > 0 {
				// Capacity is recounted with this cart's own holds excluded:
				// they are the units being converted, not competing demand.
				if err := checkQuotaCapacity(txCtx, s.quotas, quotaIDs, need, now, in.CartID); err != nil {
					return err
				}
			}

			if len(voucherIDs) > 0 {
				lockedVouchers, err := s.vouchers.GetVouchersForUpdate(txCtx, voucherIDs)
				if err != nil {
					return err
				}
				for _, v := range lockedVouchers {
					// Time passed since the hold; a voucher that lapsed in
					// between must not be redeemed.
					if v.Expired(now) {
						return domain.ErrVoucherExpired
					}
					qty := voucherNeed[v.ID]
					if v.Redeemed+qty > v.MaxUsages {
						return domain.ErrVoucherExhausted
					}
					if err := s.vouchers.IncrementRedeemed(txCtx, v.ID, qty); err != nil {
						return err
					}
				}
			}

			total := decimal.Zero
			for _, p := range positions {
				total = total.Add(p.Price)
			}
			order = domain.Order{
				ID:        newID(),
				EventID:   in.EventID,
				Code:      newOrderCode(),
				Email:     in.Email,
				Status:    domain.OrderStatusPending,
				Total:     total,
				CreatedAt: now,
			}
			if err := s.orders.CreateOrder(txCtx, order); err != nil {
				return err
			}

			orderPositions := make([]domain.OrderPosition, 0, len(positions))
			positionIDs := make([]string, 0, len(positions))
			for _, p := range positions {
				positionIDs = append(positionIDs, p.ID)
				orderPositions = append(orderPositions, domain.OrderPosition{
					ID:          newID(),
					OrderID:     order.ID,
					SubEventID:  p.SubEventID,
					ProductID:   p.ProductID,
					VariationID: p.VariationID,
					VoucherID:   p.VoucherID,
					Seat:        p.Seat,
					Price:       p.Price,
				})
			}
			if err := s.orders.CreateOrderPositions(txCtx, orderPositions); err != nil {
				return err
			}
			return s.carts.DeletePositions(txCtx, positionIDs)
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.cache != nil && len(touchedQuotas) > 0 {
		s.cache.Invalidate(ctx, touchedQuotas)
	}
	return order, nil
}

// Cancel voids an order and its positions, returning the quotas whose
// capacity the cancellation freed so the caller can run waiting list
// promotion on them.
func (s *OrderService) Cancel(ctx context.Context, orderID string) ([]string, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidID
	}

	var freed []string
	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCanceled {
			return nil
		}
		if err := s.orders.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusCanceled); err != nil {
			return err
		}
		freed, err = s.orders.CancelPositions(txCtx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(freed) > 0 {
		s.cache.Invalidate(ctx, freed)
	}
	return freed, nil
}

// MarkPaid records a confirmed payment covering amount and moves the order
// to paid.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string, amount decimal.Decimal) (domain.Payment, error) {
	if orderID == "" {
		return domain.Payment{}, domain.ErrInvalidID
	}
	if amount.IsNegative() {
		return domain.Payment{}, domain.ErrInvalidAmount
	}

	var payment domain.Payment
	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotPending
		}

		payment, err = s.payments.CreatePayment(txCtx, domain.Payment{
			ID:        newID(),
			OrderID:   orderID,
			Amount:    amount,
			State:     domain.PaymentStateConfirmed,
			CreatedAt: s.clock.Now(),
		})
		if err != nil {
			return err
		}
		return s.orders.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusPaid)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return payment, nil
}

// GetByCode resolves an order by its event-scoped public code.
func (s *OrderService) GetByCode(ctx context.Context, eventID, code string) (domain.Order, error) {
	return s.orders.GetOrderByCode(ctx, eventID, code)
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
