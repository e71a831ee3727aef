package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

func seedFinalizeStore(quotaSize int, positions ...domain.CartPosition) *fakeStore {
	store := seedCartStore(quotaSize)
	store.positions = append(store.positions, positions...)
	return store
}

func livePosition(id, cartID string, expires time.Time) domain.CartPosition {
	return domain.CartPosition{
		ID:        id,
		CartID:    cartID,
		EventID:   "event-1",
		ProductID: "prod-1",
		Price:     decimal.NewFromInt(25),
		ExpiresAt: expires,
	}
}

func TestOrderService_Finalize(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("converts holds into a pending order", func(t *testing.T) {
		store := seedFinalizeStore(10,
			livePosition("cp-1", "cart-1", now.Add(time.Minute)),
			livePosition("cp-2", "cart-1", now.Add(time.Minute)),
		)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		order, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if order.Status != domain.OrderStatusPending {
			t.Fatalf("expected pending order, got %s", order.Status)
		}
		if len(order.Code) != 5 {
			t.Fatalf("expected 5-char order code, got %q", order.Code)
		}
		if !order.Total.Equal(decimal.NewFromInt(50)) {
			t.Fatalf("expected total 50, got %s", order.Total)
		}
		if len(store.orderPos) != 2 {
			t.Fatalf("expected 2 order positions, got %d", len(store.orderPos))
		}
		if len(store.positions) != 0 {
			t.Fatalf("expected cart emptied, got %d positions", len(store.positions))
		}
	})

	t.Run("own holds do not count against the recount", func(t *testing.T) {
		// The cart holds the entire quota; converting it must still succeed.
		store := seedFinalizeStore(2,
			livePosition("cp-1", "cart-1", now.Add(time.Minute)),
			livePosition("cp-2", "cart-1", now.Add(time.Minute)),
		)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		if _, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		}); err != nil {
			t.Fatalf("expected own holds excluded from capacity, got %v", err)
		}
	})

	t.Run("expired cart fails cleanly", func(t *testing.T) {
		store := seedFinalizeStore(10,
			livePosition("cp-1", "cart-1", now.Add(-time.Second)),
		)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if !errors.Is(err, domain.ErrCartExpired) {
			t.Fatalf("expected ErrCartExpired, got %v", err)
		}
		if len(store.orders) != 0 || len(store.positions) != 1 {
			t.Fatalf("expected cart left untouched on failure")
		}
	})

	t.Run("competing demand since the hold is detected", func(t *testing.T) {
		// Someone else got a paid order in while this cart sat idle.
		store := seedFinalizeStore(1,
			livePosition("cp-1", "cart-1", now.Add(time.Minute)),
		)
		store.orders["order-x"] = domain.Order{ID: "order-x", EventID: "event-1", Code: "XXXXX", Status: domain.OrderStatusPaid}
		store.orderPos = append(store.orderPos, domain.OrderPosition{ID: "op-x", OrderID: "order-x", ProductID: "prod-1"})
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
	})

	t.Run("subevent quota is re-verified at finalize", func(t *testing.T) {
		// The hold was checked against a day-scoped quota; finalize must
		// resolve the same covering set, not just the event-wide quotas.
		store := seedCartStore(10)
		store.addQuota(domain.Quota{ID: "quota-day2", EventID: "event-1", SubEventID: "se-2", Size: intPtr(1)}, "prod-1")
		p := livePosition("cp-1", "cart-1", now.Add(time.Minute))
		p.SubEventID = "se-2"
		store.positions = append(store.positions, p)
		// A paid order filled the day-2 quota while this cart sat idle.
		store.orders["order-x"] = domain.Order{ID: "order-x", EventID: "event-1", Code: "XXXXX", Status: domain.OrderStatusPaid}
		store.orderPos = append(store.orderPos, domain.OrderPosition{ID: "op-x", OrderID: "order-x", SubEventID: "se-2", ProductID: "prod-1"})
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if !errors.Is(err, domain.ErrQuotaExceeded) {
			t.Fatalf("expected ErrQuotaExceeded, got %v", err)
		}
		var exceeded *domain.QuotaExceededError
		if !errors.As(err, &exceeded) || len(exceeded.QuotaIDs) != 1 || exceeded.QuotaIDs[0] != "quota-day2" {
			t.Fatalf("expected the day-2 quota reported, got %v", err)
		}
	})

	t.Run("order positions carry the hold's subevent", func(t *testing.T) {
		store := seedCartStore(10)
		p := livePosition("cp-1", "cart-1", now.Add(time.Minute))
		p.SubEventID = "se-2"
		store.positions = append(store.positions, p)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		if _, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if store.orderPos[0].SubEventID != "se-2" {
			t.Fatalf("expected subevent on order position, got %q", store.orderPos[0].SubEventID)
		}
	})

	t.Run("redeems vouchers backing the cart", func(t *testing.T) {
		store := seedFinalizeStore(10)
		store.vouchers["v-1"] = domain.Voucher{ID: "v-1", EventID: "event-1", Code: "GOLD", MaxUsages: 2, Redeemed: 0}
		p := livePosition("cp-1", "cart-1", now.Add(time.Minute))
		p.VoucherID = "v-1"
		store.positions = append(store.positions, p)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		if _, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := store.vouchers["v-1"].Redeemed; got != 1 {
			t.Fatalf("expected voucher redeemed once, got %d", got)
		}
	})

	t.Run("voucher consumed elsewhere fails the whole cart", func(t *testing.T) {
		store := seedFinalizeStore(10)
		store.vouchers["v-1"] = domain.Voucher{ID: "v-1", EventID: "event-1", Code: "GOLD", MaxUsages: 1, Redeemed: 1}
		p := livePosition("cp-1", "cart-1", now.Add(time.Minute))
		p.VoucherID = "v-1"
		store.positions = append(store.positions, p)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if !errors.Is(err, domain.ErrVoucherExhausted) {
			t.Fatalf("expected ErrVoucherExhausted, got %v", err)
		}
		if len(store.orders) != 0 {
			t.Fatalf("expected no order created, got %d", len(store.orders))
		}
	})

	t.Run("voucher lapsing between hold and finalize aborts", func(t *testing.T) {
		store := seedFinalizeStore(10)
		until := now.Add(30 * time.Minute)
		store.vouchers["v-1"] = domain.Voucher{ID: "v-1", EventID: "event-1", Code: "GOLD", MaxUsages: 2, ValidUntil: &until}
		p := livePosition("cp-1", "cart-1", now.Add(2*time.Hour))
		p.VoucherID = "v-1"
		store.positions = append(store.positions, p)
		clk := clock.NewFixed(now)
		svc := NewOrderService(store, store, store, store, store, clk)

		// The hold outlives the voucher's validity window.
		clk.Advance(time.Hour)
		_, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-1",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if !errors.Is(err, domain.ErrVoucherExpired) {
			t.Fatalf("expected ErrVoucherExpired, got %v", err)
		}
		if got := store.vouchers["v-1"].Redeemed; got != 0 {
			t.Fatalf("expected no redemption of a lapsed voucher, got %d", got)
		}
		if len(store.orders) != 0 {
			t.Fatalf("expected no order created, got %d", len(store.orders))
		}
	})

	t.Run("missing email is rejected", func(t *testing.T) {
		store := seedFinalizeStore(10, livePosition("cp-1", "cart-1", now.Add(time.Minute)))
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.Finalize(context.Background(), FinalizeInput{CartID: "cart-1", EventID: "event-1"})
		if !errors.Is(err, domain.ErrEmailRequired) {
			t.Fatalf("expected ErrEmailRequired, got %v", err)
		}
	})

	t.Run("unknown cart is not found", func(t *testing.T) {
		store := seedFinalizeStore(10)
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.Finalize(context.Background(), FinalizeInput{
			CartID:  "cart-missing",
			EventID: "event-1",
			Email:   "buyer@example.org",
		})
		if !errors.Is(err, domain.ErrCartNotFound) {
			t.Fatalf("expected ErrCartNotFound, got %v", err)
		}
	})
}

func TestOrderService_Cancel(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	store := seedCartStore(10)
	store.orders["order-1"] = domain.Order{ID: "order-1", EventID: "event-1", Code: "ABCDE", Status: domain.OrderStatusPending}
	store.orderPos = append(store.orderPos, domain.OrderPosition{ID: "op-1", OrderID: "order-1", ProductID: "prod-1"})
	svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

	freed, err := svc.Cancel(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(freed) != 1 || freed[0] != "quota-1" {
		t.Fatalf("expected quota-1 freed, got %v", freed)
	}
	if store.orders["order-1"].Status != domain.OrderStatusCanceled {
		t.Fatalf("expected canceled status, got %s", store.orders["order-1"].Status)
	}
	if !store.orderPos[0].Canceled {
		t.Fatalf("expected position canceled")
	}

	// Canceling again is a no-op.
	freed, err = svc.Cancel(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("expected idempotent cancel, got %v", err)
	}
	if len(freed) != 0 {
		t.Fatalf("expected nothing freed on repeat cancel, got %v", freed)
	}
}

func TestOrderService_MarkPaid(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("records a confirmed payment and flips the order", func(t *testing.T) {
		store := seedCartStore(10)
		store.orders["order-1"] = domain.Order{ID: "order-1", EventID: "event-1", Code: "ABCDE", Status: domain.OrderStatusPending, Total: decimal.NewFromInt(50)}
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		payment, err := svc.MarkPaid(context.Background(), "order-1", decimal.NewFromInt(50))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if payment.State != domain.PaymentStateConfirmed || payment.LocalID != 1 {
			t.Fatalf("expected confirmed payment #1, got %+v", payment)
		}
		if store.orders["order-1"].Status != domain.OrderStatusPaid {
			t.Fatalf("expected paid order, got %s", store.orders["order-1"].Status)
		}
	})

	t.Run("rejects non-pending orders", func(t *testing.T) {
		store := seedCartStore(10)
		store.orders["order-1"] = domain.Order{ID: "order-1", EventID: "event-1", Code: "ABCDE", Status: domain.OrderStatusCanceled}
		svc := NewOrderService(store, store, store, store, store, clock.NewFixed(now))

		_, err := svc.MarkPaid(context.Background(), "order-1", decimal.NewFromInt(50))
		if !errors.Is(err, domain.ErrOrderNotPending) {
			t.Fatalf("expected ErrOrderNotPending, got %v", err)
		}
	})
}
