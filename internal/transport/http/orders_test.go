package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeEventResolver struct {
	events map[string]domain.Event
}

func (f *fakeEventResolver) GetEventBySlug(_ context.Context, organizer, slug string) (domain.Event, error) {
	e, ok := f.events[organizer+"/"+slug]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return e, nil
}

type fakeOrderManager struct {
	getFn    func(ctx context.Context, eventID, code string) (domain.Order, error)
	payFn    func(ctx context.Context, orderID string, amount decimal.Decimal) (domain.Payment, error)
	cancelFn func(ctx context.Context, orderID string) ([]string, error)
}

func (f *fakeOrderManager) GetByCode(ctx context.Context, eventID, code string) (domain.Order, error) {
	return f.getFn(ctx, eventID, code)
}

func (f *fakeOrderManager) MarkPaid(ctx context.Context, orderID string, amount decimal.Decimal) (domain.Payment, error) {
	return f.payFn(ctx, orderID, amount)
}

func (f *fakeOrderManager) Cancel(ctx context.Context, orderID string) ([]string, error) {
	return f.cancelFn(ctx, orderID)
}

type fakeRefunder struct {
	refundFn func(ctx context.Context, orderID string, localID int, amount decimal.Decimal) (domain.Refund, error)
}

func (f *fakeRefunder) RefundByLocalID(ctx context.Context, orderID string, localID int, amount decimal.Decimal) (domain.Refund, error) {
	return f.refundFn(ctx, orderID, localID, amount)
}

func orderFixture() (*fakeEventResolver, *fakeOrderManager) {
	events := &fakeEventResolver{events: map[string]domain.Event{
		"demo/conf": {ID: "event-1", Organizer: "demo", Slug: "conf"},
	}}
	orders := &fakeOrderManager{
		getFn: func(_ context.Context, eventID, code string) (domain.Order, error) {
			if eventID != "event-1" || code != "ABCDE" {
				return domain.Order{}, domain.ErrOrderNotFound
			}
			return domain.Order{ID: "order-1", EventID: eventID, Code: code, Email: "buyer@example.org", Status: domain.OrderStatusPending, Total: decimal.NewFromInt(100)}, nil
		},
	}
	return events, orders
}

func TestHandleOrders_Get(t *testing.T) {
	t.Parallel()

	events, orders := orderFixture()
	handler := HandleOrders(events, orders, nil, nil)

	t.Run("returns the order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/organizers/demo/events/conf/orders/ABCDE", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp orderResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if resp.Code != "ABCDE" || resp.Status != "pending" {
			t.Fatalf("unexpected body %+v", resp)
		}
	})

	t.Run("unknown event is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/organizers/demo/events/missing/orders/ABCDE", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != codeEventNotFound {
			t.Fatalf("expected event_not_found, got %q", resp.Code)
		}
	})

	t.Run("unknown order code is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/organizers/demo/events/conf/orders/ZZZZZ", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("malformed path is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/organizers/demo/orders/ABCDE", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestHandleOrders_MarkPaid(t *testing.T) {
	t.Parallel()

	events, orders := orderFixture()
	orders.payFn = func(_ context.Context, orderID string, amount decimal.Decimal) (domain.Payment, error) {
		if orderID != "order-1" {
			t.Fatalf("unexpected order ID %q", orderID)
		}
		return domain.Payment{ID: "pay-1", OrderID: orderID, LocalID: 1, Amount: amount, State: domain.PaymentStateConfirmed}, nil
	}
	handler := HandleOrders(events, orders, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/payments", strings.NewReader(`{"amount":"100"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp paymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.LocalID != 1 || resp.State != "confirmed" || !resp.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected body %+v", resp)
	}
}

func TestHandleOrders_Cancel(t *testing.T) {
	t.Parallel()

	events, orders := orderFixture()
	orders.cancelFn = func(_ context.Context, orderID string) ([]string, error) {
		return []string{"quota-1"}, nil
	}

	var notified []string
	handler := HandleOrders(events, orders, nil, func(_ context.Context, quotaIDs []string) {
		notified = quotaIDs
	})

	req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/cancel", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp orderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Status != "canceled" {
		t.Fatalf("expected canceled order, got %+v", resp)
	}
	if len(notified) != 1 || notified[0] != "quota-1" {
		t.Fatalf("expected freed quotas forwarded, got %v", notified)
	}
}

func TestHandleOrders_Refund(t *testing.T) {
	t.Parallel()

	t.Run("refunds within the captured amount", func(t *testing.T) {
		events, orders := orderFixture()
		refunds := &fakeRefunder{
			refundFn: func(_ context.Context, orderID string, localID int, amount decimal.Decimal) (domain.Refund, error) {
				if orderID != "order-1" || localID != 1 {
					t.Fatalf("unexpected args %q %d", orderID, localID)
				}
				return domain.Refund{ID: "ref-1", PaymentID: "pay-1", LocalID: 1, Amount: amount, State: domain.RefundStateDone}, nil
			},
		}
		handler := HandleOrders(events, orders, refunds, nil)

		req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/payments/1/refund", strings.NewReader(`{"amount":"80"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp refundResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if resp.State != "done" || !resp.Amount.Equal(decimal.NewFromInt(80)) {
			t.Fatalf("unexpected body %+v", resp)
		}
	})

	t.Run("amount violations come back as a field error", func(t *testing.T) {
		events, orders := orderFixture()
		refunds := &fakeRefunder{
			refundFn: func(context.Context, string, int, decimal.Decimal) (domain.Refund, error) {
				return domain.Refund{}, domain.ErrRefundExceedsAmount
			},
		}
		handler := HandleOrders(events, orders, refunds, nil)

		req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/payments/1/refund", strings.NewReader(`{"amount":"500"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		var resp map[string][]string
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(resp["amount"]) != 1 {
			t.Fatalf("expected one amount message, got %+v", resp)
		}
	})

	t.Run("unrefundable payment is a 400 envelope", func(t *testing.T) {
		events, orders := orderFixture()
		refunds := &fakeRefunder{
			refundFn: func(context.Context, string, int, decimal.Decimal) (domain.Refund, error) {
				return domain.Refund{}, domain.ErrPaymentNotRefundable
			},
		}
		handler := HandleOrders(events, orders, refunds, nil)

		req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/payments/1/refund", strings.NewReader(`{"amount":"10"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != codePaymentNotRefundable {
			t.Fatalf("expected payment_not_refundable, got %q", resp.Code)
		}
	})

	t.Run("non-numeric payment index is a 404", func(t *testing.T) {
		events, orders := orderFixture()
		handler := HandleOrders(events, orders, &fakeRefunder{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/payments/first/refund", strings.NewReader(`{"amount":"10"}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Code != codePaymentNotFound {
			t.Fatalf("expected payment_not_found, got %q", resp.Code)
		}
	})

	t.Run("two racing refunds admit exactly one", func(t *testing.T) {
		events, orders := orderFixture()

		// Serializes like the database row lock: the remaining balance is
		// checked and decremented atomically per request.
		var mu sync.Mutex
		remaining := decimal.NewFromInt(100)
		refunds := &fakeRefunder{
			refundFn: func(_ context.Context, _ string, _ int, amount decimal.Decimal) (domain.Refund, error) {
				mu.Lock()
				defer mu.Unlock()
				if amount.GreaterThan(remaining) {
					return domain.Refund{}, domain.ErrRefundExceedsAmount
				}
				remaining = remaining.Sub(amount)
				return domain.Refund{ID: "ref-1", PaymentID: "pay-1", LocalID: 1, Amount: amount, State: domain.RefundStateDone}, nil
			},
		}
		handler := HandleOrders(events, orders, refunds, nil)

		codes := make(chan int, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodPost, "/organizers/demo/events/conf/orders/ABCDE/payments/1/refund", strings.NewReader(`{"amount":"80"}`))
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)
				codes <- rec.Code
			}()
		}
		wg.Wait()
		close(codes)

		var ok, rejected int
		for code := range codes {
			switch code {
			case http.StatusOK:
				ok++
			case http.StatusBadRequest:
				rejected++
			default:
				t.Fatalf("unexpected status %d", code)
			}
		}
		if ok != 1 || rejected != 1 {
			t.Fatalf("expected one success and one rejection, got %d/%d", ok, rejected)
		}
	})
}
