package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// EventResolver maps an organizer/slug pair from the URL to an event.
type EventResolver interface {
	GetEventBySlug(ctx context.Context, organizer, slug string) (domain.Event, error)
}

// OrderManager is the minimal interface needed for order endpoints.
type OrderManager interface {
	GetByCode(ctx context.Context, eventID, code string) (domain.Order, error)
	MarkPaid(ctx context.Context, orderID string, amount decimal.Decimal) (domain.Payment, error)
	Cancel(ctx context.Context, orderID string) ([]string, error)
}

// Refunder is the minimal interface needed for the refund endpoint.
type Refunder interface {
	RefundByLocalID(ctx context.Context, orderID string, localID int, amount decimal.Decimal) (domain.Refund, error)
}

// HandleOrders returns an HTTP handler for everything under
// /organizers/{org}/events/{event}/orders/. onFreed, when set, receives the
// quota IDs a cancellation released.
func HandleOrders(events EventResolver, orders OrderManager, refunds Refunder, onFreed func(ctx context.Context, quotaIDs []string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		event, err := events.GetEventBySlug(r.Context(), p.organizer, p.slug)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		order, err := orders.GetByCode(r.Context(), event.ID, p.code)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		switch {
		case len(p.rest) == 0 && r.Method == http.MethodGet:
			writeOrder(w, http.StatusOK, order)
		case len(p.rest) == 1 && p.rest[0] == "payments" && r.Method == http.MethodPost:
			markPaid(w, r, orders, order)
		case len(p.rest) == 1 && p.rest[0] == "cancel" && r.Method == http.MethodPost:
			cancelOrder(w, r, orders, order, onFreed)
		case len(p.rest) == 3 && p.rest[0] == "payments" && p.rest[2] == "refund" && r.Method == http.MethodPost:
			localID, err := strconv.Atoi(p.rest[1])
			if err != nil || localID <= 0 {
				writeError(w, http.StatusNotFound, codePaymentNotFound, domain.ErrPaymentNotFound.Error())
				return
			}
			refundPayment(w, r, refunds, order, localID)
		case len(p.rest) == 0 || p.rest[0] == "payments" || p.rest[0] == "cancel":
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

type orderPath struct {
	organizer string
	slug      string
	code      string
	rest      []string
}

func parseOrderPath(path string) (orderPath, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 6 {
		return orderPath{}, false
	}
	if parts[0] != "organizers" || parts[2] != "events" || parts[4] != "orders" {
		return orderPath{}, false
	}
	if parts[1] == "" || parts[3] == "" || parts[5] == "" {
		return orderPath{}, false
	}
	return orderPath{
		organizer: parts[1],
		slug:      parts[3],
		code:      parts[5],
		rest:      parts[6:],
	}, true
}

func writeOrder(w http.ResponseWriter, status int, order domain.Order) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(orderResponse{
		ID:        order.ID,
		EventID:   order.EventID,
		Code:      order.Code,
		Email:     order.Email,
		Status:    string(order.Status),
		Total:     order.Total,
		CreatedAt: order.CreatedAt,
	})
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type paymentResponse struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	LocalID   int             `json:"local_id"`
	Amount    decimal.Decimal `json:"amount"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

func markPaid(w http.ResponseWriter, r *http.Request, orders OrderManager, order domain.Order) {
	var req amountRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	payment, err := orders.MarkPaid(r.Context(), order.ID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(paymentResponse{
		ID:        payment.ID,
		OrderID:   payment.OrderID,
		LocalID:   payment.LocalID,
		Amount:    payment.Amount,
		State:     string(payment.State),
		CreatedAt: payment.CreatedAt,
	})
}

func cancelOrder(w http.ResponseWriter, r *http.Request, orders OrderManager, order domain.Order, onFreed func(ctx context.Context, quotaIDs []string)) {
	freed, err := orders.Cancel(r.Context(), order.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if onFreed != nil && len(freed) > 0 {
		onFreed(r.Context(), freed)
	}

	order.Status = domain.OrderStatusCanceled
	writeOrder(w, http.StatusOK, order)
}

type refundResponse struct {
	ID        string          `json:"id"`
	PaymentID string          `json:"payment_id"`
	LocalID   int             `json:"local_id"`
	Amount    decimal.Decimal `json:"amount"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// refundPayment guards the money path. Amount violations come back as a
// field-error body so clients can attach the message to the amount input.
func refundPayment(w http.ResponseWriter, r *http.Request, refunds Refunder, order domain.Order, localID int) {
	var req amountRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	refund, err := refunds.RefundByLocalID(r.Context(), order.ID, localID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRefundExceedsAmount), errors.Is(err, domain.ErrInvalidAmount):
			writeAmountError(w, err.Error())
		case errors.Is(err, domain.ErrPaymentNotRefundable):
			writeError(w, http.StatusBadRequest, codePaymentNotRefundable, err.Error())
		default:
			writeDomainError(w, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(refundResponse{
		ID:        refund.ID,
		PaymentID: refund.PaymentID,
		LocalID:   refund.LocalID,
		Amount:    refund.Amount,
		State:     string(refund.State),
		CreatedAt: refund.CreatedAt,
	})
}

func writeAmountError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string][]string{"amount": {msg}})
}
