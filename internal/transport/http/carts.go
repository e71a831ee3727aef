package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/app"
	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// CartManager is the minimal interface needed for cart endpoints.
type CartManager interface {
	AddToCart(ctx context.Context, in app.AddToCartInput) ([]domain.CartPosition, error)
	ListCart(ctx context.Context, cartID string) ([]domain.CartPosition, error)
	RemoveFromCart(ctx context.Context, cartID, positionID string) error
	ExtendCart(ctx context.Context, cartID string) (int, error)
}

// CartFinalizer is the minimal interface needed for checkout.
type CartFinalizer interface {
	Finalize(ctx context.Context, in app.FinalizeInput) (domain.Order, error)
}

// HandleCarts returns an HTTP handler for everything under /carts/.
func HandleCarts(carts CartManager, orders CartFinalizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cartID, rest, ok := parseCartPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case len(rest) == 0 && r.Method == http.MethodGet:
			listCart(w, r, carts, cartID)
		case len(rest) == 1 && rest[0] == "positions" && r.Method == http.MethodPost:
			addToCart(w, r, carts, cartID)
		case len(rest) == 2 && rest[0] == "positions" && r.Method == http.MethodDelete:
			removeFromCart(w, r, carts, cartID, rest[1])
		case len(rest) == 1 && rest[0] == "extend" && r.Method == http.MethodPost:
			extendCart(w, r, carts, cartID)
		case len(rest) == 1 && rest[0] == "checkout" && r.Method == http.MethodPost:
			checkout(w, r, orders, cartID)
		case len(rest) == 0 || rest[0] == "positions" || rest[0] == "extend" || rest[0] == "checkout":
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseCartPath(path string) (cartID string, rest []string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "carts" || parts[1] == "" {
		return "", nil, false
	}
	return parts[1], parts[2:], true
}

type addToCartRequest struct {
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
	SubEventID  string `json:"subevent_id,omitempty"`
	EventID     string `json:"event_id"`
	VoucherCode string `json:"voucher_code,omitempty"`
	Seat        string `json:"seat,omitempty"`
	Quantity    int    `json:"quantity"`
}

type cartPositionResponse struct {
	ID          string          `json:"id"`
	CartID      string          `json:"cart_id"`
	ProductID   string          `json:"product_id"`
	VariationID string          `json:"variation_id,omitempty"`
	VoucherID   string          `json:"voucher_id,omitempty"`
	Seat        string          `json:"seat,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

func cartPositionsResponse(positions []domain.CartPosition) []cartPositionResponse {
	resp := make([]cartPositionResponse, 0, len(positions))
	for _, p := range positions {
		resp = append(resp, cartPositionResponse{
			ID:          p.ID,
			CartID:      p.CartID,
			ProductID:   p.ProductID,
			VariationID: p.VariationID,
			VoucherID:   p.VoucherID,
			Seat:        p.Seat,
			Price:       p.Price,
			ExpiresAt:   p.ExpiresAt,
		})
	}
	return resp
}

func addToCart(w http.ResponseWriter, r *http.Request, carts CartManager, cartID string) {
	var req addToCartRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	positions, err := carts.AddToCart(r.Context(), app.AddToCartInput{
		CartID:      cartID,
		EventID:     req.EventID,
		SubEventID:  req.SubEventID,
		ProductID:   req.ProductID,
		VariationID: req.VariationID,
		VoucherCode: req.VoucherCode,
		Seat:        req.Seat,
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(cartPositionsResponse(positions))
}

func listCart(w http.ResponseWriter, r *http.Request, carts CartManager, cartID string) {
	positions, err := carts.ListCart(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cartPositionsResponse(positions))
}

func removeFromCart(w http.ResponseWriter, r *http.Request, carts CartManager, cartID, positionID string) {
	if err := carts.RemoveFromCart(r.Context(), cartID, positionID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type extendCartResponse struct {
	Extended int `json:"extended"`
}

func extendCart(w http.ResponseWriter, r *http.Request, carts CartManager, cartID string) {
	n, err := carts.ExtendCart(r.Context(), cartID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(extendCartResponse{Extended: n})
}

type checkoutRequest struct {
	EventID string `json:"event_id"`
	Email   string `json:"email"`
}

type orderResponse struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Code      string          `json:"code"`
	Email     string          `json:"email"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

func checkout(w http.ResponseWriter, r *http.Request, orders CartFinalizer, cartID string) {
	var req checkoutRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	order, err := orders.Finalize(r.Context(), app.FinalizeInput{
		CartID:  cartID,
		EventID: req.EventID,
		Email:   req.Email,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
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
