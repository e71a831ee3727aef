package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/app"
	"github.com/fossasia/eventyay-sub001/internal/domain"
)

// WaitlistManager is the minimal interface needed for waiting list endpoints.
type WaitlistManager interface {
	Join(ctx context.Context, in app.JoinInput) (domain.WaitingListEntry, error)
	Claim(ctx context.Context, entryID, cartID string) error
}

type joinRequest struct {
	EventID     string `json:"event_id"`
	SubEventID  string `json:"subevent_id,omitempty"`
	ProductID   string `json:"product_id"`
	VariationID string `json:"variation_id,omitempty"`
	Email       string `json:"email"`
}

type entryResponse struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	ProductID    string     `json:"product_id"`
	VariationID  string     `json:"variation_id,omitempty"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	OfferExpires *time.Time `json:"offer_expires,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HandleWaitlist returns an HTTP handler for joining the waiting list and
// claiming offers.
func HandleWaitlist(svc WaitlistManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, action, ok := parseWaitlistPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case entryID == "" && r.Method == http.MethodPost:
			joinWaitlist(w, r, svc)
		case action == "claim" && r.Method == http.MethodPost:
			claimOffer(w, r, svc, entryID)
		case entryID == "" || action == "claim":
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseWaitlistPath(path string) (entryID, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] != "waitinglist" {
		return "", "", false
	}
	switch len(parts) {
	case 1:
		return "", "", true
	case 3:
		if parts[1] == "" {
			return "", "", false
		}
		return parts[1], parts[2], true
	default:
		return "", "", false
	}
}

func joinWaitlist(w http.ResponseWriter, r *http.Request, svc WaitlistManager) {
	var req joinRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	entry, err := svc.Join(r.Context(), app.JoinInput{
		EventID:     req.EventID,
		SubEventID:  req.SubEventID,
		ProductID:   req.ProductID,
		VariationID: req.VariationID,
		Email:       req.Email,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(entryResponse{
		ID:          entry.ID,
		EventID:     entry.EventID,
		ProductID:   entry.ProductID,
		VariationID: entry.VariationID,
		Email:       entry.Email,
		Status:      string(entry.Status),
		CreatedAt:   entry.CreatedAt,
	})
}

type claimRequest struct {
	CartID string `json:"cart_id"`
}

func claimOffer(w http.ResponseWriter, r *http.Request, svc WaitlistManager, entryID string) {
	var req claimRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	if err := svc.Claim(r.Context(), entryID, req.CartID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
