package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fossasia/eventyay-sub001/internal/domain"
)

// AvailabilityComputer is the minimal interface needed for availability reads.
type AvailabilityComputer interface {
	Compute(ctx context.Context, quotaIDs []string) (map[string]domain.Availability, error)
}

type availabilityResponse struct {
	QuotaID         string `json:"quota_id"`
	Unlimited       bool   `json:"unlimited"`
	TotalSize       int    `json:"total_size"`
	Remaining       int    `json:"remaining"`
	Available       bool   `json:"available"`
	PaidOrders      int    `json:"paid_orders"`
	PendingOrders   int    `json:"pending_orders"`
	CartPositions   int    `json:"cart_positions"`
	BlockedVouchers int    `json:"blocked_vouchers"`
}

// HandleAvailability returns an HTTP handler for batched availability reads.
// Quotas are passed as repeated ?quota= parameters; unknown IDs are silently
// absent from the response.
func HandleAvailability(svc AvailabilityComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		quotaIDs := r.URL.Query()["quota"]
		if len(quotaIDs) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidID, "at least one quota parameter is required")
			return
		}

		results, err := svc.Compute(r.Context(), quotaIDs)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]availabilityResponse, 0, len(results))
		seen := make(map[string]struct{}, len(results))
		for _, id := range quotaIDs {
			a, ok := results[id]
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			resp = append(resp, availabilityResponse{
				QuotaID:         a.QuotaID,
				Unlimited:       a.Unlimited,
				TotalSize:       a.TotalSize,
				Remaining:       a.Remaining,
				Available:       a.Available(),
				PaidOrders:      a.PaidOrders,
				PendingOrders:   a.PendingOrders,
				CartPositions:   a.CartPositions,
				BlockedVouchers: a.BlockedVouchers,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
