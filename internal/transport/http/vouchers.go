package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/app"
	"github.com/fossasia/eventyay-sub001/internal/domain"
)

// VoucherCreator is the minimal interface needed for batch voucher creation.
type VoucherCreator interface {
	Create(ctx context.Context, batch []app.VoucherInput) ([]domain.Voucher, error)
}

// VoucherChecker is the minimal interface needed to validate a voucher for a
// prospective quantity.
type VoucherChecker interface {
	ValidateAndReserve(ctx context.Context, in app.ReserveInput) (domain.Voucher, error)
}

type voucherRequest struct {
	EventID     string `json:"event_id"`
	Code        string `json:"code"`
	MaxUsages   int    `json:"max_usages"`
	ValidUntil  string `json:"valid_until,omitempty"`
	BlockQuota  bool   `json:"block_quota,omitempty"`
	QuotaID     string `json:"quota_id,omitempty"`
	ProductID   string `json:"product_id,omitempty"`
	VariationID string `json:"variation_id,omitempty"`
	SubEventID  string `json:"subevent_id,omitempty"`
	Seat        string `json:"seat,omitempty"`
}

type voucherResponse struct {
	ID         string     `json:"id"`
	EventID    string     `json:"event_id"`
	Code       string     `json:"code"`
	MaxUsages  int        `json:"max_usages"`
	Redeemed   int        `json:"redeemed"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	BlockQuota bool       `json:"block_quota"`
}

type fieldErrorResponse struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type batchErrorResponse struct {
	Errors []fieldErrorResponse `json:"errors"`
}

// HandleCreateVouchers returns an HTTP handler for batch voucher creation.
// Validation failures report every offending row and field at once so a
// thousand-voucher upload does not fail one row at a time.
func HandleCreateVouchers(svc VoucherCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var reqs []voucherRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&reqs); err != nil || len(reqs) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		batch := make([]app.VoucherInput, 0, len(reqs))
		var fields []fieldErrorResponse
		for i, req := range reqs {
			in := app.VoucherInput{
				EventID:     req.EventID,
				Code:        req.Code,
				MaxUsages:   req.MaxUsages,
				BlockQuota:  req.BlockQuota,
				QuotaID:     req.QuotaID,
				ProductID:   req.ProductID,
				VariationID: req.VariationID,
				SubEventID:  req.SubEventID,
				Seat:        req.Seat,
			}
			if req.ValidUntil != "" {
				parsed, err := time.Parse(time.RFC3339, req.ValidUntil)
				if err != nil {
					fields = append(fields, fieldErrorResponse{Row: i, Field: "valid_until", Message: "invalid valid_until format"})
					continue
				}
				in.ValidUntil = &parsed
			}
			batch = append(batch, in)
		}
		if len(fields) > 0 {
			writeBatchError(w, fields)
			return
		}

		vouchers, err := svc.Create(r.Context(), batch)
		if err != nil {
			var batchErr *domain.BatchError
			if errors.As(err, &batchErr) {
				resp := make([]fieldErrorResponse, 0, len(batchErr.Fields))
				for _, f := range batchErr.Fields {
					resp = append(resp, fieldErrorResponse{Row: f.Row, Field: f.Field, Message: f.Err.Error()})
				}
				writeBatchError(w, resp)
				return
			}
			writeDomainError(w, err)
			return
		}

		resp := make([]voucherResponse, 0, len(vouchers))
		for _, v := range vouchers {
			resp = append(resp, voucherResponse{
				ID:         v.ID,
				EventID:    v.EventID,
				Code:       v.Code,
				MaxUsages:  v.MaxUsages,
				Redeemed:   v.Redeemed,
				ValidUntil: v.ValidUntil,
				BlockQuota: v.BlockQuota,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func writeBatchError(w http.ResponseWriter, fields []fieldErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(batchErrorResponse{Errors: fields})
}

type redeemCheckRequest struct {
	EventID     string `json:"event_id"`
	Code        string `json:"code"`
	ProductID   string `json:"product_id,omitempty"`
	VariationID string `json:"variation_id,omitempty"`
	QuotaID     string `json:"quota_id,omitempty"`
	Quantity    int    `json:"quantity"`
}

// HandleVoucherCheck returns an HTTP handler that validates a voucher for a
// requested quantity without consuming anything.
func HandleVoucherCheck(svc VoucherChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req redeemCheckRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		v, err := svc.ValidateAndReserve(r.Context(), app.ReserveInput{
			EventID:     req.EventID,
			Code:        req.Code,
			ProductID:   req.ProductID,
			VariationID: req.VariationID,
			QuotaID:     req.QuotaID,
			Quantity:    req.Quantity,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(voucherResponse{
			ID:         v.ID,
			EventID:    v.EventID,
			Code:       v.Code,
			MaxUsages:  v.MaxUsages,
			Redeemed:   v.Redeemed,
			ValidUntil: v.ValidUntil,
			BlockQuota: v.BlockQuota,
		})
	}
}
