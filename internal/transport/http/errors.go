package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fossasia/eventyay-sub001/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeInvalidID            = "invalid_id"
	codeInvalidQuantity      = "invalid_quantity"
	codeInvalidAmount        = "invalid_amount"
	codeEmailRequired        = "email_required"
	codeCodeRequired         = "voucher_code_required"
	codeQuotaNameRequired    = "quota_name_required"
	codeQuotaExceeded        = "quota_exceeded"
	codeCartExpired          = "cart_expired"
	codeCartNotFound         = "cart_not_found"
	codeQuotaNotFound        = "quota_not_found"
	codeProductNotFound      = "product_not_found"
	codeEventNotFound        = "event_not_found"
	codeOrderNotFound        = "order_not_found"
	codePaymentNotFound      = "payment_not_found"
	codeEntryNotFound        = "entry_not_found"
	codeVoucherInvalid       = "voucher_invalid"
	codeVoucherExpired       = "voucher_expired"
	codeVoucherExhausted     = "voucher_exhausted"
	codeSeatTaken            = "seat_taken"
	codeOrderNotPending      = "order_not_pending"
	codeEntryNotOffered      = "entry_not_offered"
	codeRefundExceedsAmount  = "refund_exceeds_amount"
	codePaymentNotRefundable = "payment_not_refundable"
	codeConflict             = "conflict"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps a service error onto the shared status/code table.
// Handlers with endpoint-specific shapes (refunds, voucher batches) intercept
// their special cases before falling back to this.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, codeInvalidAmount, err.Error())
	case errors.Is(err, domain.ErrEmailRequired):
		writeError(w, http.StatusBadRequest, codeEmailRequired, err.Error())
	case errors.Is(err, domain.ErrCodeRequired):
		writeError(w, http.StatusBadRequest, codeCodeRequired, err.Error())
	case errors.Is(err, domain.ErrQuotaNameRequired):
		writeError(w, http.StatusBadRequest, codeQuotaNameRequired, err.Error())
	case errors.Is(err, domain.ErrVoucherInvalid):
		writeError(w, http.StatusBadRequest, codeVoucherInvalid, err.Error())
	case errors.Is(err, domain.ErrVoucherExpired):
		writeError(w, http.StatusBadRequest, codeVoucherExpired, err.Error())
	case errors.Is(err, domain.ErrQuotaNotFound):
		writeError(w, http.StatusNotFound, codeQuotaNotFound, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, codeProductNotFound, err.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, codeEventNotFound, err.Error())
	case errors.Is(err, domain.ErrCartNotFound):
		writeError(w, http.StatusNotFound, codeCartNotFound, err.Error())
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case errors.Is(err, domain.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, codePaymentNotFound, err.Error())
	case errors.Is(err, domain.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, codeEntryNotFound, err.Error())
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, codeQuotaExceeded, err.Error())
	case errors.Is(err, domain.ErrSeatTaken):
		writeError(w, http.StatusConflict, codeSeatTaken, err.Error())
	case errors.Is(err, domain.ErrVoucherExhausted):
		writeError(w, http.StatusConflict, codeVoucherExhausted, err.Error())
	case errors.Is(err, domain.ErrCartExpired):
		writeError(w, http.StatusConflict, codeCartExpired, err.Error())
	case errors.Is(err, domain.ErrOrderNotPending):
		writeError(w, http.StatusConflict, codeOrderNotPending, err.Error())
	case errors.Is(err, domain.ErrEntryNotOffered):
		writeError(w, http.StatusConflict, codeEntryNotOffered, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, codeConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
