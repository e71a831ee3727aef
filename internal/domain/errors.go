package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrCartExpired          = errors.New("cart expired")
	ErrVoucherInvalid       = errors.New("voucher invalid")
	ErrVoucherExpired       = errors.New("voucher expired")
	ErrVoucherExhausted     = errors.New("voucher exhausted")
	ErrSeatTaken            = errors.New("seat taken")
	ErrRefundExceedsAmount  = errors.New("refund exceeds payment amount")
	ErrPaymentNotRefundable = errors.New("payment not refundable")
	ErrConflict             = errors.New("conflict, please retry")

	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrQuotaNotFound     = errors.New("quota not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrEventNotFound     = errors.New("event not found")
	ErrCartNotFound      = errors.New("cart not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrEntryNotFound     = errors.New("waiting list entry not found")
	ErrOrderNotPending   = errors.New("order not pending")
	ErrEntryNotOffered   = errors.New("waiting list entry not offered")
	ErrEmailRequired     = errors.New("email required")
	ErrCodeRequired      = errors.New("voucher code required")
	ErrQuotaNameRequired = errors.New("quota name required")
)

// QuotaExceededError reports exactly which quotas ran out of capacity so the
// caller can tell the user what became unavailable.
type QuotaExceededError struct {
	QuotaIDs []string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", strings.Join(e.QuotaIDs, ", "))
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// FieldError attaches an error to a named field of a batch row, so the API
// layer can render per-row, per-field messages.
type FieldError struct {
	Row   int
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("row %d, field %q: %v", e.Row, e.Field, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// BatchError collects field errors from validating a batch request.
type BatchError struct {
	Fields []FieldError
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return strings.Join(msgs, "; ")
}
