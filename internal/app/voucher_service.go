package app

import (
	"context"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
)

type VoucherStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindByCode(ctx context.Context, eventID, code string) (domain.Voucher, error)
	GetForUpdate(ctx context.Context, id string) (domain.Voucher, error)
	IncrementRedeemed(ctx context.Context, id string, qty int) error
	Create(ctx context.Context, v domain.Voucher) error
}

// VoucherCartUses counts live cart positions attached to a voucher, so
// capacity promised to carts counts against the usage limit before it is
// formally redeemed.
type VoucherCartUses interface {
	CountLiveVoucherUses(ctx context.Context, voucherID string, now time.Time) (int, error)
}

// VoucherService validates voucher batches, reserves usages and redeems
// them. Usage accounting follows one rule throughout: the pre-checks are
// advisory, the decision is always re-made under the voucher's row lock.
type VoucherService struct {
	vouchers VoucherStore
	cartUses VoucherCartUses
	quotas   QuotaLedger
	clock    clock.Clock
}

func NewVoucherService(vouchers VoucherStore, cartUses VoucherCartUses, quotas QuotaLedger, clk clock.Clock) *VoucherService {
	return &VoucherService{
		vouchers: vouchers,
		cartUses: cartUses,
		quotas:   quotas,
		clock:    clk,
	}
}

type VoucherInput struct {
	EventID     string
	Code        string
	MaxUsages   int
	ValidUntil  *time.Time
	BlockQuota  bool
	QuotaID     string
	ProductID   string
	VariationID string
	SubEventID  string
	Seat        string
}

// ValidateBatch rejects duplicate codes and duplicate seats within one batch
// before any lock is taken. Errors are reported per row and field so the
// API layer can render them next to the offending input.
func (s *VoucherService) ValidateBatch(batch []VoucherInput) error {
	codes := make(map[string]struct{}, len(batch))
	seats := make(map[[2]string]struct{}, len(batch))

	var fields []domain.FieldError
	for i, in := range batch {
		if in.Code == "" {
			fields = append(fields, domain.FieldError{Row: i, Field: "code", Err: domain.ErrCodeRequired})
			continue
		}
		if _, dup := codes[in.Code]; dup {
			fields = append(fields, domain.FieldError{Row: i, Field: "code", Err: domain.ErrVoucherInvalid})
		} else {
			codes[in.Code] = struct{}{}
		}
		if in.Seat != "" {
			key := [2]string{in.Seat, in.SubEventID}
			if _, dup := seats[key]; dup {
				fields = append(fields, domain.FieldError{Row: i, Field: "seat", Err: domain.ErrSeatTaken})
			} else {
				seats[key] = struct{}{}
			}
		}
		if in.MaxUsages <= 0 {
			fields = append(fields, domain.FieldError{Row: i, Field: "max_usages", Err: domain.ErrInvalidQuantity})
		}
	}
	if len(fields) > 0 {
		return &domain.BatchError{Fields: fields}
	}
	return nil
}

type ReserveInput struct {
	EventID     string
	Code        string
	ProductID   string
	VariationID string
	QuotaID     string
	Quantity    int
}

// ValidateAndReserve checks a voucher end to end for the requested quantity:
// existence, validity window, product/quota scope, then usage headroom under
// the row lock (counting usages promised to live carts). It mutates nothing;
// the cart and finalize paths do the actual consumption.
func (s *VoucherService) ValidateAndReserve(ctx context.Context, in ReserveInput) (domain.Voucher, error) {
	if in.Quantity <= 0 {
		return domain.Voucher{}, domain.ErrInvalidQuantity
	}
	if in.Code == "" {
		return domain.Voucher{}, domain.ErrCodeRequired
	}

	v, err := s.vouchers.FindByCode(ctx, in.EventID, in.Code)
	if err != nil {
		return domain.Voucher{}, err
	}
	if v.Expired(s.clock.Now()) {
		return domain.Voucher{}, domain.ErrVoucherExpired
	}
	if !v.MatchesProduct(in.ProductID, in.VariationID) {
		return domain.Voucher{}, domain.ErrVoucherInvalid
	}
	if v.QuotaID != "" && in.QuotaID != "" && v.QuotaID != in.QuotaID {
		return domain.Voucher{}, domain.ErrVoucherInvalid
	}

	var locked domain.Voucher
	err = s.vouchers.WithTx(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		locked, err = s.vouchers.GetForUpdate(txCtx, v.ID)
		if err != nil {
			return err
		}
		if locked.Expired(now) {
			return domain.ErrVoucherExpired
		}
		uses, err := s.cartUses.CountLiveVoucherUses(txCtx, locked.ID, now)
		if err != nil {
			return err
		}
		if locked.Redeemed+uses+in.Quantity > locked.MaxUsages {
			return domain.ErrVoucherExhausted
		}
		return nil
	})
	if err != nil {
		return domain.Voucher{}, err
	}
	return locked, nil
}

// Redeem consumes qty usages of a voucher. Callers already inside a
// transaction (the finalizer) join it via the context. The limit is
// re-checked on the locked row; the pre-check a caller may have done earlier
// decides nothing.
func (s *VoucherService) Redeem(ctx context.Context, voucherID string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	return s.vouchers.WithTx(ctx, func(txCtx context.Context) error {
		v, err := s.vouchers.GetForUpdate(txCtx, voucherID)
		if err != nil {
			return err
		}
		if v.Redeemed+qty > v.MaxUsages {
			return domain.ErrVoucherExhausted
		}
		return s.vouchers.IncrementRedeemed(txCtx, voucherID, qty)
	})
}

// Create validates and inserts a batch of vouchers. A block-quota voucher
// reserves capacity the moment it exists, so its creation runs the same
// locked capacity check as a cart hold, demanding max_usages units.
func (s *VoucherService) Create(ctx context.Context, batch []VoucherInput) ([]domain.Voucher, error) {
	if err := s.ValidateBatch(batch); err != nil {
		return nil, err
	}

	created := make([]domain.Voucher, 0, len(batch))
	err := withRetry(ctx, func(ctx context.Context) error {
		created = created[:0]
		return s.vouchers.WithTx(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()
			for _, in := range batch {
				v := domain.Voucher{
					ID:          newID(),
					EventID:     in.EventID,
					Code:        in.Code,
					MaxUsages:   in.MaxUsages,
					ValidUntil:  in.ValidUntil,
					BlockQuota:  in.BlockQuota,
					QuotaID:     in.QuotaID,
					ProductID:   in.ProductID,
					VariationID: in.VariationID,
					Seat:        in.Seat,
					CreatedAt:   now,
				}

				if v.BlockQuota {
					quotaIDs, err := s.blockedQuotaIDs(txCtx, v)
					if err != nil {
						return err
					}
					if len(quotaIDs) > 0 {
						need := make(map[string]int, len(quotaIDs))
						for _, id := range quotaIDs {
							need[id] = v.MaxUsages
						}
						if err := checkQuotaCapacity(txCtx, s.quotas, quotaIDs, need, now, ""); err != nil {
							return err
						}
					}
				}

				if err := s.vouchers.Create(txCtx, v); err != nil {
					return err
				}
				created = append(created, v)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *VoucherService) blockedQuotaIDs(ctx context.Context, v domain.Voucher) ([]string, error) {
	if v.QuotaID != "" {
		return []string{v.QuotaID}, nil
	}
	if v.ProductID != "" {
		return s.quotas.CoveringQuotaIDs(ctx, v.EventID, "", v.ProductID, v.VariationID)
	}
	return nil, nil
}
