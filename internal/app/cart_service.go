package app

import (
	"context"
	"log"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
)

type CartStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertPositions(ctx context.Context, positions []domain.CartPosition) error
	PositionsForCart(ctx context.Context, cartID string) ([]domain.CartPosition, error)
	DeletePosition(ctx context.Context, cartID, positionID string) error
	ExtendCart(ctx context.Context, cartID string, expiresAt, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
	SeatTaken(ctx context.Context, eventID, seat string, now time.Time) (bool, error)
	CountLiveVoucherUses(ctx context.Context, voucherID string, now time.Time) (int, error)
}

// VoucherAccess is the slice of voucher storage the cart path needs.
type VoucherAccess interface {
	FindByCode(ctx context.Context, eventID, code string) (domain.Voucher, error)
	GetForUpdate(ctx context.Context, id string) (domain.Voucher, error)
}

// CatalogAccess resolves products and variations for pricing.
type CatalogAccess interface {
	GetProduct(ctx context.Context, eventID, productID string) (domain.Product, error)
	GetVariation(ctx context.Context, productID, variationID string) (domain.Variation, error)
}

// CartService creates, extends and reaps the short-lived holds that consume
// quota capacity before an order exists. AddToCart is the only write path
// that may take capacity pessimistically; everything it admits was verified
// under the covering quotas' row locks.
type CartService struct {
	carts    CartStore
	quotas   QuotaLedger
	vouchers VoucherAccess
	catalog  CatalogAccess
	cache    AvailabilityCache
	clock    clock.Clock
	holdTTL  time.Duration
	logger   *log.Logger
}

const defaultHoldTTL = 30 * time.Minute

type CartServiceOption func(*CartService)

// WithHoldTTL overrides the default lifetime of new holds.
func WithHoldTTL(d time.Duration) CartServiceOption {
	return func(s *CartService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithCartCache lets the service drop stale advisory entries after writes.
func WithCartCache(c AvailabilityCache) CartServiceOption {
	return func(s *CartService) {
		s.cache = c
	}
}

// WithCartLogger sets the logger used by the background reaper.
func WithCartLogger(l *log.Logger) CartServiceOption {
	return func(s *CartService) {
		s.logger = l
	}
}

func NewCartService(carts CartStore, quotas QuotaLedger, vouchers VoucherAccess, catalog CatalogAccess, clk clock.Clock, opts ...CartServiceOption) *CartService {
	svc := &CartService{
		carts:    carts,
		quotas:   quotas,
		vouchers: vouchers,
		catalog:  catalog,
		clock:    clk,
		holdTTL:  defaultHoldTTL,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type AddToCartInput struct {
	CartID      string
	EventID     string
	SubEventID  string
	ProductID   string
	VariationID string
	VoucherCode string
	Seat        string
	Quantity    int
	TTL         time.Duration
}

// AddToCart reserves quantity units of a product for a cart. All covering
// quotas are locked ascending by ID and their live demand is recounted under
// the lock before any row is written; a block-quota voucher bypasses that
// check because its capacity was set aside when the voucher was created.
func (s *CartService) AddToCart(ctx context.Context, in AddToCartInput) ([]domain.CartPosition, error) {
	if in.CartID == "" || in.EventID == "" || in.ProductID == "" {
		return nil, domain.ErrInvalidID
	}
	if in.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if in.Seat != "" && in.Quantity != 1 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, in.EventID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, domain.ErrProductNotFound
	}
	price := product.DefaultPrice
	if in.VariationID != "" {
		variation, err := s.catalog.GetVariation(ctx, in.ProductID, in.VariationID)
		if err != nil {
			return nil, err
		}
		price = variation.Price
	}

	var voucher *domain.Voucher
	if in.VoucherCode != "" {
		v, err := s.vouchers.FindByCode(ctx, in.EventID, in.VoucherCode)
		if err != nil {
			return nil, err
		}
		if v.Expired(s.clock.Now()) {
			return nil, domain.ErrVoucherExpired
		}
		if !v.MatchesProduct(in.ProductID, in.VariationID) {
			return nil, domain.ErrVoucherInvalid
		}
		voucher = &v
	}

	covering, err := s.quotas.CoveringQuotaIDs(ctx, in.EventID, in.SubEventID, in.ProductID, in.VariationID)
	if err != nil {
		return nil, err
	}
	if len(covering) == 0 {
		return nil, domain.ErrQuotaNotFound
	}
	if voucher != nil && voucher.QuotaID != "" && !contains(covering, voucher.QuotaID) {
		return nil, domain.ErrVoucherInvalid
	}

	seat := in.Seat
	if voucher != nil && voucher.Seat != "" {
		seat = voucher.Seat
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}

	var positions []domain.CartPosition
	err = withRetry(ctx, func(ctx context.Context) error {
		positions = nil
		return s.carts.WithTx(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()

			// Quota locks come before voucher locks everywhere, so a hold
			// and a finalize on overlapping rows cannot deadlock.
			if voucher == nil || !voucher.BlockQuota {
				need := make(map[string]int, len(covering))
				for _, id := range covering {
					need[id] = in.Quantity
				}
				if err := checkQuotaCapacity(txCtx, s.quotas, covering, need, now, ""); err != nil {
					return err
				}
			}

			var voucherID string
			if voucher != nil {
				locked, err := s.vouchers.GetForUpdate(txCtx, voucher.ID)
				if err != nil {
					return err
				}
				if locked.Expired(now) {
					return domain.ErrVoucherExpired
				}
				uses, err := s.carts.CountLiveVoucherUses(txCtx, locked.ID, now)
				if err != nil {
					return err
				}
				if locked.Redeemed+uses+in.Quantity > locked.MaxUsages {
					return domain.ErrVoucherExhausted
				}
				voucherID = locked.ID
			}

			if seat != "" {
				taken, err := s.carts.SeatTaken(txCtx, in.EventID, seat, now)
				if err != nil {
					return err
				}
				if taken {
					return domain.ErrSeatTaken
				}
			}

			expires := now.Add(ttl)
			for i := 0; i < in.Quantity; i++ {
				positions = append(positions, domain.CartPosition{
					ID:          newID(),
					CartID:      in.CartID,
					EventID:     in.EventID,
					SubEventID:  in.SubEventID,
					ProductID:   in.ProductID,
					VariationID: in.VariationID,
					VoucherID:   voucherID,
					Seat:        seat,
					Price:       price,
					ExpiresAt:   expires,
					CreatedAt:   now,
				})
			}
			return s.carts.InsertPositions(txCtx, positions)
		})
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, covering)
	}
	return positions, nil
}

// ExtendCart pushes the expiry of a cart's live positions forward by the
// hold TTL and returns how many positions were extended. Already-expired
// positions stay dead.
func (s *CartService) ExtendCart(ctx context.Context, cartID string) (int, error) {
	if cartID == "" {
		return 0, domain.ErrInvalidID
	}
	now := s.clock.Now()
	return s.carts.ExtendCart(ctx, cartID, now.Add(s.holdTTL), now)
}

// ListCart returns a cart's positions including expired ones the reaper has
// not collected yet.
func (s *CartService) ListCart(ctx context.Context, cartID string) ([]domain.CartPosition, error) {
	if cartID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.carts.PositionsForCart(ctx, cartID)
}

// RemoveFromCart deletes a single position, freeing its capacity immediately.
func (s *CartService) RemoveFromCart(ctx context.Context, cartID, positionID string) error {
	if cartID == "" || positionID == "" {
		return domain.ErrInvalidID
	}
	return s.carts.DeletePosition(ctx, cartID, positionID)
}

// Reap deletes expired cart positions and returns the quotas whose capacity
// was freed. Safe to run concurrently and repeatedly; a second sweep over
// the same expired rows deletes nothing.
func (s *CartService) Reap(ctx context.Context) ([]string, error) {
	freed, err := s.carts.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if s.cache != nil && len(freed) > 0 {
		s.cache.Invalidate(ctx, freed)
	}
	return freed, nil
}

// RunReaper sweeps expired holds on the given interval until ctx ends.
// onFreed, when set, receives the quota IDs each sweep released (the waiting
// list promoter hooks in here).
func (s *CartService) RunReaper(ctx context.Context, interval time.Duration, onFreed func(ctx context.Context, quotaIDs []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			freed, err := s.Reap(ctx)
			if err != nil {
				s.logger.Printf("WARN: cart reaper sweep failed: %v", err)
				continue
			}
			if len(freed) > 0 {
				s.logger.Printf("cart reaper freed capacity on %d quota(s)", len(freed))
				if onFreed != nil {
					onFreed(ctx, freed)
				}
			}
		}
	}
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
