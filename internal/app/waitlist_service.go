package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/clock"
	"github.com/fossasia/eventyay-sub001/internal/domain"
)

type WaitlistStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Insert(ctx context.Context, e domain.WaitingListEntry) error
	OldestWaitingForQuota(ctx context.Context, quotaID string) (*domain.WaitingListEntry, error)
	GetForUpdate(ctx context.Context, id string) (domain.WaitingListEntry, error)
	UpdateStatus(ctx context.Context, id string, status domain.WaitingStatus, offerExpires *time.Time) error
	ExpireLapsedOffers(ctx context.Context, now time.Time) ([]string, error)
	QuotasWithWaiting(ctx context.Context) ([]string, error)
}

// OfferCartStore is the slice of cart storage the promoter uses to park the
// reserved unit behind an offer and later hand it to the claimant.
type OfferCartStore interface {
	InsertPositions(ctx context.Context, positions []domain.CartPosition) error
	ReassignCart(ctx context.Context, fromCartID, toCartID string, expiresAt time.Time) (int, error)
}

// WaitlistService serves queued demand as capacity frees up. An offer
// reserves its unit through a regular cart position owned by a synthetic
// per-entry cart, so promotion competes for capacity under exactly the same
// quota locks as any shopper and can never double-allocate a freed unit.
type WaitlistService struct {
	waitlist    WaitlistStore
	carts       OfferCartStore
	quotas      QuotaLedger
	catalog     CatalogAccess
	cache       AvailabilityCache
	clock       clock.Clock
	offerWindow time.Duration
	claimTTL    time.Duration
	logger      *log.Logger
}

const defaultOfferWindow = 24 * time.Hour

type WaitlistServiceOption func(*WaitlistService)

// WithOfferWindow overrides how long a promoted entry may claim its unit.
func WithOfferWindow(d time.Duration) WaitlistServiceOption {
	return func(s *WaitlistService) {
		if d > 0 {
			s.offerWindow = d
		}
	}
}

// WithClaimTTL overrides the cart TTL granted on claim.
func WithClaimTTL(d time.Duration) WaitlistServiceOption {
	return func(s *WaitlistService) {
		if d > 0 {
			s.claimTTL = d
		}
	}
}

// WithWaitlistCache lets the promoter drop stale advisory entries.
func WithWaitlistCache(c AvailabilityCache) WaitlistServiceOption {
	return func(s *WaitlistService) {
		s.cache = c
	}
}

// WithWaitlistLogger sets the logger used by the background promoter.
func WithWaitlistLogger(l *log.Logger) WaitlistServiceOption {
	return func(s *WaitlistService) {
		s.logger = l
	}
}

func NewWaitlistService(waitlist WaitlistStore, carts OfferCartStore, quotas QuotaLedger, catalog CatalogAccess, clk clock.Clock, opts ...WaitlistServiceOption) *WaitlistService {
	svc := &WaitlistService{
		waitlist:    waitlist,
		carts:       carts,
		quotas:      quotas,
		catalog:     catalog,
		clock:       clk,
		offerWindow: defaultOfferWindow,
		claimTTL:    defaultHoldTTL,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type JoinInput struct {
	EventID     string
	SubEventID  string
	ProductID   string
	VariationID string
	Email       string
}

// Join appends a waiting entry for a product.
func (s *WaitlistService) Join(ctx context.Context, in JoinInput) (domain.WaitingListEntry, error) {
	if in.EventID == "" || in.ProductID == "" {
		return domain.WaitingListEntry{}, domain.ErrInvalidID
	}
	if in.Email == "" {
		return domain.WaitingListEntry{}, domain.ErrEmailRequired
	}

	entry := domain.WaitingListEntry{
		ID:          newID(),
		EventID:     in.EventID,
		SubEventID:  in.SubEventID,
		ProductID:   in.ProductID,
		VariationID: in.VariationID,
		Email:       in.Email,
		Status:      domain.WaitingStatusWaiting,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.waitlist.Insert(ctx, entry); err != nil {
		return domain.WaitingListEntry{}, err
	}
	return entry, nil
}

func offerCartID(entryID string) string {
	return "waitinglist:" + entryID
}

// IsOfferCart reports whether a cart ID belongs to a waiting list offer.
func IsOfferCart(cartID string) bool {
	return strings.HasPrefix(cartID, "waitinglist:")
}

// PromoteNext offers one freed unit of the quota to the oldest covered
// waiting entry. Returns nil without error when the queue is empty or the
// quota has no live capacity. The reservation row expires together with the
// offer window, so an unclaimed offer hands its unit back automatically.
func (s *WaitlistService) PromoteNext(ctx context.Context, quotaID string) (*domain.WaitingListEntry, error) {
	if quotaID == "" {
		return nil, domain.ErrInvalidID
	}

	var promoted *domain.WaitingListEntry
	var covering []string
	err := withRetry(ctx, func(ctx context.Context) error {
		promoted = nil
		return s.waitlist.WithTx(ctx, func(txCtx context.Context) error {
			now := s.clock.Now()

			entry, err := s.waitlist.OldestWaitingForQuota(txCtx, quotaID)
			if err != nil {
				return err
			}
			if entry == nil {
				return nil
			}

			// The offer reserves its unit against every quota governing the
			// entry's product, exactly as the claimant's own hold would. One
			// freed unit on the triggering quota is worthless if a second
			// covering quota is still full.
			covering, err = s.quotas.CoveringQuotaIDs(txCtx, entry.EventID, entry.SubEventID, entry.ProductID, entry.VariationID)
			if err != nil {
				return err
			}
			if len(covering) == 0 {
				return domain.ErrQuotaNotFound
			}
			need := make(map[string]int, len(covering))
			for _, id := range covering {
				need[id] = 1
			}
			if err := checkQuotaCapacity(txCtx, s.quotas, covering, need, now, ""); err != nil {
				// No capacity is the normal end of a promotion run, not a
				// failure.
				if _, exceeded := err.(*domain.QuotaExceededError); exceeded {
					return nil
				}
				return err
			}

			product, err := s.catalog.GetProduct(txCtx, entry.EventID, entry.ProductID)
			if err != nil {
				return err
			}
			price := product.DefaultPrice
			if entry.VariationID != "" {
				variation, err := s.catalog.GetVariation(txCtx, entry.ProductID, entry.VariationID)
				if err != nil {
					return err
				}
				price = variation.Price
			}

			offerExpires := now.Add(s.offerWindow)
			if err := s.waitlist.UpdateStatus(txCtx, entry.ID, domain.WaitingStatusOffered, &offerExpires); err != nil {
				return err
			}
			if err := s.carts.InsertPositions(txCtx, []domain.CartPosition{{
				ID:          newID(),
				CartID:      offerCartID(entry.ID),
				EventID:     entry.EventID,
				SubEventID:  entry.SubEventID,
				ProductID:   entry.ProductID,
				VariationID: entry.VariationID,
				Price:       price,
				ExpiresAt:   offerExpires,
				CreatedAt:   now,
			}}); err != nil {
				return err
			}

			entry.Status = domain.WaitingStatusOffered
			entry.OfferExpires = &offerExpires
			promoted = entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if promoted != nil && s.cache != nil {
		s.cache.Invalidate(ctx, covering)
	}
	return promoted, nil
}

// Claim hands an offered entry's reserved unit to the claimant's cart with a
// fresh checkout TTL and marks the entry claimed.
func (s *WaitlistService) Claim(ctx context.Context, entryID, cartID string) error {
	if entryID == "" || cartID == "" {
		return domain.ErrInvalidID
	}

	return s.waitlist.WithTx(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		entry, err := s.waitlist.GetForUpdate(txCtx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != domain.WaitingStatusOffered {
			return domain.ErrEntryNotOffered
		}
		if entry.OfferExpires == nil || !entry.OfferExpires.After(now) {
			return domain.ErrEntryNotOffered
		}

		moved, err := s.carts.ReassignCart(txCtx, offerCartID(entryID), cartID, now.Add(s.claimTTL))
		if err != nil {
			return err
		}
		if moved == 0 {
			// The reserved position is gone (reaped after a clock jump);
			// the offer is no longer backed by capacity.
			return domain.ErrEntryNotOffered
		}
		return s.waitlist.UpdateStatus(txCtx, entryID, domain.WaitingStatusClaimed, nil)
	})
}

// ExpireOffers flips lapsed offers to expired and returns the quotas whose
// reserved units just came back to the pool.
func (s *WaitlistService) ExpireOffers(ctx context.Context) ([]string, error) {
	return s.waitlist.ExpireLapsedOffers(ctx, s.clock.Now())
}

// PromoteFor runs promotion for the given quotas until each one either runs
// out of capacity or out of waiting entries.
func (s *WaitlistService) PromoteFor(ctx context.Context, quotaIDs []string) error {
	for _, quotaID := range dedupe(quotaIDs) {
		for {
			entry, err := s.PromoteNext(ctx, quotaID)
			if err != nil {
				return err
			}
			if entry == nil {
				break
			}
			s.logger.Printf("waiting list: offered a unit to %s", entry.Email)
		}
	}
	return nil
}

// Sweep expires lapsed offers, then promotes for every quota with waiting
// demand.
func (s *WaitlistService) Sweep(ctx context.Context) error {
	if _, err := s.ExpireOffers(ctx); err != nil {
		return err
	}
	quotaIDs, err := s.waitlist.QuotasWithWaiting(ctx)
	if err != nil {
		return err
	}
	return s.PromoteFor(ctx, quotaIDs)
}

// RunPromoter sweeps the waiting list on the given interval until ctx ends.
func (s *WaitlistService) RunPromoter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Printf("WARN: waiting list sweep failed: %v", err)
			}
		}
	}
}
