package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory stand-in for the postgres repositories. WithTx
// takes a single mutex, which serializes concurrent callers the way real row
// locks do, so the goroutine-race tests exercise the same interleavings the
// database would allow.
type fakeStore struct {
	mu sync.Mutex

	quotas     map[string]domain.Quota
	quotaItems []domain.QuotaItem
	products   map[string]domain.Product
	variations map[string]domain.Variation
	vouchers   map[string]domain.Voucher
	positions  []domain.CartPosition
	orders     map[string]domain.Order
	orderPos   []domain.OrderPosition
	payments   map[string]domain.Payment
	refunds    []domain.Refund
	entries    map[string]domain.WaitingListEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		quotas:     map[string]domain.Quota{},
		products:   map[string]domain.Product{},
		variations: map[string]domain.Variation{},
		vouchers:   map[string]domain.Voucher{},
		orders:     map[string]domain.Order{},
		payments:   map[string]domain.Payment{},
		entries:    map[string]domain.WaitingListEntry{},
	}
}

func (f *fakeStore) addQuota(q domain.Quota, productIDs ...string) {
	f.quotas[q.ID] = q
	for _, pid := range productIDs {
		f.quotaItems = append(f.quotaItems, domain.QuotaItem{QuotaID: q.ID, ProductID: pid})
	}
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeStore) covers(quotaID, productID, variationID string) bool {
	for _, item := range f.quotaItems {
		if item.QuotaID != quotaID || item.ProductID != productID {
			continue
		}
		if item.VariationID == "" || item.VariationID == variationID {
			return true
		}
	}
	return false
}

func (f *fakeStore) CoveringQuotaIDs(_ context.Context, eventID, subEventID, productID, variationID string) ([]string, error) {
	var ids []string
	for _, q := range f.quotas {
		if q.EventID != eventID {
			continue
		}
		if q.SubEventID != "" && q.SubEventID != subEventID {
			continue
		}
		if f.covers(q.ID, productID, variationID) {
			ids = append(ids, q.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) GetQuotasForUpdate(_ context.Context, ids []string) ([]domain.Quota, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var out []domain.Quota
	for _, id := range sorted {
		if q, ok := f.quotas[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeStore) GetQuotas(ctx context.Context, ids []string) ([]domain.Quota, error) {
	return f.GetQuotasForUpdate(ctx, ids)
}

func (f *fakeStore) CountOrderPositions(_ context.Context, quotaIDs []string) (map[string]domain.OrderCounts, error) {
	out := make(map[string]domain.OrderCounts)
	for _, qid := range quotaIDs {
		for _, op := range f.orderPos {
			if op.Canceled || !f.covers(qid, op.ProductID, op.VariationID) {
				continue
			}
			counts := out[qid]
			switch f.orders[op.OrderID].Status {
			case domain.OrderStatusPending:
				counts.Pending++
			case domain.OrderStatusPaid:
				counts.Paid++
			default:
				continue
			}
			out[qid] = counts
		}
	}
	return out, nil
}

func (f *fakeStore) CountLiveCartPositions(_ context.Context, quotaIDs []string, now time.Time, excludeCartID string) (map[string]int, error) {
	out := make(map[string]int)
	for _, qid := range quotaIDs {
		for _, p := range f.positions {
			if !p.Live(now) || p.CartID == excludeCartID {
				continue
			}
			if p.VoucherID != "" {
				if v := f.vouchers[p.VoucherID]; v.BlockQuota && !v.Expired(now) {
					continue
				}
			}
			if f.covers(qid, p.ProductID, p.VariationID) {
				out[qid]++
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CountBlockedVoucherUnits(_ context.Context, quotaIDs []string, now time.Time) (map[string]int, error) {
	out := make(map[string]int)
	for _, qid := range quotaIDs {
		for _, v := range f.vouchers {
			units := v.BlockedUnits(now)
			if units == 0 {
				continue
			}
			if v.QuotaID == qid || (v.QuotaID == "" && v.ProductID != "" && f.covers(qid, v.ProductID, v.VariationID)) {
				out[qid] += units
			}
		}
	}
	return out, nil
}

func (f *fakeStore) InsertPositions(_ context.Context, positions []domain.CartPosition) error {
	f.positions = append(f.positions, positions...)
	return nil
}

func (f *fakeStore) PositionsForCart(_ context.Context, cartID string) ([]domain.CartPosition, error) {
	var out []domain.CartPosition
	for _, p := range f.positions {
		if p.CartID == cartID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) PositionsForCartForUpdate(ctx context.Context, cartID string) ([]domain.CartPosition, error) {
	return f.PositionsForCart(ctx, cartID)
}

func (f *fakeStore) DeletePosition(_ context.Context, cartID, positionID string) error {
	for i, p := range f.positions {
		if p.CartID == cartID && p.ID == positionID {
			f.positions = append(f.positions[:i], f.positions[i+1:]...)
			return nil
		}
	}
	return domain.ErrCartNotFound
}

func (f *fakeStore) DeletePositions(_ context.Context, ids []string) error {
	keep := f.positions[:0]
	for _, p := range f.positions {
		drop := false
		for _, id := range ids {
			if p.ID == id {
				drop = true
				break
			}
		}
		if !drop {
			keep = append(keep, p)
		}
	}
	f.positions = keep
	return nil
}

func (f *fakeStore) ExtendCart(_ context.Context, cartID string, expiresAt, now time.Time) (int, error) {
	n := 0
	for i, p := range f.positions {
		if p.CartID == cartID && p.Live(now) {
			f.positions[i].ExpiresAt = expiresAt
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteExpired(_ context.Context, now time.Time) ([]string, error) {
	freed := map[string]struct{}{}
	keep := f.positions[:0]
	for _, p := range f.positions {
		if p.Live(now) {
			keep = append(keep, p)
			continue
		}
		for qid := range f.quotas {
			if f.covers(qid, p.ProductID, p.VariationID) {
				freed[qid] = struct{}{}
			}
		}
	}
	f.positions = keep
	out := make([]string, 0, len(freed))
	for qid := range freed {
		out = append(out, qid)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) ReassignCart(_ context.Context, fromCartID, toCartID string, expiresAt time.Time) (int, error) {
	n := 0
	for i, p := range f.positions {
		if p.CartID == fromCartID {
			f.positions[i].CartID = toCartID
			f.positions[i].ExpiresAt = expiresAt
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) SeatTaken(_ context.Context, eventID, seat string, now time.Time) (bool, error) {
	for _, p := range f.positions {
		if p.EventID == eventID && p.Seat == seat && p.Live(now) {
			return true, nil
		}
	}
	for _, op := range f.orderPos {
		if op.Canceled || op.Seat != seat {
			continue
		}
		switch f.orders[op.OrderID].Status {
		case domain.OrderStatusPending, domain.OrderStatusPaid:
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CountLiveVoucherUses(_ context.Context, voucherID string, now time.Time) (int, error) {
	n := 0
	for _, p := range f.positions {
		if p.VoucherID == voucherID && p.Live(now) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FindByCode(_ context.Context, eventID, code string) (domain.Voucher, error) {
	for _, v := range f.vouchers {
		if v.EventID == eventID && v.Code == code {
			return v, nil
		}
	}
	return domain.Voucher{}, domain.ErrVoucherInvalid
}

func (f *fakeStore) GetForUpdate(_ context.Context, id string) (domain.Voucher, error) {
	v, ok := f.vouchers[id]
	if !ok {
		return domain.Voucher{}, domain.ErrVoucherInvalid
	}
	return v, nil
}

func (f *fakeStore) GetVouchers(_ context.Context, ids []string) ([]domain.Voucher, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var out []domain.Voucher
	for _, id := range sorted {
		if v, ok := f.vouchers[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) GetVouchersForUpdate(ctx context.Context, ids []string) ([]domain.Voucher, error) {
	return f.GetVouchers(ctx, ids)
}

func (f *fakeStore) IncrementRedeemed(_ context.Context, id string, qty int) error {
	v, ok := f.vouchers[id]
	if !ok {
		return domain.ErrVoucherInvalid
	}
	v.Redeemed += qty
	f.vouchers[id] = v
	return nil
}

func (f *fakeStore) Create(_ context.Context, v domain.Voucher) error {
	for _, existing := range f.vouchers {
		if existing.EventID == v.EventID && existing.Code == v.Code {
			return domain.ErrVoucherInvalid
		}
	}
	f.vouchers[v.ID] = v
	return nil
}

func (f *fakeStore) GetProduct(_ context.Context, eventID, productID string) (domain.Product, error) {
	p, ok := f.products[productID]
	if !ok || p.EventID != eventID {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (f *fakeStore) GetVariation(_ context.Context, productID, variationID string) (domain.Variation, error) {
	v, ok := f.variations[variationID]
	if !ok || v.ProductID != productID {
		return domain.Variation{}, domain.ErrProductNotFound
	}
	return v, nil
}

func (f *fakeStore) CreateOrder(_ context.Context, order domain.Order) error {
	for _, existing := range f.orders {
		if existing.EventID == order.EventID && existing.Code == order.Code {
			return domain.ErrConflict
		}
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) CreateOrderPositions(_ context.Context, positions []domain.OrderPosition) error {
	f.orderPos = append(f.orderPos, positions...)
	return nil
}

func (f *fakeStore) GetOrderForUpdate(_ context.Context, orderID string) (domain.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) GetOrderByCode(_ context.Context, eventID, code string) (domain.Order, error) {
	for _, o := range f.orders {
		if o.EventID == eventID && o.Code == code {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	o, ok := f.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	f.orders[orderID] = o
	return nil
}

func (f *fakeStore) CancelPositions(_ context.Context, orderID string) ([]string, error) {
	freed := map[string]struct{}{}
	for i, op := range f.orderPos {
		if op.OrderID != orderID || op.Canceled {
			continue
		}
		f.orderPos[i].Canceled = true
		for qid := range f.quotas {
			if f.covers(qid, op.ProductID, op.VariationID) {
				freed[qid] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(freed))
	for qid := range freed {
		out = append(out, qid)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) CreatePayment(_ context.Context, p domain.Payment) (domain.Payment, error) {
	p.LocalID = 1
	for _, existing := range f.payments {
		if existing.OrderID == p.OrderID && existing.LocalID >= p.LocalID {
			p.LocalID = existing.LocalID + 1
		}
	}
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakeStore) GetPaymentForUpdate(_ context.Context, paymentID string) (domain.Payment, error) {
	p, ok := f.payments[paymentID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (f *fakeStore) GetPaymentByLocalID(_ context.Context, orderID string, localID int) (domain.Payment, error) {
	for _, p := range f.payments {
		if p.OrderID == orderID && p.LocalID == localID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (f *fakeStore) SumRefunds(_ context.Context, paymentID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, ref := range f.refunds {
		if ref.PaymentID == paymentID && ref.State != domain.RefundStateCanceled {
			total = total.Add(ref.Amount)
		}
	}
	return total, nil
}

func (f *fakeStore) CreateRefund(_ context.Context, ref domain.Refund) (domain.Refund, error) {
	ref.LocalID = 1
	for _, existing := range f.refunds {
		if existing.PaymentID == ref.PaymentID && existing.LocalID >= ref.LocalID {
			ref.LocalID = existing.LocalID + 1
		}
	}
	f.refunds = append(f.refunds, ref)
	return ref, nil
}

func (f *fakeStore) Insert(_ context.Context, e domain.WaitingListEntry) error {
	f.entries[e.ID] = e
	return nil
}

func (f *fakeStore) OldestWaitingForQuota(_ context.Context, quotaID string) (*domain.WaitingListEntry, error) {
	var oldest *domain.WaitingListEntry
	for id := range f.entries {
		e := f.entries[id]
		if e.Status != domain.WaitingStatusWaiting {
			continue
		}
		if q := f.quotas[quotaID]; q.SubEventID != "" && q.SubEventID != e.SubEventID {
			continue
		}
		if !f.covers(quotaID, e.ProductID, e.VariationID) {
			continue
		}
		if oldest == nil || e.CreatedAt.Before(oldest.CreatedAt) {
			copied := e
			oldest = &copied
		}
	}
	return oldest, nil
}

func (f *fakeStore) GetEntryForUpdate(_ context.Context, id string) (domain.WaitingListEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return domain.WaitingListEntry{}, domain.ErrEntryNotFound
	}
	return e, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status domain.WaitingStatus, offerExpires *time.Time) error {
	e, ok := f.entries[id]
	if !ok {
		return domain.ErrEntryNotFound
	}
	e.Status = status
	e.OfferExpires = offerExpires
	f.entries[id] = e
	return nil
}

func (f *fakeStore) ExpireLapsedOffers(_ context.Context, now time.Time) ([]string, error) {
	freed := map[string]struct{}{}
	for id, e := range f.entries {
		if e.Status != domain.WaitingStatusOffered {
			continue
		}
		if e.OfferExpires != nil && e.OfferExpires.After(now) {
			continue
		}
		e.Status = domain.WaitingStatusExpired
		f.entries[id] = e
		for qid := range f.quotas {
			if f.covers(qid, e.ProductID, e.VariationID) {
				freed[qid] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(freed))
	for qid := range freed {
		out = append(out, qid)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) QuotasWithWaiting(_ context.Context) ([]string, error) {
	ids := map[string]struct{}{}
	for _, e := range f.entries {
		if e.Status != domain.WaitingStatusWaiting {
			continue
		}
		for qid := range f.quotas {
			if f.covers(qid, e.ProductID, e.VariationID) {
				ids[qid] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(ids))
	for qid := range ids {
		out = append(out, qid)
	}
	sort.Strings(out)
	return out, nil
}
