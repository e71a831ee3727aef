package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VoucherRepository struct {
	db
}

func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{db: db{pool: pool}}
}

const voucherColumns = `id, event_id, code, max_usages, redeemed, valid_until, block_quota, quota_id, product_id, variation_id, seat, created_at`

// FindByCode looks a voucher up by its per-event code. Unknown codes return
// domain.ErrVoucherInvalid.
func (r *VoucherRepository) FindByCode(ctx context.Context, eventID, code string) (domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE event_id = $1 AND code = $2`
	return r.getVoucher(ctx, query, eventID, code)
}

// GetForUpdate locks a single voucher row.
func (r *VoucherRepository) GetForUpdate(ctx context.Context, id string) (domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = $1 FOR UPDATE`
	return r.getVoucher(ctx, query, id)
}

func (r *VoucherRepository) getVoucher(ctx context.Context, query string, args ...any) (domain.Voucher, error) {
	v, err := scanVoucher(r.queryRow(ctx, query, args...))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Voucher{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Voucher{}, domain.ErrVoucherInvalid
		}
		return domain.Voucher{}, fmt.Errorf("get voucher: %w", err)
	}
	return v, nil
}

// GetVouchers reads several vouchers without locking.
func (r *VoucherRepository) GetVouchers(ctx context.Context, ids []string) ([]domain.Voucher, error) {
	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = ANY($1) ORDER BY id`
	return r.listVouchers(ctx, query, ids)
}

// GetVouchersForUpdate locks several voucher rows in ascending ID order,
// mirroring the quota lock ordering.
func (r *VoucherRepository) GetVouchersForUpdate(ctx context.Context, ids []string) ([]domain.Voucher, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query := `SELECT ` + voucherColumns + ` FROM vouchers WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	return r.listVouchers(ctx, query, sorted)
}

func (r *VoucherRepository) listVouchers(ctx context.Context, query string, ids []string) ([]domain.Voucher, error) {
	rows, err := r.query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate vouchers: %w", rows.Err())
	}
	return vouchers, nil
}

func scanVoucher(row pgx.Row) (domain.Voucher, error) {
	var v domain.Voucher
	var quota, product, variation, seat *string
	err := row.Scan(
		&v.ID, &v.EventID, &v.Code, &v.MaxUsages, &v.Redeemed, &v.ValidUntil,
		&v.BlockQuota, &quota, &product, &variation, &seat, &v.CreatedAt,
	)
	if err != nil {
		return domain.Voucher{}, err
	}
	if quota != nil {
		v.QuotaID = *quota
	}
	if product != nil {
		v.ProductID = *product
	}
	if variation != nil {
		v.VariationID = *variation
	}
	if seat != nil {
		v.Seat = *seat
	}
	return v, nil
}

// IncrementRedeemed bumps the usage counter by qty. The max_usages re-check
// happens in the service under the row lock; the CHECK constraint on the
// table is the final backstop.
func (r *VoucherRepository) IncrementRedeemed(ctx context.Context, id string, qty int) error {
	const stmt = `UPDATE vouchers SET redeemed = redeemed + $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, qty)
	if err != nil {
		return fmt.Errorf("increment redeemed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVoucherInvalid
	}
	return nil
}

// Create inserts a voucher.
func (r *VoucherRepository) Create(ctx context.Context, v domain.Voucher) error {
	const stmt = `
INSERT INTO vouchers (id, event_id, code, max_usages, redeemed, valid_until, block_quota, quota_id, product_id, variation_id, seat, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.exec(ctx, stmt,
		v.ID,
		v.EventID,
		v.Code,
		v.MaxUsages,
		v.Redeemed,
		v.ValidUntil,
		v.BlockQuota,
		nullUUID(v.QuotaID),
		nullUUID(v.ProductID),
		nullUUID(v.VariationID),
		nullString(v.Seat),
		v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVoucherInvalid
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create voucher: %w", err)
	}
	return nil
}
