package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/storefront-pricing/internal/coupon"
)

// CouponRepo persists coupons in Postgres.
type CouponRepo struct {
	DB DBTX
}

const couponColumns = `id, code, description, discount_type, discount_value::text,
	min_purchase_amount::text, max_discount_amount::text, start_date, expiry_date,
	max_uses, used_count, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (coupon.Coupon, error) {
	var (
		c                     coupon.Coupon
		kind                  string
		value, minPurchase    string
		maxDiscount           *string
		startDate, expiryDate *time.Time
		maxUses               *int32
		usedCount             int32
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Description, &kind, &value, &minPurchase, &maxDiscount,
		&startDate, &expiryDate, &maxUses, &usedCount, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return coupon.Coupon{}, err
	}
	var err error
	c.DiscountType = coupon.DiscountType(kind)
	if c.DiscountValue, err = parseDecimal(value); err != nil {
		return coupon.Coupon{}, err
	}
	if c.MinPurchaseAmount, err = parseDecimal(minPurchase); err != nil {
		return coupon.Coupon{}, err
	}
	if c.MaxDiscountAmount, err = parseDecimalPtr(maxDiscount); err != nil {
		return coupon.Coupon{}, err
	}
	if startDate != nil {
		c.StartDate = startDate.UTC()
	}
	if expiryDate != nil {
		c.ExpiryDate = expiryDate.UTC()
	}
	if maxUses != nil {
		n := int(*maxUses)
		c.MaxUses = &n
	}
	c.UsedCount = int(usedCount)
	return c, nil
}

func collectCoupons(rows pgx.Rows) ([]coupon.Coupon, error) {
	defer rows.Close()
	var out []coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func timeArg(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func intArg(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

// GetCouponByCode loads a coupon by its normalised code.
func (r CouponRepo) GetCouponByCode(ctx context.Context, code string) (coupon.Coupon, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code)
	c, err := scanCoupon(row)
	if err != nil {
		return coupon.Coupon{}, mapNoRows(err, coupon.ErrNotFound)
	}
	return c, nil
}

// ListActiveCoupons returns active coupons whose window contains now.
func (r CouponRepo) ListActiveCoupons(ctx context.Context, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+couponColumns+` FROM coupons
		WHERE is_active
		  AND (start_date IS NULL OR start_date <= $1)
		  AND (expiry_date IS NULL OR expiry_date >= $1)
		ORDER BY min_purchase_amount, code`, now)
	if err != nil {
		return nil, fmt.Errorf("list active coupons: %w", err)
	}
	return collectCoupons(rows)
}

// ListCoupons returns a page of coupons ordered by creation time and the total count.
func (r CouponRepo) ListCoupons(ctx context.Context, limit, offset int) ([]coupon.Coupon, int, error) {
	var total int
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM coupons`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}
	rows, err := r.DB.Query(ctx, `SELECT `+couponColumns+` FROM coupons
		ORDER BY created_at DESC, code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}
	out, err := collectCoupons(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CreateCoupon inserts c and returns the stored row.
func (r CouponRepo) CreateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	row := r.DB.QueryRow(ctx, `INSERT INTO coupons (
			code, description, discount_type, discount_value, min_purchase_amount,
			max_discount_amount, start_date, expiry_date, max_uses, is_active)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10)
		RETURNING `+couponColumns,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue.String(), c.MinPurchaseAmount.String(),
		decimalArg(c.MaxDiscountAmount), timeArg(c.StartDate), timeArg(c.ExpiryDate), intArg(c.MaxUses), c.IsActive)
	created, err := scanCoupon(row)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.Coupon{}, coupon.ErrConflict
		}
		return coupon.Coupon{}, fmt.Errorf("insert coupon: %w", err)
	}
	return created, nil
}

// UpdateCoupon replaces the definition of the coupon with c.Code. Usage counters
// are left untouched.
func (r CouponRepo) UpdateCoupon(ctx context.Context, c coupon.Coupon) (coupon.Coupon, error) {
	row := r.DB.QueryRow(ctx, `UPDATE coupons SET
			description = $2, discount_type = $3, discount_value = $4::numeric,
			min_purchase_amount = $5::numeric, max_discount_amount = $6::numeric,
			start_date = $7, expiry_date = $8, max_uses = $9, is_active = $10, updated_at = now()
		WHERE code = $1
		RETURNING `+couponColumns,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue.String(), c.MinPurchaseAmount.String(),
		decimalArg(c.MaxDiscountAmount), timeArg(c.StartDate), timeArg(c.ExpiryDate), intArg(c.MaxUses), c.IsActive)
	updated, err := scanCoupon(row)
	if err != nil {
		return coupon.Coupon{}, mapNoRows(err, coupon.ErrNotFound)
	}
	return updated, nil
}

// IncrementUsage bumps used_count while it is below max_uses. It reports false
// when the cap has already been reached.
func (r CouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.DB.Exec(ctx, `UPDATE coupons SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (max_uses IS NULL OR used_count < max_uses)`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateExhausted switches off active coupons that have expired or hit their
// usage cap and returns their codes.
func (r CouponRepo) DeactivateExhausted(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx, `UPDATE coupons SET is_active = FALSE, updated_at = now()
		WHERE is_active
		  AND ((expiry_date IS NOT NULL AND expiry_date < $1)
		       OR (max_uses IS NOT NULL AND used_count >= max_uses))
		RETURNING code`, now)
	if err != nil {
		return nil, fmt.Errorf("deactivate coupons: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect deactivated coupons: %w", err)
	}
	return codes, nil
}
