package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/storefront-pricing/internal/cart"
	"github.com/noah-isme/storefront-pricing/internal/pricing"
)

// CartRepo persists carts and reads the catalog rows needed to price them.
type CartRepo struct {
	DB DBTX
}

const productColumns = `p.id, p.title, p.price::text, p.effective_price::text, p.is_listed, p.is_deleted,
	c.id, c.name, c.is_listed, c.is_deleted,
	b.id, b.name, b.is_listed, b.is_deleted`

type refRow struct {
	id        *uuid.UUID
	name      *string
	isListed  *bool
	isDeleted *bool
}

func (r refRow) ref() *pricing.Ref {
	if r.id == nil {
		return nil
	}
	out := &pricing.Ref{ID: *r.id}
	if r.name != nil {
		out.Name = *r.name
	}
	if r.isListed != nil {
		out.IsListed = *r.isListed
	}
	if r.isDeleted != nil {
		out.IsDeleted = *r.isDeleted
	}
	return out
}

type productRow struct {
	p              pricing.Product
	price          string
	effectivePrice *string
	category       refRow
	brand          refRow
}

func (r *productRow) targets() []any {
	return []any{&r.p.ID, &r.p.Title, &r.price, &r.effectivePrice, &r.p.IsListed, &r.p.IsDeleted,
		&r.category.id, &r.category.name, &r.category.isListed, &r.category.isDeleted,
		&r.brand.id, &r.brand.name, &r.brand.isListed, &r.brand.isDeleted}
}

func (r *productRow) product() (pricing.Product, error) {
	p := r.p
	var err error
	if p.Price, err = parseDecimal(r.price); err != nil {
		return pricing.Product{}, err
	}
	if p.EffectivePrice, err = parseDecimalPtr(r.effectivePrice); err != nil {
		return pricing.Product{}, err
	}
	p.Category = r.category.ref()
	p.Brand = r.brand.ref()
	return p, nil
}

// EnsureCart returns the user's cart, creating it on first use.
func (r CartRepo) EnsureCart(ctx context.Context, userID uuid.UUID) (cart.Cart, error) {
	var (
		c    cart.Cart
		code *string
	)
	err := r.DB.QueryRow(ctx, `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id, user_id, coupon_code`, userID).Scan(&c.ID, &c.UserID, &code)
	if err != nil {
		return cart.Cart{}, fmt.Errorf("ensure cart: %w", err)
	}
	if code != nil {
		c.CouponCode = *code
	}
	return c, nil
}

// ListEntries returns the cart's items with their product, variant stock and the
// offers attached to the product or its category.
func (r CartRepo) ListEntries(ctx context.Context, cartID uuid.UUID) ([]cart.Entry, error) {
	rows, err := r.DB.Query(ctx, `SELECT ci.id, ci.size, ci.quantity, v.stock, `+productColumns+`
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN product_variants v ON v.product_id = ci.product_id AND v.size = ci.size
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id`, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var (
		entries     []cart.Entry
		productIDs  []uuid.UUID
		categoryIDs []uuid.UUID
	)
	for rows.Next() {
		var (
			item  pricing.LineItem
			qty   int32
			stock *int32
			pr    productRow
		)
		dest := append([]any{&item.ID, &item.Variant.Size, &qty, &stock}, pr.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if item.Product, err = pr.product(); err != nil {
			return nil, err
		}
		item.Quantity = int(qty)
		if stock != nil {
			item.Variant.Stock = int(*stock)
			item.Product.Variants = []pricing.Variant{item.Variant}
		}
		entries = append(entries, cart.Entry{Item: item})
		productIDs = append(productIDs, item.Product.ID)
		if item.Product.Category != nil {
			categoryIDs = append(categoryIDs, item.Product.Category.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(entries) == 0 {
		return entries, nil
	}

	byProduct, byCategory, err := r.offers(ctx, productIDs, categoryIDs)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		p := entries[i].Item.Product
		entries[i].Offers = append(entries[i].Offers, byProduct[p.ID]...)
		if p.Category != nil {
			entries[i].Offers = append(entries[i].Offers, byCategory[p.Category.ID]...)
		}
	}
	return entries, nil
}

func (r CartRepo) offers(ctx context.Context, productIDs, categoryIDs []uuid.UUID) (map[uuid.UUID][]pricing.Offer, map[uuid.UUID][]pricing.Offer, error) {
	rows, err := r.DB.Query(ctx, `SELECT kind, product_id, category_id, percentage::text, is_active, starts_at, ends_at
		FROM offers
		WHERE (kind = 'product' AND product_id = ANY($1::uuid[]))
		   OR (kind = 'category' AND category_id = ANY($2::uuid[]))`, uuidStrings(productIDs), uuidStrings(categoryIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()
	byProduct := map[uuid.UUID][]pricing.Offer{}
	byCategory := map[uuid.UUID][]pricing.Offer{}
	for rows.Next() {
		var (
			kind                string
			productID, category *uuid.UUID
			pct                 string
			w                   pricing.OfferWindow
			startsAt, endsAt    *time.Time
		)
		if err := rows.Scan(&kind, &productID, &category, &pct, &w.Active, &startsAt, &endsAt); err != nil {
			return nil, nil, err
		}
		if w.Percentage, err = parseDecimal(pct); err != nil {
			return nil, nil, err
		}
		w.StartsAt, w.EndsAt = startsAt, endsAt
		switch {
		case kind == "product" && productID != nil:
			byProduct[*productID] = append(byProduct[*productID], pricing.ProductOffer{ProductID: *productID, OfferWindow: w})
		case kind == "category" && category != nil:
			byCategory[*category] = append(byCategory[*category], pricing.CategoryOffer{CategoryID: *category, OfferWindow: w})
		}
	}
	return byProduct, byCategory, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// GetProduct loads a product with every variant.
func (r CartRepo) GetProduct(ctx context.Context, productID uuid.UUID) (pricing.Product, error) {
	var pr productRow
	err := r.DB.QueryRow(ctx, `SELECT `+productColumns+`
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		LEFT JOIN brands b ON b.id = p.brand_id
		WHERE p.id = $1`, productID).Scan(pr.targets()...)
	if err != nil {
		return pricing.Product{}, mapNoRows(err, cart.ErrProductNotFound)
	}
	p, err := pr.product()
	if err != nil {
		return pricing.Product{}, err
	}
	rows, err := r.DB.Query(ctx, `SELECT size, stock FROM product_variants WHERE product_id = $1 ORDER BY size`, productID)
	if err != nil {
		return pricing.Product{}, fmt.Errorf("list variants: %w", err)
	}
	p.Variants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.Variant, error) {
		var v pricing.Variant
		var stock int32
		err := row.Scan(&v.Size, &stock)
		v.Stock = int(stock)
		return v, err
	})
	if err != nil {
		return pricing.Product{}, fmt.Errorf("scan variants: %w", err)
	}
	return p, nil
}

// AddItem inserts the line or increases the quantity of an existing one.
func (r CartRepo) AddItem(ctx context.Context, cartID, productID uuid.UUID, size string, qty int) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO cart_items (cart_id, product_id, size, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id, size)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`, cartID, productID, size, qty)
	if err != nil {
		return err
	}
	return r.touch(ctx, cartID)
}

// UpdateItemQuantity sets the quantity of an item in the cart.
func (r CartRepo) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) error {
	tag, err := r.DB.Exec(ctx, `UPDATE cart_items SET quantity = $3 WHERE id = $1 AND cart_id = $2`, itemID, cartID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return r.touch(ctx, cartID)
}

// RemoveItem deletes an item from the cart.
func (r CartRepo) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return r.touch(ctx, cartID)
}

// SetCoupon stores or clears (nil) the cart's coupon code.
func (r CartRepo) SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	tag, err := r.DB.Exec(ctx, `UPDATE carts SET coupon_code = $2, updated_at = now() WHERE id = $1`, cartID, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

func (r CartRepo) touch(ctx context.Context, cartID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID)
	return err
}
