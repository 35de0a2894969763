package repo

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-pricing/internal/cart"
	"github.com/noah-isme/storefront-pricing/internal/coupon"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	sql  []string
	args [][]any
	row  fakeRow
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeDB) record(sql string, args []any) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.record(sql, args)
	return f.tag, f.err
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.record(sql, args)
	return nil, f.err
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.record(sql, args)
	return f.row
}

func errRow(err error) fakeRow {
	return fakeRow{scan: func(...any) error { return err }}
}

func TestGetCouponByCodeMapsNoRows(t *testing.T) {
	db := &fakeDB{row: errRow(pgx.ErrNoRows)}
	_, err := CouponRepo{DB: db}.GetCouponByCode(context.Background(), "SAVE10")
	require.ErrorIs(t, err, coupon.ErrNotFound)
	require.Equal(t, []any{"SAVE10"}, db.args[0])
}

func TestGetCouponByCodeScansNumericText(t *testing.T) {
	id := uuid.New()
	expiry := time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC)
	maxDiscount := "150.00"
	maxUses := int32(100)
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*uuid.UUID) = id
		*dest[1].(*string) = "SAVE10"
		*dest[2].(*string) = "Ten percent off"
		*dest[3].(*string) = "percentage"
		*dest[4].(*string) = "10.00"
		*dest[5].(*string) = "499.50"
		*dest[6].(**string) = &maxDiscount
		*dest[8].(**time.Time) = &expiry
		*dest[9].(**int32) = &maxUses
		*dest[10].(*int32) = 7
		*dest[11].(*bool) = true
		return nil
	}}}
	c, err := CouponRepo{DB: db}.GetCouponByCode(context.Background(), "SAVE10")
	require.NoError(t, err)
	require.Equal(t, id, c.ID)
	require.Equal(t, coupon.DiscountPercentage, c.DiscountType)
	require.Equal(t, "10", c.DiscountValue.String())
	require.Equal(t, "499.5", c.MinPurchaseAmount.String())
	require.NotNil(t, c.MaxDiscountAmount)
	require.Equal(t, "150", c.MaxDiscountAmount.String())
	require.True(t, c.StartDate.IsZero())
	require.Equal(t, expiry, c.ExpiryDate)
	require.Equal(t, 100, *c.MaxUses)
	require.Equal(t, 7, c.UsedCount)
}

func TestCreateCouponConflict(t *testing.T) {
	db := &fakeDB{row: errRow(&pgconn.PgError{Code: uniqueViolation})}
	_, err := CouponRepo{DB: db}.CreateCoupon(context.Background(), coupon.Coupon{Code: "SAVE10", DiscountType: coupon.DiscountFixed})
	require.ErrorIs(t, err, coupon.ErrConflict)
	args := db.args[0]
	require.Nil(t, args[5])
	require.Nil(t, args[6])
	require.Nil(t, args[8])
}

func TestIncrementUsageGuard(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	repo := CouponRepo{DB: db}
	ok, err := repo.IncrementUsage(context.Background(), uuid.New())
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, db.sql[0], "used_count < max_uses")

	db.tag = pgconn.NewCommandTag("UPDATE 0")
	ok, err = repo.IncrementUsage(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCartItemMutationsReportMissingRows(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	repo := CartRepo{DB: db}
	ctx := context.Background()
	require.ErrorIs(t, repo.UpdateItemQuantity(ctx, uuid.New(), uuid.New(), 2), cart.ErrNotFound)

	db.tag = pgconn.NewCommandTag("DELETE 0")
	require.ErrorIs(t, repo.RemoveItem(ctx, uuid.New(), uuid.New()), cart.ErrNotFound)

	db.tag = pgconn.NewCommandTag("UPDATE 1")
	code := "SAVE10"
	require.NoError(t, repo.SetCoupon(ctx, uuid.New(), &code))
}

func TestGetProductMapsNoRows(t *testing.T) {
	db := &fakeDB{row: errRow(pgx.ErrNoRows)}
	_, err := CartRepo{DB: db}.GetProduct(context.Background(), uuid.New())
	require.ErrorIs(t, err, cart.ErrProductNotFound)
}

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/app?sslmode=disable", migrateURL("postgres://u:p@db:5432/app?sslmode=disable"))
	require.Equal(t, "pgx5://db/app", migrateURL("postgresql://db/app"))
	require.Equal(t, "pgx5://db/app", migrateURL("pgx5://db/app"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}
