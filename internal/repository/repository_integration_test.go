//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/shop-api/internal/domain/cart"
	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/domain/product"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pool, err := NewPool(ctx, fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	// Applying twice must be harmless.
	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func seedUsers(t *testing.T, pool *pgxpool.Pool, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := pool.Exec(context.Background(),
			`INSERT INTO users (id, email) VALUES ($1, $2)`, i, fmt.Sprintf("user%d@example.com", i))
		require.NoError(t, err)
	}
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, title, price string, active, deleted bool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO products (title, slug, price, is_active, is_delete) VALUES ($1, $1, $2, $3, $4) RETURNING id`,
		title, decimal.RequireFromString(price), active, deleted,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createCode(t *testing.T, repo *DiscountRepository, code string, typ discount.Type, value string, canUses int) *discount.Code {
	t.Helper()
	c := &discount.Code{
		Title:     code,
		Code:      code,
		Type:      typ,
		Value:     decimal.RequireFromString(value),
		CreatedAt: time.Now(),
		ExpiredAt: time.Now().Add(time.Hour),
		IsActive:  true,
		CanUses:   canUses,
	}
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

func TestPostgres(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	seedUsers(t, pool, 30)

	widget := seedProduct(t, pool, "widget", "40.00", true, false)
	gadget := seedProduct(t, pool, "gadget", "60.00", true, false)
	hidden := seedProduct(t, pool, "hidden", "1.00", false, false)
	seedProduct(t, pool, "gone", "1.00", true, true)

	products := NewProductRepository(pool)
	discounts := NewDiscountRepository(pool)
	svc, err := cart.NewService(NewCartStore(pool, DefaultTxMaxAttempts), noop.NewMeterProvider())
	require.NoError(t, err)

	t.Run("ProductVisibility", func(t *testing.T) {
		list, err := products.ListActive(ctx, product.ListQuery{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, widget, list[0].ID)
		assert.True(t, decimal.RequireFromString("40").Equal(list[0].Price))

		_, err = products.GetActive(ctx, hidden)
		require.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("SearchAndOrdering", func(t *testing.T) {
		ids := func(q product.ListQuery) []int64 {
			list, err := products.ListActive(ctx, q)
			require.NoError(t, err)
			out := make([]int64, 0, len(list))
			for _, p := range list {
				out = append(out, p.ID)
			}
			return out
		}

		assert.Equal(t, []int64{gadget}, ids(product.ListQuery{Search: "GAD"}))
		assert.Equal(t, []int64{gadget, widget}, ids(product.ListQuery{Ordering: product.OrderByPriceDesc}))
		assert.Equal(t, []int64{widget, gadget}, ids(product.ListQuery{Ordering: product.OrderByCreated}))
		// Wildcards are matched literally.
		assert.Empty(t, ids(product.ListQuery{Search: "%"}))
		assert.Empty(t, ids(product.ListQuery{Search: "hidden"}))
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		createCode(t, discounts, "DUP", discount.TypeFixed, "1", 1)
		err := discounts.Create(ctx, &discount.Code{
			Title: "again", Code: "DUP", Type: discount.TypeFixed,
			ExpiredAt: time.Now().Add(time.Hour), IsActive: true,
		})
		require.ErrorIs(t, err, discount.ErrAlreadyExists)
	})

	t.Run("CartLifecycle", func(t *testing.T) {
		const user = 1
		_, err := svc.AddItem(ctx, user, widget, 1)
		require.NoError(t, err)
		_, err = svc.AddItem(ctx, user, gadget, 1)
		require.NoError(t, err)
		v, err := svc.AddItem(ctx, user, widget, 1)
		require.NoError(t, err)

		require.Len(t, v.Items, 2)
		assert.Equal(t, widget, v.Items[0].ProductID)
		assert.Equal(t, 2, v.Items[0].Quantity)
		assert.True(t, decimal.RequireFromString("140").Equal(v.Totals.Total))

		createCode(t, discounts, "PCT25", discount.TypePercentage, "25", 5)
		v, err = svc.ApplyDiscount(ctx, user, cart.ApplyDiscountRequest{CartID: v.Cart.ID, Code: "PCT25"})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("105").Equal(v.Totals.Total))

		createCode(t, discounts, "FLAT20", discount.TypeFixed, "20", 5)
		v, err = svc.ApplyDiscount(ctx, user, cart.ApplyDiscountRequest{Code: "FLAT20"})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("120").Equal(v.Totals.Total))

		pct, err := discounts.FindByCode(ctx, "PCT25")
		require.NoError(t, err)
		assert.Equal(t, 5, pct.CanUses)
		assert.Equal(t, 1, pct.UseCount)

		_, err = svc.UpdateItemQuantity(ctx, user, cart.UpdateItemRequest{ProductID: &hidden, Quantity: new(int)})
		require.ErrorIs(t, err, cart.ErrItemNotFound)

		v, err = svc.RemoveDiscount(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, v.Discount)
	})

	t.Run("ConcurrentLastUse", func(t *testing.T) {
		createCode(t, discounts, "ONCE", discount.TypeFixed, "10", 1)

		const n = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			exhausted int
		)
		for i := range n {
			wg.Add(1)
			go func(user int64) {
				defer wg.Done()
				_, err := svc.ApplyDiscount(ctx, user, cart.ApplyDiscountRequest{Code: "ONCE"})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, discount.ErrExhausted):
					exhausted++
				default:
					t.Errorf("user %d: %v", user, err)
				}
			}(int64(i + 2))
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, n-1, exhausted)

		c, err := discounts.FindByCode(ctx, "ONCE")
		require.NoError(t, err)
		assert.Equal(t, 0, c.CanUses)
		assert.Equal(t, 1, c.UseCount)
	})

	t.Run("ConcurrentBindsWithinAllowance", func(t *testing.T) {
		createCode(t, discounts, "TEN", discount.TypePercentage, "10", 10)

		const n = 20
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			exhausted int
		)
		for i := range n {
			wg.Add(1)
			go func(user int64) {
				defer wg.Done()
				_, err := svc.ApplyDiscount(ctx, user, cart.ApplyDiscountRequest{Code: "TEN"})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, discount.ErrExhausted):
					exhausted++
				default:
					t.Errorf("user %d: %v", user, err)
				}
			}(int64(100 + i))
		}
		wg.Wait()

		assert.Equal(t, 10, succeeded)
		assert.Equal(t, n-10, exhausted)

		c, err := discounts.FindByCode(ctx, "TEN")
		require.NoError(t, err)
		assert.Equal(t, 0, c.CanUses)
		assert.Equal(t, 10, c.UseCount)
	})

	t.Run("OwnerWithoutUserRow", func(t *testing.T) {
		const stranger int64 = 5000

		v, err := svc.GetCart(ctx, stranger)
		require.NoError(t, err)
		assert.Equal(t, stranger, v.Cart.UserID)

		v, err = svc.AddItem(ctx, stranger, widget, 1)
		require.NoError(t, err)
		assert.Len(t, v.Items, 1)
	})

	t.Run("ExpiryPersisted", func(t *testing.T) {
		c := createCode(t, discounts, "SOON", discount.TypeFixed, "5", 3)
		_, err := pool.Exec(ctx, `UPDATE discount_codes SET expired_at = now() - interval '1 minute' WHERE id = $1`, c.ID)
		require.NoError(t, err)

		_, err = svc.ApplyDiscount(ctx, 25, cart.ApplyDiscountRequest{Code: "SOON"})
		require.ErrorIs(t, err, discount.ErrExpired)

		got, err := discounts.FindByCode(ctx, "SOON")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, 3, got.CanUses)
	})
}
