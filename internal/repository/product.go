package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shop-api/internal/domain/product"
)

const (
	productColumns = `id, title, slug, price, is_active, is_delete, created_at`

	listActiveProductsSQL = `SELECT ` + productColumns + `
		FROM products
		WHERE is_active AND NOT is_delete
		  AND ($1 = '' OR title ILIKE '%' || $1 || '%' ESCAPE '\')
		ORDER BY `

	getActiveProductSQL = `SELECT ` + productColumns + `
		FROM products WHERE id = $1 AND is_active AND NOT is_delete`
)

var orderClauses = map[product.Ordering]string{
	product.OrderByID:          "id",
	product.OrderByPrice:       "price, id",
	product.OrderByPriceDesc:   "price DESC, id",
	product.OrderByCreated:     "created_at, id",
	product.OrderByCreatedDesc: "created_at DESC, id",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// ListActive returns purchasable products whose title contains q.Search,
// sorted by q.Ordering.
func (r *ProductRepository) ListActive(ctx context.Context, q product.ListQuery) ([]product.Product, error) {
	order, ok := orderClauses[q.Ordering]
	if !ok {
		return nil, product.ErrInvalidOrdering
	}
	rows, err := r.pool.Query(ctx, listActiveProductsSQL+order, likeEscaper.Replace(q.Search))
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetActive returns a purchasable product by ID.
func (r *ProductRepository) GetActive(ctx context.Context, id int64) (*product.Product, error) {
	return getActiveProduct(ctx, r.pool, id)
}

func getActiveProduct(ctx context.Context, q querier, id int64) (*product.Product, error) {
	rows, err := q.Query(ctx, getActiveProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Price, &p.IsActive, &p.IsDelete, &p.CreatedAt)
	return p, err
}
