package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist, is
// inactive, or has been soft-deleted.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID        int64
	Title     string
	Slug      string
	Price     decimal.Decimal
	IsActive  bool
	IsDelete  bool
	CreatedAt time.Time
}

// Purchasable reports whether the product may be placed in a cart.
func (p *Product) Purchasable() bool {
	return p.IsActive && !p.IsDelete
}

// ErrInvalidOrdering is returned by ParseOrdering for unsupported keys.
var ErrInvalidOrdering = errors.New("ordering must be one of price, -price, created_at, -created_at")

// Ordering is a catalog sort key. A leading "-" sorts descending.
type Ordering string

const (
	OrderByID          Ordering = ""
	OrderByPrice       Ordering = "price"
	OrderByPriceDesc   Ordering = "-price"
	OrderByCreated     Ordering = "created_at"
	OrderByCreatedDesc Ordering = "-created_at"
)

// ParseOrdering validates a sort key. The empty string keeps ID order.
func ParseOrdering(s string) (Ordering, error) {
	switch o := Ordering(s); o {
	case OrderByID, OrderByPrice, OrderByPriceDesc, OrderByCreated, OrderByCreatedDesc:
		return o, nil
	default:
		return "", ErrInvalidOrdering
	}
}

// ListQuery narrows and sorts the catalog listing. Search matches titles
// case-insensitively.
type ListQuery struct {
	Search   string
	Ordering Ordering
}

// Repository defines read operations for the product catalog. Only active,
// non-deleted products are visible through it.
type Repository interface {
	ListActive(ctx context.Context, q ListQuery) ([]Product, error)
	GetActive(ctx context.Context, id int64) (*Product, error)
}
