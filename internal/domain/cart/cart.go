package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/domain/product"
)

var (
	// ErrNotFound is returned when a referenced cart does not belong to the caller.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when updating a product that is not in the cart.
	ErrItemNotFound = errors.New("item does not exist")
	// ErrInvalidInput is the sentinel wrapped by every InputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict is returned when a transaction kept losing to concurrent
	// writers. The request can be retried.
	ErrConflict = errors.New("cart is busy, retry later")
)

// InputError reports a missing or malformed request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

var errQuantityTooLarge = &InputError{Field: "quantity", Reason: fmt.Sprintf("line quantity cannot exceed %d", MaxQuantity)}

// Cart is the single cart owned by a user.
type Cart struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Item is one cart line joined with the product data needed for pricing.
type Item struct {
	ProductID int64
	Title     string
	Price     decimal.Decimal
	Quantity  int
}

// LineTotal returns price × quantity without rounding.
func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Binding ties a cart to the discount code applied to it.
type Binding struct {
	CartID    string
	CodeID    int64
	CreatedAt time.Time
}

// View is a priced snapshot of a cart.
type View struct {
	Cart     Cart
	Items    []Item
	Discount *discount.Code
	Totals   Totals
}

// Store runs units of work against cart state.
type Store interface {
	// InTx runs fn in a transaction. fn may be invoked more than once when the
	// transaction has to be retried, so it must not leak state between calls.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a cart transaction.
type Tx interface {
	discount.Locker

	// LockCart returns the user's cart, creating it from candidate when the
	// user has none, and locks it until the transaction ends.
	LockCart(ctx context.Context, candidate Cart) (*Cart, error)
	// Items returns the cart lines in insertion order.
	Items(ctx context.Context, cartID string) ([]Item, error)
	ActiveProduct(ctx context.Context, id int64) (*product.Product, error)
	// AddQuantity creates the line or increments its quantity by qty.
	AddQuantity(ctx context.Context, cartID string, productID int64, qty int) error
	// SetQuantity replaces the quantity of an existing line. It reports false
	// when the line does not exist.
	SetQuantity(ctx context.Context, cartID string, productID int64, qty int) (bool, error)
	// DeleteItem reports false when the line did not exist.
	DeleteItem(ctx context.Context, cartID string, productID int64) (bool, error)
	Touch(ctx context.Context, cartID string, at time.Time) error

	// Binding returns nil without error when the cart has no discount.
	Binding(ctx context.Context, cartID string) (*Binding, error)
	// SaveBinding inserts the binding or replaces its code in place.
	SaveBinding(ctx context.Context, b Binding) error
	DeleteBinding(ctx context.Context, cartID string) error
	// Code reads a discount code without locking it.
	Code(ctx context.Context, id int64) (*discount.Code, error)
}
