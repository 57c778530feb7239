package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage takes a percentage off the subtotal.
	TypePercentage Type = "percentage"
	// TypeFixed takes a fixed amount off the subtotal, never below zero.
	TypeFixed Type = "fixed"
)

var (
	// ErrNotFound is returned when no discount code matches the given code.
	ErrNotFound = errors.New("discount code not found")
	// ErrAlreadyExists is returned when creating a code whose string is taken.
	ErrAlreadyExists = errors.New("discount code already exists")
	// ErrExhausted is returned when a code has no remaining uses.
	ErrExhausted = errors.New("discount code usage limit reached")
	// ErrExpired is returned when a code is past its expiry or deactivated.
	ErrExpired = errors.New("discount code expired")
	// ErrInvalidValue is returned for out-of-range discount values.
	ErrInvalidValue = errors.New("invalid discount value")
	// ErrInvalidExpiry is returned when the expiry is not in the future.
	ErrInvalidExpiry = errors.New("invalid discount expiry")
	// ErrInvalidInput is returned for missing or malformed fields.
	ErrInvalidInput = errors.New("invalid discount input")
)

var hundred = decimal.NewFromInt(100)

// Code is a discount definition shared by any number of carts.
type Code struct {
	ID        int64
	Title     string
	Code      string
	Type      Type
	Value     decimal.Decimal
	CreatedAt time.Time
	ExpiredAt time.Time
	IsActive  bool
	// CanUses is the number of bindings still allowed.
	CanUses int
	// UseCount only ever grows.
	UseCount int
}

// Exhausted reports whether the code has no remaining uses.
func (c *Code) Exhausted() bool {
	return c.CanUses < 1
}

// Apply returns the total after applying the code to subtotal.
func (c *Code) Apply(subtotal decimal.Decimal) (decimal.Decimal, error) {
	return c.Type.Apply(subtotal, c.Value)
}

var appliers = map[Type]func(subtotal, value decimal.Decimal) decimal.Decimal{
	TypeFixed: func(subtotal, value decimal.Decimal) decimal.Decimal {
		return decimal.Max(decimal.Zero, subtotal.Sub(value))
	},
	TypePercentage: func(subtotal, value decimal.Decimal) decimal.Decimal {
		return subtotal.Mul(decimal.NewFromInt(1).Sub(value.Div(hundred)))
	},
}

// Valid reports whether t is a known discount type.
func (t Type) Valid() bool {
	_, ok := appliers[t]
	return ok
}

// Apply returns subtotal with a discount of this type and value taken off.
// No rounding is performed.
func (t Type) Apply(subtotal, value decimal.Decimal) (decimal.Decimal, error) {
	fn, ok := appliers[t]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported discount type: %q", t)
	}
	return fn(subtotal, value), nil
}

// Repository persists discount codes outside of cart transactions.
type Repository interface {
	Create(ctx context.Context, c *Code) error
	Update(ctx context.Context, c *Code) error
	FindByCode(ctx context.Context, code string) (*Code, error)
	Deactivate(ctx context.Context, id int64) error
}

// Locker is the transactional view of the registry used while binding codes
// to carts. Implementations hold a row lock on every code they return until
// the surrounding transaction ends.
type Locker interface {
	LockByCode(ctx context.Context, code string) (*Code, error)
	// TryConsumeUse atomically increments use_count and decrements can_uses
	// when can_uses >= 1. It reports false when the code is exhausted.
	TryConsumeUse(ctx context.Context, id int64) (bool, error)
	// RefundUse gives one use back to the code.
	RefundUse(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
}
