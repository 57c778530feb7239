package discount

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Storage limits of a code. Values carry at most two decimal places.
const (
	valueScale = 2
	// MaxUses leaves headroom below the column limit for refunds.
	MaxUses = 1_000_000_000
)

// maxValue is the largest amount a stored discount value can hold.
var maxValue = decimal.RequireFromString("99999999.99")

// ValidationError reports the field that failed validation. It unwraps to one
// of ErrInvalidValue, ErrInvalidExpiry or ErrInvalidInput.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the invariants a code must satisfy when it is created or
// updated. Expiry is only checked here, not continuously.
func Validate(c *Code, now time.Time) error {
	if strings.TrimSpace(c.Code) == "" {
		return &ValidationError{Field: "code", Err: ErrInvalidInput}
	}
	if strings.TrimSpace(c.Title) == "" {
		return &ValidationError{Field: "title", Err: ErrInvalidInput}
	}
	if !c.Type.Valid() {
		return &ValidationError{Field: "discount_type", Err: ErrInvalidInput}
	}
	if c.Value.IsNegative() || c.Value.GreaterThan(maxValue) {
		return &ValidationError{Field: "discount_value", Err: ErrInvalidValue}
	}
	if !c.Value.Equal(c.Value.Truncate(valueScale)) {
		return &ValidationError{Field: "discount_value", Err: ErrInvalidValue}
	}
	if c.Type == TypePercentage && c.Value.GreaterThan(hundred) {
		return &ValidationError{Field: "discount_value", Err: ErrInvalidValue}
	}
	if c.CanUses < 0 || c.CanUses > MaxUses {
		return &ValidationError{Field: "can_uses", Err: ErrInvalidInput}
	}
	if !c.ExpiredAt.After(now) {
		return &ValidationError{Field: "expired_at", Err: ErrInvalidExpiry}
	}
	return nil
}
