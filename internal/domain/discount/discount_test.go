package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestType_Apply(t *testing.T) {
	tests := []struct {
		name     string
		typ      Type
		subtotal decimal.Decimal
		value    decimal.Decimal
		want     decimal.Decimal
	}{
		{name: "fixed 20 off 140", typ: TypeFixed, subtotal: d("140"), value: d("20"), want: d("120")},
		{name: "fixed floored at zero", typ: TypeFixed, subtotal: d("15"), value: d("100"), want: d("0")},
		{name: "fixed on empty cart", typ: TypeFixed, subtotal: d("0"), value: d("5"), want: d("0")},
		{name: "percentage 25 off 140", typ: TypePercentage, subtotal: d("140"), value: d("25"), want: d("105")},
		{name: "percentage 100 is free", typ: TypePercentage, subtotal: d("99.99"), value: d("100"), want: d("0")},
		{name: "percentage 0 is identity", typ: TypePercentage, subtotal: d("42.50"), value: d("0"), want: d("42.50")},
		{name: "percentage keeps exact cents", typ: TypePercentage, subtotal: d("9.99"), value: d("15"), want: d("8.4915")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.Apply(tt.subtotal, tt.value)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestType_ApplyUnsupported(t *testing.T) {
	_, err := Type("bogus").Apply(d("10"), d("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
	assert.False(t, Type("bogus").Valid())
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	valid := func() *Code {
		return &Code{
			Title:     "Summer",
			Code:      "#123",
			Type:      TypePercentage,
			Value:     d("90"),
			ExpiredAt: now.Add(time.Hour),
			CanUses:   10,
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Code)
		wantErr   error
		wantField string
	}{
		{name: "valid percentage", mutate: func(*Code) {}},
		{name: "percentage exactly 100", mutate: func(c *Code) { c.Value = d("100") }},
		{
			name:      "percentage above 100",
			mutate:    func(c *Code) { c.Value = d("101") },
			wantErr:   ErrInvalidValue,
			wantField: "discount_value",
		},
		{
			name: "fixed above 100 is fine",
			mutate: func(c *Code) {
				c.Type = TypeFixed
				c.Value = d("250")
			},
		},
		{
			name:      "negative value",
			mutate:    func(c *Code) { c.Type = TypeFixed; c.Value = d("-1") },
			wantErr:   ErrInvalidValue,
			wantField: "discount_value",
		},
		{name: "two decimal places", mutate: func(c *Code) { c.Value = d("12.35") }},
		{name: "trailing zeros", mutate: func(c *Code) { c.Value = d("12.500") }},
		{
			name:      "three decimal places",
			mutate:    func(c *Code) { c.Value = d("12.345") },
			wantErr:   ErrInvalidValue,
			wantField: "discount_value",
		},
		{
			name:      "fixed above storage limit",
			mutate:    func(c *Code) { c.Type = TypeFixed; c.Value = d("100000000") },
			wantErr:   ErrInvalidValue,
			wantField: "discount_value",
		},
		{
			name: "fixed at storage limit",
			mutate: func(c *Code) {
				c.Type = TypeFixed
				c.Value = d("99999999.99")
			},
		},
		{name: "can_uses at limit", mutate: func(c *Code) { c.CanUses = MaxUses }},
		{
			name:      "can_uses above limit",
			mutate:    func(c *Code) { c.CanUses = MaxUses + 1 },
			wantErr:   ErrInvalidInput,
			wantField: "can_uses",
		},
		{
			name:      "expiry in the past",
			mutate:    func(c *Code) { c.ExpiredAt = now.Add(-time.Hour) },
			wantErr:   ErrInvalidExpiry,
			wantField: "expired_at",
		},
		{
			name:      "expiry equal to now",
			mutate:    func(c *Code) { c.ExpiredAt = now },
			wantErr:   ErrInvalidExpiry,
			wantField: "expired_at",
		},
		{
			name:      "empty code",
			mutate:    func(c *Code) { c.Code = "  " },
			wantErr:   ErrInvalidInput,
			wantField: "code",
		},
		{
			name:      "unknown type",
			mutate:    func(c *Code) { c.Type = "bogo" },
			wantErr:   ErrInvalidInput,
			wantField: "discount_type",
		},
		{
			name:      "negative can_uses",
			mutate:    func(c *Code) { c.CanUses = -1 },
			wantErr:   ErrInvalidInput,
			wantField: "can_uses",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)

			err := Validate(c, now)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestRefreshStatus(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("active and unexpired", func(t *testing.T) {
		c := &Code{IsActive: true, ExpiredAt: now.Add(90 * time.Minute)}
		st := RefreshStatus(c, now)
		assert.True(t, st.Usable)
		assert.False(t, st.Deactivate)
		assert.Equal(t, 90*time.Minute, st.Remaining)
		assert.True(t, c.IsActive, "status must not mutate the code")
	})

	t.Run("active but past expiry asks for deactivation", func(t *testing.T) {
		c := &Code{IsActive: true, ExpiredAt: now.Add(-5 * time.Minute)}
		st := RefreshStatus(c, now)
		assert.False(t, st.Usable)
		assert.True(t, st.Deactivate)
		assert.Zero(t, st.Remaining)
		assert.True(t, c.IsActive, "status must not mutate the code")
	})

	t.Run("expiry equal to now is expired", func(t *testing.T) {
		st := RefreshStatus(&Code{IsActive: true, ExpiredAt: now}, now)
		assert.False(t, st.Usable)
		assert.True(t, st.Deactivate)
	})

	t.Run("inactive short-circuits regardless of expiry", func(t *testing.T) {
		st := RefreshStatus(&Code{IsActive: false, ExpiredAt: now.Add(time.Hour)}, now)
		assert.Equal(t, Status{}, st)
	})
}

func TestCode_Exhausted(t *testing.T) {
	assert.True(t, (&Code{CanUses: 0}).Exhausted())
	assert.False(t, (&Code{CanUses: 1}).Exhausted())
}
