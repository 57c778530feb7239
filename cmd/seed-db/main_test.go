package main

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProducts(t *testing.T) {
	products, err := decodeProducts([]byte(`[
		{"title": "Tea", "slug": "tea", "price": "3.50", "origin": "ignored"},
		{"title": "Old", "slug": "old", "price": "1", "is_active": false}
	]`))
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "tea", products[0].Slug)
	assert.True(t, decimal.RequireFromString("3.5").Equal(products[0].Price))
	assert.True(t, products[0].IsActive)
	assert.False(t, products[1].IsActive)
}

func TestDecodeProducts_Invalid(t *testing.T) {
	tests := map[string]string{
		"not an array":  `{"title": "x"}`,
		"bad price":     `[{"title": "x", "slug": "x", "price": "cheap"}]`,
		"numeric price": `[{"title": "x", "slug": "x", "price": 3}]`,
		"missing slug":  `[{"title": "x", "price": "1"}]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeProducts([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestSeedFile(t *testing.T) {
	data, err := os.ReadFile("../../db/seed/products.json")
	require.NoError(t, err)

	products, err := decodeProducts(data)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
}

func TestSeedCodesAreValid(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range codes {
		assert.False(t, seen[c.Code], "duplicate code %s", c.Code)
		seen[c.Code] = true
		assert.True(t, c.Type.Valid())
		assert.Positive(t, c.CanUses)
	}
}
