package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartTotal(t *testing.T) {
	cart := NewCart("u1", []CartItem{
		{CartLine: CartLine{Quantity: 3}, Product: Product{Price: decimal.RequireFromString("19.99")}},
		{CartLine: CartLine{Quantity: 1}, Product: Product{Price: decimal.RequireFromString("0.03")}},
	})

	assert.Equal(t, "60", cart.Total().String())
	assert.False(t, cart.IsEmpty())
}

func TestNewCart_Empty(t *testing.T) {
	cart := NewCart("u1", nil)

	require.NotNil(t, cart.Items)
	assert.True(t, cart.IsEmpty())
	assert.True(t, cart.Total().IsZero())
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("  TShirt ")
	require.NoError(t, err)
	assert.Equal(t, CategoryTShirt, c)

	_, err = ParseCategory("socks")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestProductValidate(t *testing.T) {
	p := Product{Name: "Tee", Barcode: "B1", Category: CategoryTShirt, Price: decimal.NewFromInt(5)}
	require.NoError(t, p.Validate())

	p.Category = "socks"
	require.ErrorIs(t, p.Validate(), ErrInvalidArgument)
}

func TestOrderLedgerDescription(t *testing.T) {
	assert.Equal(t, "Order #o1 by user u1", OrderLedgerDescription("o1", "u1"))
}
