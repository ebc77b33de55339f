package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_ChargesShippingWhenNotEmpty(t *testing.T) {
	s, _ := emptyStore(t)
	require.NoError(t, s.AddItem(context.Background(), widget(10), 2))

	sum := Summarize(s, decimal.NewFromInt(10))

	assert.Len(t, sum.Items, 1)
	assert.Equal(t, 2, sum.ItemCount)
	assert.Equal(t, "20", sum.Subtotal.String())
	assert.Equal(t, "10", sum.Shipping.String())
	assert.Equal(t, "30", sum.Total.String())
}

func TestSummarize_EmptyCartHasNoShipping(t *testing.T) {
	s, _ := emptyStore(t)

	sum := Summarize(s, decimal.NewFromInt(10))

	assert.Empty(t, sum.Items)
	assert.True(t, sum.Shipping.IsZero())
	assert.True(t, sum.Total.IsZero())
}

func TestSummarize_FreeItemsHaveNoShipping(t *testing.T) {
	s, _ := emptyStore(t)
	require.NoError(t, s.AddItem(context.Background(), product("free", 0), 1))

	sum := Summarize(s, decimal.NewFromInt(10))
	assert.True(t, sum.Shipping.IsZero())
	assert.Equal(t, 1, sum.ItemCount)
}
