package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAdd_SubtotalIsQuantityTimesPrice(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("Coca Cola", d("2"), d("3500")))
	require.NoError(t, c.Add("Pan", d("0.75"), d("1200")))
	require.NoError(t, c.Add("Agua", d("3"), d("0")))

	for _, l := range c.Lines {
		assert.True(t, l.Quantity.Mul(l.UnitPrice).Equal(l.Subtotal()), "line %s", l.Product)
	}
	assert.True(t, d("7000").Equal(c.Lines[0].Subtotal()))
	assert.True(t, d("900").Equal(c.Lines[1].Subtotal()))
}

func TestAdd_Validation(t *testing.T) {
	var c Cart

	assert.ErrorIs(t, c.Add("Pan", decimal.Zero, d("10")), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add("Pan", d("-1"), d("10")), ErrInvalidQuantity)
	assert.ErrorIs(t, c.Add("Pan", d("1"), d("-0.01")), ErrNegativePrice)
	assert.Zero(t, c.Len())
}

func TestRemove(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("A", d("1"), d("1")))
	require.NoError(t, c.Add("B", d("1"), d("2")))
	require.NoError(t, c.Add("C", d("1"), d("3")))

	require.NoError(t, c.Remove(1))
	require.Len(t, c.Lines, 2)
	assert.Equal(t, "A", c.Lines[0].Product)
	assert.Equal(t, "C", c.Lines[1].Product)

	assert.ErrorIs(t, c.Remove(2), ErrLineNotFound)
	assert.ErrorIs(t, c.Remove(-1), ErrLineNotFound)
}

func TestTotal(t *testing.T) {
	var c Cart
	assert.True(t, decimal.Zero.Equal(c.Total()))

	require.NoError(t, c.Add("Coca Cola", d("2"), d("3500")))
	require.NoError(t, c.Add("Pan", d("1.5"), d("1000")))
	assert.True(t, d("8500").Equal(c.Total()))
}

func TestChange(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		tendered string
		want     string
	}{
		{name: "underpaid floors at zero", total: "7000", tendered: "5000", want: "0"},
		{name: "overpaid", total: "7000", tendered: "10000", want: "3000"},
		{name: "exact", total: "7000", tendered: "7000", want: "0"},
		{name: "nothing tendered", total: "7000", tendered: "0", want: "0"},
		{name: "cents", total: "10.25", tendered: "20", want: "9.75"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Change(d(tt.total), d(tt.tendered))
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
			assert.False(t, got.IsNegative())
		})
	}
}

func TestCartChange(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("Coca Cola", d("2"), d("3500")))

	assert.True(t, decimal.Zero.Equal(c.Change(d("5000"))))
	assert.True(t, d("3000").Equal(c.Change(d("10000"))))
}

func TestClone_IsIndependent(t *testing.T) {
	var c Cart
	require.NoError(t, c.Add("A", d("1"), d("1")))

	cp := c.Clone()
	c.Clear()

	assert.Zero(t, c.Len())
	assert.Equal(t, 1, cp.Len())
}
