// Package cart holds the in-memory list of line items a cashier is ringing up.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart mutations.
var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrNegativePrice   = errors.New("unit price must not be negative")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Line is a single cart entry. The cart holds a copy of the product name and
// price, never a reference into the inventory.
type Line struct {
	Product   string          `json:"product"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal returns Quantity × UnitPrice.
func (l Line) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Cart is an ordered list of lines.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Add appends a line for product.
func (c *Cart) Add(product string, quantity, unitPrice decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return ErrNegativePrice
	}
	c.Lines = append(c.Lines, Line{
		Product:   product,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	return nil
}

// AddLine appends an already built line, applying the same checks as Add.
func (c *Cart) AddLine(l Line) error {
	return c.Add(l.Product, l.Quantity, l.UnitPrice)
}

// Remove deletes the line at index.
func (c *Cart) Remove(index int) error {
	if index < 0 || index >= len(c.Lines) {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Lines = nil
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.Lines)
}

// Total sums every line subtotal.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Change returns the change owed for tendered against this cart's total.
func (c *Cart) Change(tendered decimal.Decimal) decimal.Decimal {
	return Change(c.Total(), tendered)
}

// Change returns max(0, tendered - total). Paying less than the total is
// allowed and yields zero change, not a negative amount.
func Change(total, tendered decimal.Decimal) decimal.Decimal {
	change := tendered.Sub(total)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() Cart {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)
	return Cart{Lines: lines}
}
