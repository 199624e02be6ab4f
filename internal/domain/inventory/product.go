// Package inventory owns the store's product list. Every mutation replaces
// the whole collection and persists it through a Repository.
package inventory

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a named product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrAlreadyExists is returned when registering a name already in use.
	ErrAlreadyExists = errors.New("product already exists")
	// ErrNameRequired is returned when registering a product without a name.
	ErrNameRequired = errors.New("product name required")
	// ErrNegativePrice is returned when a price below zero is set.
	ErrNegativePrice = errors.New("price must not be negative")
)

// Categories offered when registering a product.
var Categories = []string{"Almacén", "Bebidas", "Limpieza", "Verdura", "Otros"}

// Product is an inventory record. Name is the key; lookups ignore case.
type Product struct {
	Name     string
	Price    decimal.Decimal
	Stock    decimal.Decimal
	Category string
}

// Matches reports whether name refers to this product.
func (p Product) Matches(name string) bool {
	return strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(name))
}

// Update holds the fields to change on an existing product. Nil fields are
// left untouched.
type Update struct {
	Price    *decimal.Decimal
	Stock    *decimal.Decimal
	Category *string
}

// Withdrawal is a stock decrement requested by a finalized sale.
type Withdrawal struct {
	Name     string
	Quantity decimal.Decimal
}

// Repository loads and saves the whole product collection.
type Repository interface {
	Load(ctx context.Context) ([]Product, error)
	Save(ctx context.Context, products []Product) error
}
