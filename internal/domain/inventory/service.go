package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Service keeps the in-memory inventory and funnels every mutation through
// copy, mutate, save, swap. A failed save leaves the in-memory state as it was.
type Service struct {
	repo Repository
	lg   *zap.Logger

	mu       sync.RWMutex
	products []Product
}

// NewService creates a Service backed by repo. Call Load before use.
func NewService(repo Repository, lg *zap.Logger) *Service {
	return &Service{repo: repo, lg: lg}
}

// Load reads the collection from the repository. An unreadable or corrupt
// store is not fatal: the service starts from an empty inventory.
func (s *Service) Load(ctx context.Context) {
	products, err := s.repo.Load(ctx)
	if err != nil {
		s.lg.Warn("Inventory unreadable, starting empty", zap.Error(err))
		products = nil
	}

	s.mu.Lock()
	s.products = products
	s.mu.Unlock()

	s.lg.Info("Inventory loaded", zap.Int("products", len(products)))
}

// List returns a copy of every product in stored order.
func (s *Service) List() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// Names returns product names sorted alphabetically, as shown in pickers.
func (s *Service) Names() []string {
	products := s.List()
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// Find returns the first product matching name case-insensitively.
func (s *Service) Find(name string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.products, name); i >= 0 {
		return s.products[i], nil
	}
	return Product{}, ErrNotFound
}

// Register appends a new product.
func (s *Service) Register(ctx context.Context, p Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.Price.IsNegative() {
		return errors.Wrapf(ErrNegativePrice, "register %q", p.Name)
	}
	return s.mutate(ctx, func(products []Product) ([]Product, error) {
		if indexOf(products, p.Name) >= 0 {
			return nil, errors.Wrapf(ErrAlreadyExists, "register %q", p.Name)
		}
		return append(products, p), nil
	})
}

// Update changes price, stock or category of an existing product.
func (s *Service) Update(ctx context.Context, name string, u Update) (Product, error) {
	if u.Price != nil && u.Price.IsNegative() {
		return Product{}, errors.Wrapf(ErrNegativePrice, "update %q", name)
	}
	var updated Product
	err := s.mutate(ctx, func(products []Product) ([]Product, error) {
		i := indexOf(products, name)
		if i < 0 {
			return nil, errors.Wrapf(ErrNotFound, "update %q", name)
		}
		if u.Price != nil {
			products[i].Price = *u.Price
		}
		if u.Stock != nil {
			products[i].Stock = *u.Stock
		}
		if u.Category != nil {
			products[i].Category = *u.Category
		}
		updated = products[i]
		return products, nil
	})
	return updated, err
}

// Delete removes every product whose name matches exactly.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.mutate(ctx, func(products []Product) ([]Product, error) {
		kept := products[:0]
		for _, p := range products {
			if p.Name != name {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(products) {
			return nil, errors.Wrapf(ErrNotFound, "delete %q", name)
		}
		return kept, nil
	})
}

// Replace swaps the whole collection, as done by the table editor and by
// spreadsheet or backup restores.
func (s *Service) Replace(ctx context.Context, products []Product) error {
	return s.mutate(ctx, func([]Product) ([]Product, error) {
		out := make([]Product, len(products))
		copy(out, products)
		return out, nil
	})
}

// Decrement subtracts each withdrawal from every product matching its name
// case-insensitively. Withdrawals with no match are returned and otherwise
// ignored. Stock is not floored at zero.
func (s *Service) Decrement(ctx context.Context, withdrawals []Withdrawal) (unmatched []string, err error) {
	err = s.mutate(ctx, func(products []Product) ([]Product, error) {
		unmatched = unmatched[:0]
		for _, w := range withdrawals {
			found := false
			for i := range products {
				if !products[i].Matches(w.Name) {
					continue
				}
				found = true
				products[i].Stock = products[i].Stock.Sub(w.Quantity)
				if products[i].Stock.IsNegative() {
					s.lg.Warn("Stock below zero",
						zap.String("product", products[i].Name),
						zap.String("stock", products[i].Stock.String()),
					)
				}
			}
			if !found {
				unmatched = append(unmatched, w.Name)
			}
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return unmatched, nil
}

// Snapshot renders the inventory as text for the order extraction prompt,
// one "name: precio P, stock S" line per product.
func (s *Service) Snapshot() string {
	products := s.List()
	if len(products) == 0 {
		return "(inventario vacío)"
	}

	var b strings.Builder
	for _, p := range products {
		fmt.Fprintf(&b, "%s: precio %s, stock %s\n", p.Name, p.Price.String(), p.Stock.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

// mutate applies fn to a copy of the collection, persists the result and
// swaps it in. The write lock is held across the save so mutations are
// serialized.
func (s *Service) mutate(ctx context.Context, fn func([]Product) ([]Product, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make([]Product, len(s.products))
	copy(working, s.products)

	next, err := fn(working)
	if err != nil {
		return err
	}

	if err := s.repo.Save(ctx, next); err != nil {
		return errors.Wrap(err, "save inventory")
	}
	s.products = next
	return nil
}

func indexOf(products []Product, name string) int {
	for i, p := range products {
		if p.Matches(name) {
			return i
		}
	}
	return -1
}
