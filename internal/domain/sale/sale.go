// Package sale computes checkout totals and finalizes a cart against the
// inventory.
package sale

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/cart"
	"github.com/morita/pos/internal/domain/inventory"
)

// ErrEmptyCart is returned when finalizing a cart with no lines.
var ErrEmptyCart = errors.New("cart is empty")

// Receipt is the snapshot of a transaction. It is rendered on a ticket but
// never persisted as a record.
type Receipt struct {
	ID        string
	StoreName string
	Customer  string
	Lines     []cart.Line
	Total     decimal.Decimal
	Tendered  decimal.Decimal
	Change    decimal.Decimal
	IssuedAt  time.Time
	// Unmatched lists cart products that had no inventory entry and so did
	// not affect stock.
	Unmatched []string
}

// Stock is the inventory operation a finalized sale needs.
type Stock interface {
	Decrement(ctx context.Context, withdrawals []inventory.Withdrawal) ([]string, error)
}

// Service builds receipts and applies finalized sales to stock.
type Service struct {
	stock     Stock
	storeName string
	lg        *zap.Logger
	now       func() time.Time

	sales  metric.Int64Counter
	amount metric.Float64Counter
}

// NewService creates a sale Service.
func NewService(stock Stock, storeName string, lg *zap.Logger, meter metric.Meter) (*Service, error) {
	sales, err := meter.Int64Counter("pos.sales",
		metric.WithDescription("Finalized sales"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "sales counter")
	}
	amount, err := meter.Float64Counter("pos.sales.amount",
		metric.WithDescription("Sum of finalized sale totals"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "amount counter")
	}

	return &Service{
		stock:     stock,
		storeName: storeName,
		lg:        lg,
		now:       time.Now,
		sales:     sales,
		amount:    amount,
	}, nil
}

// Quote builds a receipt for the cart without touching stock.
func (s *Service) Quote(c *cart.Cart, tendered decimal.Decimal, customer string) *Receipt {
	total := c.Total()
	snapshot := c.Clone()
	return &Receipt{
		ID:        uuid.New().String(),
		StoreName: s.storeName,
		Customer:  strings.TrimSpace(customer),
		Lines:     snapshot.Lines,
		Total:     total,
		Tendered:  tendered,
		Change:    cart.Change(total, tendered),
		IssuedAt:  s.now(),
	}
}

// Finalize decrements stock for every cart line and persists the inventory.
// Lines whose product is not in the inventory are skipped. The cart itself
// is not modified; callers clear it once Finalize succeeds.
func (s *Service) Finalize(ctx context.Context, c *cart.Cart, tendered decimal.Decimal, customer string) (*Receipt, error) {
	if c.Len() == 0 {
		return nil, ErrEmptyCart
	}

	r := s.Quote(c, tendered, customer)

	withdrawals := make([]inventory.Withdrawal, len(r.Lines))
	for i, l := range r.Lines {
		withdrawals[i] = inventory.Withdrawal{Name: l.Product, Quantity: l.Quantity}
	}

	unmatched, err := s.stock.Decrement(ctx, withdrawals)
	if err != nil {
		return nil, errors.Wrap(err, "decrement stock")
	}
	r.Unmatched = unmatched

	s.sales.Add(ctx, 1)
	s.amount.Add(ctx, r.Total.InexactFloat64())
	s.lg.Info("Sale finalized",
		zap.String("receipt_id", r.ID),
		zap.Int("lines", len(r.Lines)),
		zap.String("total", r.Total.StringFixed(2)),
		zap.Strings("unmatched", unmatched),
	)

	return r, nil
}
