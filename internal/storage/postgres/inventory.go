package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morita/pos/internal/domain/inventory"
)

const (
	listInventorySQL = `SELECT name, price, stock, COALESCE(category, '')
		FROM inventory ORDER BY position`

	clearInventorySQL = `DELETE FROM inventory`
)

var inventoryColumns = []string{"position", "name", "price", "stock", "category"}

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
// Rows keep the collection order through the position column.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Load returns every product in stored order.
func (r *InventoryRepository) Load(ctx context.Context) ([]inventory.Product, error) {
	rows, err := r.pool.Query(ctx, listInventorySQL)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scanning inventory: %w", err)
	}
	return products, nil
}

// Save replaces the table contents with products in one transaction.
func (r *InventoryRepository) Save(ctx context.Context, products []inventory.Product) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, clearInventorySQL); err != nil {
		return fmt.Errorf("clearing inventory: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"inventory"}, inventoryColumns,
		pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
			p := products[i]
			var category any
			if p.Category != "" {
				category = p.Category
			}
			return []any{i, p.Name, p.Price, p.Stock, category}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying %d products: %w", len(products), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing inventory: %w", err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (inventory.Product, error) {
	var p inventory.Product
	err := row.Scan(&p.Name, &p.Price, &p.Stock, &p.Category)
	return p, err
}
