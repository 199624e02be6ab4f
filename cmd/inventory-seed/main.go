package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"

	"github.com/morita/pos/internal/backup"
	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/spreadsheet"
	"github.com/morita/pos/internal/storage/file"
	"github.com/morita/pos/internal/storage/postgres"
)

func main() {
	var (
		driver        string
		inventoryPath string
		databaseURL   string
		source        string
		force         bool
	)

	flag.StringVar(&driver, "driver", "file", "target inventory store: file or postgres")
	flag.StringVar(&inventoryPath, "inventory-path", "inventario_morita.json", "backing JSON file for the file driver")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&source, "source", "db/seed/inventario.json", "products to load: inventory JSON, .xlsx workbook or .json.gz backup")
	flag.BoolVar(&force, "force", false, "overwrite a non-empty inventory")
	flag.Parse()

	if driver == "postgres" && databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if driver == "postgres" && databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, driver, inventoryPath, databaseURL, source, force); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, driver, inventoryPath, databaseURL, source string, force bool) error {
	products, err := readSource(source)
	if err != nil {
		return errors.Wrapf(err, "read %s", source)
	}
	slog.Info("read products", slog.String("source", source), slog.Int("count", len(products)))

	var repo inventory.Repository
	switch driver {
	case "file":
		repo = file.NewRepository(inventoryPath)
	case "postgres":
		slog.Info("connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		slog.Info("running migrations")
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		repo = postgres.NewInventoryRepository(pool)
	default:
		return errors.Errorf("unknown driver %q", driver)
	}

	existing, err := repo.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load current inventory")
	}
	if len(existing) > 0 && !force {
		return errors.Errorf("inventory already has %d products, use --force to overwrite", len(existing))
	}

	if err := repo.Save(ctx, products); err != nil {
		return errors.Wrap(err, "save inventory")
	}
	for _, p := range products {
		slog.Info("seeded product",
			slog.String("name", p.Name),
			slog.String("price", p.Price.String()),
			slog.String("stock", p.Stock.String()),
		)
	}
	return nil
}

func readSource(path string) ([]inventory.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var products []inventory.Product
	switch {
	case strings.EqualFold(filepath.Ext(path), ".xlsx"):
		products, err = spreadsheet.Import(bytes.NewReader(data))
	case strings.HasSuffix(strings.ToLower(path), ".gz"):
		products, err = backup.Read(bytes.NewReader(data))
	default:
		products, err = file.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}

	for i, p := range products {
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.Wrapf(inventory.ErrNameRequired, "product %d", i+1)
		}
	}
	return products, nil
}
