package file

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/morita/pos/internal/domain/inventory"
)

var _ inventory.Repository = (*Repository)(nil)

// Repository implements inventory.Repository on a JSON file. Save rewrites
// the whole file in place.
type Repository struct {
	path string
}

// NewRepository returns a Repository reading and writing path.
func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Path returns the backing file location.
func (r *Repository) Path() string {
	return r.path
}

// Load reads the file. A missing file is an empty inventory.
func (r *Repository) Load(_ context.Context) ([]inventory.Product, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []inventory.Product{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read inventory file")
	}
	return Decode(bytes.NewReader(data))
}

// Save encodes products and overwrites the file.
func (r *Repository) Save(_ context.Context, products []inventory.Product) error {
	var buf bytes.Buffer
	if err := Encode(&buf, products); err != nil {
		return errors.Wrap(err, "encode inventory")
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create inventory dir")
		}
	}
	if err := os.WriteFile(r.path, buf.Bytes(), 0o644); err != nil {
		return errors.Wrap(err, "write inventory file")
	}
	return nil
}
