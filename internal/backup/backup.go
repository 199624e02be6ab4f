// Package backup writes and restores gzip-compressed copies of the
// inventory in the backing-file format.
package backup

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/storage/file"
)

// ContentType is the media type of a backup stream.
const ContentType = "application/gzip"

// Write compresses products into w.
func Write(w io.Writer, products []inventory.Product) error {
	zw := pgzip.NewWriter(w)
	zw.Name = "inventario.json"

	if err := file.Encode(zw, products); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "encode backup")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "flush backup")
	}
	return nil
}

// Read decompresses and decodes a backup produced by Write.
func Read(r io.Reader) ([]inventory.Product, error) {
	zr, err := pgzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open backup")
	}
	defer func() { _ = zr.Close() }()

	products, err := file.Decode(zr)
	if err != nil {
		return nil, errors.Wrap(err, "decode backup")
	}
	return products, nil
}
