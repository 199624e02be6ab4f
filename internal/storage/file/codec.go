// Package file stores the inventory as a JSON array in a single file.
package file

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/morita/pos/internal/domain/inventory"
)

// Keys of a product object in the backing file.
const (
	keyName     = "Producto"
	keyPrice    = "Precio"
	keyStock    = "Stock"
	keyCategory = "Rubro"
)

// Encode writes products as an indented JSON array.
func Encode(w io.Writer, products []inventory.Product) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.SetIdent(4)

	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart(keyName)
		e.Str(p.Name)
		e.FieldStart(keyPrice)
		e.Num(jx.Num(p.Price.String()))
		e.FieldStart(keyStock)
		e.Num(jx.Num(p.Stock.String()))
		e.FieldStart(keyCategory)
		if p.Category == "" {
			e.Null()
		} else {
			e.Str(p.Category)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	if _, err := w.Write(e.Bytes()); err != nil {
		return errors.Wrap(err, "write")
	}
	return nil
}

// Decode reads a JSON array of products. Numbers may also be given as
// strings; a missing or null Rubro leaves the category empty. Unknown keys
// are ignored.
func Decode(r io.Reader) ([]inventory.Product, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	products := []inventory.Product{}
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return errors.Wrapf(err, "product %d", len(products))
		}
		products = append(products, p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode inventory")
	}
	return products, nil
}

func decodeProduct(d *jx.Decoder) (inventory.Product, error) {
	var (
		p       inventory.Product
		hasName bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case keyName:
			p.Name, err = d.Str()
			hasName = true
		case keyPrice:
			p.Price, err = decodeDecimal(d)
		case keyStock:
			p.Stock, err = decodeDecimal(d)
		case keyCategory:
			if d.Next() == jx.Null {
				return d.Null()
			}
			p.Category, err = d.Str()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return p, err
	}
	if !hasName {
		return p, errors.Errorf("missing %q", keyName)
	}
	return p, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", d.Next())
	}
}
