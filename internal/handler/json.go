package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/morita/pos/internal/domain/cart"
	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/domain/sale"
	"github.com/morita/pos/internal/domain/session"
)

const maxJSONBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(code)
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeProduct(e *jx.Encoder, p inventory.Product) {
	e.ObjStart()
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeDecimal(e, p.Price)
	e.FieldStart("stock")
	encodeDecimal(e, p.Stock)
	e.FieldStart("category")
	e.Str(p.Category)
	e.ObjEnd()
}

// encodeProducts renders the inventory table plus the sorted names the
// till offers in its product picker.
func encodeProducts(e *jx.Encoder, products []inventory.Product, names []string) {
	e.ObjStart()
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range products {
		encodeProduct(e, p)
	}
	e.ArrEnd()
	e.FieldStart("names")
	e.ArrStart()
	for _, n := range names {
		e.Str(n)
	}
	e.ArrEnd()
	e.FieldStart("categories")
	e.ArrStart()
	for _, c := range inventory.Categories {
		e.Str(c)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeLines(e *jx.Encoder, lines []cart.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("product")
		e.Str(l.Product)
		e.FieldStart("quantity")
		encodeDecimal(e, l.Quantity)
		e.FieldStart("unit_price")
		encodeDecimal(e, l.UnitPrice)
		e.FieldStart("subtotal")
		encodeDecimal(e, l.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
}

// encodeSession renders the till state: cart, totals for tendered and the
// voice order waiting for confirmation.
func encodeSession(e *jx.Encoder, s *session.Session, tendered decimal.Decimal) {
	e.ObjStart()
	e.FieldStart("lines")
	encodeLines(e, s.Cart.Lines)
	e.FieldStart("total")
	encodeDecimal(e, s.Cart.Total())
	e.FieldStart("tendered")
	encodeDecimal(e, tendered)
	e.FieldStart("change")
	encodeDecimal(e, s.Cart.Change(tendered))
	e.FieldStart("transcript")
	e.Str(s.Transcript)
	e.FieldStart("pending_order")
	e.Str(s.PendingOrder)
	e.ObjEnd()
}

func encodeReceipt(e *jx.Encoder, r *sale.Receipt) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("store")
	e.Str(r.StoreName)
	e.FieldStart("customer")
	e.Str(r.Customer)
	e.FieldStart("lines")
	encodeLines(e, r.Lines)
	e.FieldStart("total")
	encodeDecimal(e, r.Total)
	e.FieldStart("tendered")
	encodeDecimal(e, r.Tendered)
	e.FieldStart("change")
	encodeDecimal(e, r.Change)
	e.FieldStart("issued_at")
	e.Str(r.IssuedAt.Format("2006-01-02T15:04:05Z07:00"))
	e.FieldStart("unmatched")
	e.ArrStart()
	for _, name := range r.Unmatched {
		e.Str(name)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// decodeObject reads a JSON object body, calling fn for each key. Any
// failure is a bad request.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return badRequest(errors.Wrap(err, "invalid body"))
	}
	return nil
}

// readDecimal accepts a JSON number or a numeric string.
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func readProduct(d *jx.Decoder) (inventory.Product, error) {
	var p inventory.Product
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "price":
			p.Price, err = readDecimal(d)
		case "stock":
			p.Stock, err = readDecimal(d)
		case "category":
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
	return p, err
}

// payment is the body of checkout and ticket requests.
type payment struct {
	Tendered decimal.Decimal
	Customer string
}

func decodePayment(w http.ResponseWriter, r *http.Request) (payment, error) {
	var p payment
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "tendered":
			p.Tendered, err = readDecimal(d)
		case "customer":
			p.Customer, err = d.Str()
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
	if p.Tendered.IsNegative() {
		return p, badRequest(errors.New("tendered must not be negative"))
	}
	return p, nil
}
