package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/morita/pos/internal/domain/session"
)

// respondSession writes the till state computed against tendered.
func respondSession(w http.ResponseWriter, s *session.Session, tendered decimal.Decimal) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSession(e, s, tendered)
	})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	tendered := decimal.Zero
	if v := r.URL.Query().Get("tendered"); v != "" {
		var err error
		if tendered, err = decimal.NewFromString(v); err != nil || tendered.IsNegative() {
			fail(w, r, badRequest(errors.Errorf("invalid tendered amount %q", v)))
			return
		}
	}

	s, err := h.sessions.Get(r.Context(), h.sessionID(w, r))
	if err != nil {
		fail(w, r, err)
		return
	}
	respondSession(w, s, tendered)
}

// addCartLine adds a product picked by hand, priced from the inventory.
func (h *Handler) addCartLine(w http.ResponseWriter, r *http.Request) {
	var (
		name     string
		quantity = decimal.NewFromInt(1)
	)
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product":
			name, err = d.Str()
		case "quantity":
			quantity, err = readDecimal(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	p, err := h.inventory.Find(name)
	if err != nil {
		fail(w, r, errors.Wrapf(err, "product %q", name))
		return
	}

	s, err := h.sessions.Update(r.Context(), h.sessionID(w, r), func(s *session.Session) error {
		return s.Cart.Add(p.Name, quantity, p.Price)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondSession(w, s, decimal.Zero)
}

func (h *Handler) removeCartLine(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		fail(w, r, badRequest(errors.Wrap(err, "line index")))
		return
	}

	s, err := h.sessions.Update(r.Context(), h.sessionID(w, r), func(s *session.Session) error {
		return s.Cart.Remove(index)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondSession(w, s, decimal.Zero)
}

// clearCart empties the cart and drops any pending voice order.
func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Update(r.Context(), h.sessionID(w, r), func(s *session.Session) error {
		s.Cart.Clear()
		s.ClearPending()
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondSession(w, s, decimal.Zero)
}
