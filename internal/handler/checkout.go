package handler

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/sale"
	"github.com/morita/pos/internal/domain/session"
	"github.com/morita/pos/internal/ticket"
)

const ticketFilename = "ticket_morita.pdf"

// checkout finalizes the session cart. The cart leaves the session before
// stock is decremented, so a lost session write cannot sell it twice. If the
// sale fails the cart is put back.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	pay, err := decodePayment(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	id := h.sessionID(w, r)

	var sold session.Session
	_, err = h.sessions.Update(ctx, id, func(s *session.Session) error {
		if s.Cart.Len() == 0 {
			return sale.ErrEmptyCart
		}
		sold = *s
		sold.Cart = s.Cart.Clone()
		s.Cart.Clear()
		s.ClearPending()
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	receipt, err := h.sales.Finalize(ctx, &sold.Cart, pay.Tendered, pay.Customer)
	if err != nil {
		h.restoreCart(ctx, id, &sold)
		fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeReceipt(e, receipt)
	})
}

// restoreCart puts the lines of a failed sale back in front of anything
// added meanwhile, along with its pending voice order.
func (h *Handler) restoreCart(ctx context.Context, id string, sold *session.Session) {
	_, err := h.sessions.Update(ctx, id, func(s *session.Session) error {
		s.Cart.Lines = append(sold.Cart.Lines, s.Cart.Lines...)
		if s.PendingOrder == "" {
			s.Transcript, s.PendingOrder = sold.Transcript, sold.PendingOrder
		}
		return nil
	})
	if err != nil {
		zctx.From(ctx).Error("Cart lost after failed checkout",
			zap.Int("lines", sold.Cart.Len()),
			zap.String("total", sold.Cart.Total().StringFixed(2)),
			zap.Error(err),
		)
	}
}

// printTicket renders the current cart as a PDF without touching stock.
func (h *Handler) printTicket(w http.ResponseWriter, r *http.Request) {
	pay, err := decodePayment(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}

	s, err := h.sessions.Get(r.Context(), h.sessionID(w, r))
	if err != nil {
		fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := ticket.Render(&buf, h.sales.Quote(&s.Cart, pay.Tendered, pay.Customer)); err != nil {
		fail(w, r, err)
		return
	}
	download(w, "application/pdf", ticketFilename, buf.Bytes())
}
