package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/session"
	"github.com/morita/pos/internal/domain/voice"
)

// dictate runs a recorded clip through the voice pipeline. The extracted
// order is kept on the session until the cashier accepts or discards it.
func (h *Handler) dictate(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxAudioBytes))
	if err != nil {
		fail(w, r, err)
		return
	}

	order, err := h.voice.Process(r.Context(), audio)
	h.respondOrder(w, r, order, err)
}

// dictateText runs a typed order through extraction and parsing.
func (h *Handler) dictateText(w http.ResponseWriter, r *http.Request) {
	var transcript string
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "transcript" {
			return d.Skip()
		}
		var err error
		transcript, err = d.Str()
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	order, err := h.voice.ProcessText(r.Context(), transcript)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, order *voice.Order, err error) {
	if err != nil {
		if !errors.Is(err, voice.ErrEmptyAudio) && !errors.Is(err, voice.ErrEmptyTranscript) {
			err = &upstreamError{err: err}
		}
		fail(w, r, err)
		return
	}

	if _, err := h.sessions.Update(r.Context(), h.sessionID(w, r), func(s *session.Session) error {
		s.Transcript = order.Transcript
		s.PendingOrder = order.Text
		return nil
	}); err != nil {
		fail(w, r, err)
		return
	}

	var skipped int
	for _, res := range order.Results {
		if res.Outcome == voice.OutcomeMalformed {
			skipped++
		}
	}
	zctx.From(r.Context()).Info("Voice order extracted",
		zap.Int("lines", len(order.Lines())),
		zap.Int("skipped", skipped),
	)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("transcript")
		e.Str(order.Transcript)
		e.FieldStart("text")
		e.Str(order.Text)
		e.FieldStart("lines")
		encodeLines(e, order.Lines())
		e.FieldStart("skipped")
		e.Int(skipped)
		e.ObjEnd()
	})
}

// acceptVoiceOrder parses the pending order into the cart.
func (h *Handler) acceptVoiceOrder(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Update(r.Context(), h.sessionID(w, r), func(s *session.Session) error {
		if s.PendingOrder == "" {
			return voice.ErrNoPendingOrder
		}
		for _, l := range voice.Lines(voice.Parse(s.PendingOrder)) {
			if err := s.Cart.AddLine(l); err != nil {
				return errors.Wrapf(err, "add %q", l.Product)
			}
		}
		s.ClearPending()
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondSession(w, s, decimal.Zero)
}

func (h *Handler) discardVoiceOrder(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Update(r.Context(), h.sessionID(w, r), func(s *session.Session) error {
		s.ClearPending()
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondSession(w, s, decimal.Zero)
}
