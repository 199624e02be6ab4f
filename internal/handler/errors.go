package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/cart"
	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/domain/sale"
	"github.com/morita/pos/internal/domain/voice"
	"github.com/morita/pos/internal/spreadsheet"
)

// requestError marks a malformed request body or parameter.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

// upstreamError marks a failure of the speech or language model service.
// Its text is shown to the cashier as is.
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		reqErr      *requestError
		upErr       *upstreamError
		tooLargeErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLargeErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrAlreadyExists),
		errors.Is(err, voice.ErrNoPendingOrder):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrNameRequired),
		errors.Is(err, inventory.ErrNegativePrice),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrNegativePrice),
		errors.Is(err, sale.ErrEmptyCart),
		errors.Is(err, voice.ErrEmptyAudio),
		errors.Is(err, voice.ErrEmptyTranscript),
		errors.Is(err, spreadsheet.ErrNoNameColumn),
		errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.As(err, &upErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an API error. Internal errors are logged and hidden
// from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	switch {
	case code == http.StatusInternalServerError:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = "internal error"
	case code == http.StatusBadGateway:
		zctx.From(r.Context()).Warn("Upstream call failed", zap.Error(err))
	}
	writeError(w, code, msg)
}
