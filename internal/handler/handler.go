// Package handler exposes the POS operations as a JSON HTTP API.
package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/domain/sale"
	"github.com/morita/pos/internal/domain/session"
	"github.com/morita/pos/internal/domain/voice"
)

// SessionCookie names the cookie that identifies a till session.
const SessionCookie = "pos_session"

// Config holds non-dependency settings of the Handler.
type Config struct {
	// MaxAudioBytes bounds a dictated clip.
	MaxAudioBytes int64
	// MaxUploadBytes bounds spreadsheet and backup uploads.
	MaxUploadBytes int64
	// SecureCookie marks the session cookie as HTTPS only.
	SecureCookie bool
	// SessionTTL is the session cookie lifetime. Zero makes it a browser
	// session cookie.
	SessionTTL time.Duration
}

// Handler serves the /api routes.
type Handler struct {
	inventory *inventory.Service
	sales     *sale.Service
	voice     *voice.Pipeline
	sessions  *session.Manager
	cfg       Config
}

// New creates a Handler.
func New(cfg Config, inv *inventory.Service, sales *sale.Service, pipeline *voice.Pipeline, sessions *session.Manager) *Handler {
	if cfg.MaxAudioBytes == 0 {
		cfg.MaxAudioBytes = 25 << 20
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		inventory: inv,
		sales:     sales,
		voice:     pipeline,
		sessions:  sessions,
		cfg:       cfg,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/inventory", h.listInventory)
	mux.HandleFunc("POST /api/inventory", h.registerProduct)
	mux.HandleFunc("PUT /api/inventory", h.replaceInventory)
	mux.HandleFunc("PATCH /api/inventory/{name}", h.updateProduct)
	mux.HandleFunc("DELETE /api/inventory/{name}", h.deleteProduct)
	mux.HandleFunc("GET /api/inventory/export", h.exportInventory)
	mux.HandleFunc("POST /api/inventory/import", h.importInventory)
	mux.HandleFunc("GET /api/inventory/backup", h.downloadBackup)
	mux.HandleFunc("POST /api/inventory/backup", h.restoreBackup)

	mux.HandleFunc("GET /api/cart", h.getCart)
	mux.HandleFunc("POST /api/cart/lines", h.addCartLine)
	mux.HandleFunc("DELETE /api/cart/lines/{index}", h.removeCartLine)
	mux.HandleFunc("DELETE /api/cart", h.clearCart)

	mux.HandleFunc("POST /api/voice", h.dictate)
	mux.HandleFunc("POST /api/voice/text", h.dictateText)
	mux.HandleFunc("POST /api/voice/accept", h.acceptVoiceOrder)
	mux.HandleFunc("DELETE /api/voice", h.discardVoiceOrder)

	mux.HandleFunc("POST /api/checkout", h.checkout)
	mux.HandleFunc("POST /api/ticket", h.printTicket)
}

// sessionID returns the till session of the request, issuing a new cookie
// when the request has none.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if h.cfg.SessionTTL > 0 {
		cookie.MaxAge = int(h.cfg.SessionTTL.Seconds())
	}
	http.SetCookie(w, cookie)
	return id
}
