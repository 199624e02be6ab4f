package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/domain/sale"
	"github.com/morita/pos/internal/domain/session"
	"github.com/morita/pos/internal/domain/voice"
)

// --- Mock implementations ---

type memoryRepo struct {
	mu       sync.Mutex
	products []inventory.Product
	saveErr  error
}

func (m *memoryRepo) Load(context.Context) ([]inventory.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inventory.Product(nil), m.products...), nil
}

func (m *memoryRepo) Save(_ context.Context, products []inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.products = append([]inventory.Product(nil), products...)
	return nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type flakyStore struct {
	*session.MemoryStore

	mu      sync.Mutex
	saveErr error
}

func (f *flakyStore) Save(ctx context.Context, s *session.Session) error {
	f.mu.Lock()
	err := f.saveErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.Save(ctx, s)
}

func (f *flakyStore) failSaves(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

// --- Helpers ---

type testEnv struct {
	t        *testing.T
	mux      *http.ServeMux
	repo     *memoryRepo
	sessions *flakyStore
	inv      *inventory.Service
	stt      *fakeTranscriber
	ext      *fakeExtractor
	cookie   *http.Cookie
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := &memoryRepo{products: []inventory.Product{
		{Name: "Coca Cola", Price: d("3500"), Stock: d("10"), Category: "Bebidas"},
		{Name: "Leche", Price: d("2800"), Stock: d("5"), Category: "Almacén"},
	}}
	inv := inventory.NewService(repo, zap.NewNop())
	inv.Load(context.Background())

	meter := noop.NewMeterProvider().Meter("test")
	sales, err := sale.NewService(inv, "Morita Minimercado", zap.NewNop(), meter)
	require.NoError(t, err)

	stt := &fakeTranscriber{}
	ext := &fakeExtractor{}
	pipeline, err := voice.NewPipeline(stt, ext, inv, zap.NewNop(), meter)
	require.NoError(t, err)

	sessions := &flakyStore{MemoryStore: session.NewMemoryStore()}
	h := New(Config{}, inv, sales, pipeline, session.NewManager(sessions))
	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{t: t, mux: mux, repo: repo, sessions: sessions, inv: inv, stt: stt, ext: ext}
}

// do serves one request, carrying the session cookie across calls.
func (e *testEnv) do(method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	e.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			e.cookie = c
		}
	}
	return rec
}

func (e *testEnv) json(method, path, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(method, path, "application/json", strings.NewReader(body))
}

type lineBody struct {
	Product   string          `json:"product"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type sessionBody struct {
	Lines        []lineBody      `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	Tendered     decimal.Decimal `json:"tendered"`
	Change       decimal.Decimal `json:"change"`
	Transcript   string          `json:"transcript"`
	PendingOrder string          `json:"pending_order"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) stock(name string) string {
	e.t.Helper()
	p, err := e.inv.Find(name)
	require.NoError(e.t, err)
	return p.Stock.String()
}

// --- Tests ---

func TestVoiceOrderToCheckout(t *testing.T) {
	env := newEnv(t)
	env.stt.text = "dos cocas y una leche rara"
	env.ext.text = "Entendido, tu pedido:\nCoca Cola | 2 | 7000\nLeche | mucha | -\n"

	rec := env.do(http.MethodPost, "/api/voice", "audio/wav", strings.NewReader("RIFF...."))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, env.cookie, "session cookie issued")

	order := decode[struct {
		Transcript string     `json:"transcript"`
		Text       string     `json:"text"`
		Lines      []lineBody `json:"lines"`
		Skipped    int        `json:"skipped"`
	}](t, rec)
	assert.Equal(t, "dos cocas y una leche rara", order.Transcript)
	assert.Equal(t, env.ext.text, order.Text)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, "3500", order.Lines[0].UnitPrice.String())
	assert.Equal(t, 1, order.Skipped)

	// Nothing reaches the cart before the cashier accepts.
	rec = env.do(http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decode[sessionBody](t, rec)
	assert.Empty(t, s.Lines)
	assert.Equal(t, env.ext.text, s.PendingOrder)

	rec = env.do(http.MethodPost, "/api/voice/accept", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s = decode[sessionBody](t, rec)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "Coca Cola", s.Lines[0].Product)
	assert.Equal(t, "7000", s.Total.String())
	assert.Empty(t, s.PendingOrder)

	rec = env.do(http.MethodGet, "/api/cart?tendered=10000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s = decode[sessionBody](t, rec)
	assert.Equal(t, "3000", s.Change.String())

	rec = env.json(http.MethodPost, "/api/checkout", `{"tendered": "10000", "customer": "Ana"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[struct {
		ID        string          `json:"id"`
		Store     string          `json:"store"`
		Customer  string          `json:"customer"`
		Total     decimal.Decimal `json:"total"`
		Change    decimal.Decimal `json:"change"`
		Unmatched []string        `json:"unmatched"`
	}](t, rec)
	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, "Morita Minimercado", receipt.Store)
	assert.Equal(t, "Ana", receipt.Customer)
	assert.Equal(t, "7000", receipt.Total.String())
	assert.Equal(t, "3000", receipt.Change.String())
	assert.Empty(t, receipt.Unmatched)

	assert.Equal(t, "8", env.stock("Coca Cola"))
	assert.Equal(t, "8", env.repo.products[0].Stock.String(), "stock persisted")

	rec = env.do(http.MethodGet, "/api/cart", "", nil)
	s = decode[sessionBody](t, rec)
	assert.Empty(t, s.Lines)
	assert.Empty(t, s.Transcript)
}

func TestVoiceText(t *testing.T) {
	env := newEnv(t)
	env.ext.text = "Leche | 1 | 2800"

	rec := env.json(http.MethodPost, "/api/voice/text", `{"transcript": "una leche"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.json(http.MethodPost, "/api/voice/text", `{"transcript": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoiceErrors(t *testing.T) {
	t.Run("EmptyAudio", func(t *testing.T) {
		env := newEnv(t)
		rec := env.do(http.MethodPost, "/api/voice", "audio/wav", http.NoBody)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("TranscriberFailureShownVerbatim", func(t *testing.T) {
		env := newEnv(t)
		env.stt.err = errors.New("invalid API key")
		rec := env.do(http.MethodPost, "/api/voice", "audio/wav", strings.NewReader("RIFF"))
		require.Equal(t, http.StatusBadGateway, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Contains(t, body.Message, "invalid API key")
	})

	t.Run("ExtractorFailure", func(t *testing.T) {
		env := newEnv(t)
		env.stt.text = "hola"
		env.ext.err = errors.New("rate limited")
		rec := env.do(http.MethodPost, "/api/voice", "audio/wav", strings.NewReader("RIFF"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("AcceptWithoutPending", func(t *testing.T) {
		env := newEnv(t)
		rec := env.do(http.MethodPost, "/api/voice/accept", "", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("Discard", func(t *testing.T) {
		env := newEnv(t)
		env.stt.text = "una coca"
		env.ext.text = "Coca Cola | 1 | 3500"
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/voice", "audio/wav", strings.NewReader("RIFF")).Code)

		rec := env.do(http.MethodDelete, "/api/voice", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[sessionBody](t, rec).PendingOrder)

		assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/voice/accept", "", nil).Code)
	})
}

func TestCartEndpoints(t *testing.T) {
	env := newEnv(t)

	rec := env.json(http.MethodPost, "/api/cart/lines", `{"product": "coca cola", "quantity": 3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decode[sessionBody](t, rec)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "Coca Cola", s.Lines[0].Product)
	assert.Equal(t, "10500", s.Total.String())

	rec = env.json(http.MethodPost, "/api/cart/lines", `{"product": "Leche"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[sessionBody](t, rec).Lines, 2)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"UnknownProduct", http.MethodPost, "/api/cart/lines", `{"product": "Chicle"}`, http.StatusNotFound},
		{"ZeroQuantity", http.MethodPost, "/api/cart/lines", `{"product": "Leche", "quantity": 0}`, http.StatusBadRequest},
		{"BadJSON", http.MethodPost, "/api/cart/lines", `{"product":`, http.StatusBadRequest},
		{"RemoveOutOfRange", http.MethodDelete, "/api/cart/lines/9", "", http.StatusNotFound},
		{"RemoveNotANumber", http.MethodDelete, "/api/cart/lines/x", "", http.StatusBadRequest},
		{"NegativeTendered", http.MethodGet, "/api/cart?tendered=-1", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.json(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decode[errorBody](t, rec).Code)
		})
	}

	rec = env.do(http.MethodDelete, "/api/cart/lines/0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s = decode[sessionBody](t, rec)
	require.Len(t, s.Lines, 1)
	assert.Equal(t, "Leche", s.Lines[0].Product)

	rec = env.do(http.MethodDelete, "/api/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[sessionBody](t, rec).Lines)

	rec = env.json(http.MethodPost, "/api/checkout", `{"tendered": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.json(http.MethodPost, "/api/cart/lines", `{"product": "Leche"}`).Code)

	other := *env
	other.cookie = nil
	rec := other.do(http.MethodGet, "/api/cart", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[sessionBody](t, rec).Lines)
	assert.NotEqual(t, env.cookie.Value, other.cookie.Value)
}

func TestCheckoutSaveFailureKeepsCart(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.json(http.MethodPost, "/api/cart/lines", `{"product": "Leche"}`).Code)
	env.repo.saveErr = errors.New("disk full")

	rec := env.json(http.MethodPost, "/api/checkout", `{"tendered": 5000}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode[errorBody](t, rec).Message)

	assert.Equal(t, "5", env.stock("Leche"))
	rec = env.do(http.MethodGet, "/api/cart", "", nil)
	assert.Len(t, decode[sessionBody](t, rec).Lines, 1)
}

func TestCheckoutSessionSaveFailureSellsOnce(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.json(http.MethodPost, "/api/cart/lines", `{"product": "Leche"}`).Code)
	env.sessions.failSaves(errors.New("redis down"))

	rec := env.json(http.MethodPost, "/api/checkout", `{"tendered": 5000}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "5", env.stock("Leche"), "stock untouched while the cart is still in the session")

	env.sessions.failSaves(nil)
	rec = env.json(http.MethodPost, "/api/checkout", `{"tendered": 5000}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "4", env.stock("Leche"), "retry sells the cart once")

	rec = env.json(http.MethodPost, "/api/checkout", `{"tendered": 5000}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "cart already sold")
	assert.Equal(t, "4", env.stock("Leche"))
}

func TestTicket(t *testing.T) {
	env := newEnv(t)
	require.Equal(t, http.StatusOK, env.json(http.MethodPost, "/api/cart/lines", `{"product": "Coca Cola", "quantity": 2}`).Code)

	rec := env.json(http.MethodPost, "/api/ticket", `{"tendered": 10000, "customer": "Doña Rosa"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ticketFilename)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	assert.Equal(t, "10", env.stock("Coca Cola"), "ticket does not touch stock")
}

func TestInventoryCRUD(t *testing.T) {
	env := newEnv(t)

	rec := env.do(http.MethodGet, "/api/inventory", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Products   []map[string]any `json:"products"`
		Categories []string         `json:"categories"`
	}](t, rec)
	assert.Len(t, list.Products, 2)
	assert.Equal(t, inventory.Categories, list.Categories)

	rec = env.json(http.MethodPost, "/api/inventory", `{"name": " Pan ", "price": "1200.50", "stock": 20, "category": "Almacén"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	assert.Equal(t, "Pan", created["name"])
	assert.Equal(t, 1200.5, created["price"])

	require.Equal(t, http.StatusCreated, env.json(http.MethodPost, "/api/inventory", `{"name": "Agua", "price": 900}`).Code)
	rec = env.do(http.MethodGet, "/api/inventory", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	picker := decode[struct {
		Products []map[string]any `json:"products"`
		Names    []string         `json:"names"`
	}](t, rec)
	require.Len(t, picker.Products, 4)
	assert.Equal(t, "Agua", picker.Products[3]["name"])
	assert.Equal(t, []string{"Agua", "Coca Cola", "Leche", "Pan"}, picker.Names)

	assert.Equal(t, http.StatusConflict, env.json(http.MethodPost, "/api/inventory", `{"name": "pan"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.json(http.MethodPost, "/api/inventory", `{"name": "  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.json(http.MethodPost, "/api/inventory", `{"name": "X", "price": "abc"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.json(http.MethodPost, "/api/inventory", `{"name": "X", "price": -5}`).Code)

	rec = env.json(http.MethodPatch, "/api/inventory/Pan", `{"stock": 15}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]any](t, rec)
	assert.Equal(t, 15.0, updated["stock"])
	assert.Equal(t, 1200.5, updated["price"])

	assert.Equal(t, http.StatusNotFound, env.json(http.MethodPatch, "/api/inventory/Chicle", `{"stock": 1}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.json(http.MethodPatch, "/api/inventory/Pan", `{"price": "-1"}`).Code)

	rec = env.do(http.MethodDelete, "/api/inventory/Coca%20Cola", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/inventory/Coca%20Cola", "", nil).Code)

	rec = env.json(http.MethodPut, "/api/inventory", `{"products": [{"name": "Yerba", "price": 4000, "stock": 3, "category": null}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	products := env.inv.List()
	require.Len(t, products, 1)
	assert.Equal(t, "Yerba", products[0].Name)

	assert.Equal(t, http.StatusBadRequest, env.json(http.MethodPut, "/api/inventory", `{"products": [{"name": ""}]}`).Code)
	assert.Len(t, env.inv.List(), 1, "rejected table leaves inventory untouched")
}

func TestSpreadsheetRoundTrip(t *testing.T) {
	env := newEnv(t)

	rec := env.do(http.MethodGet, "/api/inventory/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	workbook := rec.Body.Bytes()

	require.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/inventory/Leche", "", nil).Code)
	require.Len(t, env.inv.List(), 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", xlsxFilename)
	require.NoError(t, err)
	_, err = fw.Write(workbook)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec = env.do(http.MethodPost, "/api/inventory/import", mw.FormDataContentType(), &body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, env.inv.List(), 2)
	assert.Equal(t, "5", env.stock("Leche"))

	rec = env.do(http.MethodPost, "/api/inventory/import", "application/octet-stream", strings.NewReader("not a workbook"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.inv.List(), 2)
}

func TestBackupRoundTrip(t *testing.T) {
	env := newEnv(t)

	rec := env.do(http.MethodGet, "/api/inventory/backup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), backupFilename)
	archive := rec.Body.Bytes()

	require.Equal(t, http.StatusOK, env.json(http.MethodPut, "/api/inventory", `{"products": []}`).Code)
	require.Empty(t, env.inv.List())

	rec = env.do(http.MethodPost, "/api/inventory/backup", "application/gzip", bytes.NewReader(archive))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "10", env.stock("Coca Cola"))

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/inventory/backup", "application/gzip", http.NoBody).Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.Wrap(inventory.ErrNotFound, "x"), http.StatusNotFound},
		{inventory.ErrAlreadyExists, http.StatusConflict},
		{sale.ErrEmptyCart, http.StatusBadRequest},
		{badRequest(errors.New("x")), http.StatusBadRequest},
		{&upstreamError{err: errors.New("x")}, http.StatusBadGateway},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
