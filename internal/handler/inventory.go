package handler

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/backup"
	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/spreadsheet"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	xlsxFilename    = "Inventario_Morita.xlsx"
	backupFilename  = "inventario_morita.json.gz"
)

func (h *Handler) listInventory(w http.ResponseWriter, _ *http.Request) {
	products := h.inventory.List()
	names := h.inventory.Names()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProducts(e, products, names)
	})
}

func (h *Handler) registerProduct(w http.ResponseWriter, r *http.Request) {
	var p inventory.Product
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if p, err = readProduct(jx.DecodeBytes(data)); err != nil {
		fail(w, r, badRequest(errors.Wrap(err, "invalid body")))
		return
	}

	if err := h.inventory.Register(r.Context(), p); err != nil {
		fail(w, r, err)
		return
	}
	created, err := h.inventory.Find(p.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeProduct(e, created)
	})
}

// replaceInventory saves an edited table as the whole inventory.
func (h *Handler) replaceInventory(w http.ResponseWriter, r *http.Request) {
	var products []inventory.Product
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "products" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			p, err := readProduct(d)
			if err != nil {
				return err
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.replace(w, r, products)
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request, products []inventory.Product) {
	for i := range products {
		products[i].Name = strings.TrimSpace(products[i].Name)
		if products[i].Name == "" {
			fail(w, r, errors.Wrapf(inventory.ErrNameRequired, "row %d", i+1))
			return
		}
	}
	if err := h.inventory.Replace(r.Context(), products); err != nil {
		fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Inventory replaced", zap.Int("products", len(products)))
	h.listInventory(w, r)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var u inventory.Update
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		switch key {
		case "price":
			v, err := readDecimal(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			u.Price = &v
		case "stock":
			v, err := readDecimal(d)
			if err != nil {
				return errors.Wrap(err, key)
			}
			u.Stock = &v
		case "category":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, key)
			}
			u.Category = &v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	p, err := h.inventory.Update(r.Context(), r.PathValue("name"), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p)
	})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Delete(r.Context(), r.PathValue("name")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportInventory(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := spreadsheet.Export(&buf, h.inventory.List()); err != nil {
		fail(w, r, err)
		return
	}
	download(w, xlsxContentType, xlsxFilename, buf.Bytes())
}

// importInventory replaces the inventory with an uploaded workbook, sent
// either as the raw body or as the multipart field "file".
func (h *Handler) importInventory(w http.ResponseWriter, r *http.Request) {
	data, err := h.upload(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := spreadsheet.Import(bytes.NewReader(data))
	if err != nil {
		fail(w, r, badRequest(err))
		return
	}
	h.replace(w, r, products)
}

func (h *Handler) downloadBackup(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := backup.Write(&buf, h.inventory.List()); err != nil {
		fail(w, r, err)
		return
	}
	download(w, backup.ContentType, backupFilename, buf.Bytes())
}

func (h *Handler) restoreBackup(w http.ResponseWriter, r *http.Request) {
	data, err := h.upload(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := backup.Read(bytes.NewReader(data))
	if err != nil {
		fail(w, r, badRequest(err))
		return
	}
	h.replace(w, r, products)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, badRequest(errors.Wrap(err, "file field"))
		}
		defer func() { _ = f.Close() }()
		return io.ReadAll(f)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, badRequest(errors.New("empty upload"))
	}
	return data, nil
}

func download(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
