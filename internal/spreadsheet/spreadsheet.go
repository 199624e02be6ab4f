// Package spreadsheet exports the inventory to xlsx and restores it from an
// uploaded workbook.
package spreadsheet

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/morita/pos/internal/domain/inventory"
)

// SheetName is the name of the exported sheet.
const SheetName = "Inventario"

// Column headers, in export order.
const (
	ColName     = "Producto"
	ColPrice    = "Precio"
	ColStock    = "Stock"
	ColCategory = "Rubro"
)

var header = []string{ColName, ColPrice, ColStock, ColCategory}

// ErrNoNameColumn is returned when an imported sheet has no product column.
var ErrNoNameColumn = errors.New(`missing "Producto" column`)

// Export writes products as a single-sheet workbook with auto-sized columns.
func Export(w io.Writer, products []inventory.Product) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return errors.Wrap(err, "rename sheet")
	}

	widths := make([]int, len(header))
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
		widths[i] = utf8.RuneCountInString(h)
	}
	if err := f.SetSheetRow(SheetName, "A1", &row); err != nil {
		return errors.Wrap(err, "write header")
	}

	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		values := []string{p.Name, p.Price.String(), p.Stock.String(), p.Category}
		row := []any{p.Name, p.Price.InexactFloat64(), p.Stock.InexactFloat64(), p.Category}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.Wrapf(err, "write row %d", i+2)
		}
		for c, v := range values {
			widths[c] = max(widths[c], utf8.RuneCountInString(v))
		}
	}

	for c, width := range widths {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return errors.Wrap(err, "column name")
		}
		if err := f.SetColWidth(SheetName, col, col, float64(width+2)); err != nil {
			return errors.Wrap(err, "set column width")
		}
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}

// Import reads products from the first sheet of a workbook. Columns are
// matched by header name, ignoring case; blank rows are skipped. Missing
// price or stock cells read as zero.
func Import(r io.Reader) ([]inventory.Product, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "open workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q", sheets[0])
	}
	if len(rows) == 0 {
		return nil, ErrNoNameColumn
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		for _, want := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				cols[want] = i
			}
		}
	}
	if _, ok := cols[ColName]; !ok {
		return nil, ErrNoNameColumn
	}

	products := []inventory.Product{}
	for n, row := range rows[1:] {
		name := cell(row, cols, ColName)
		if name == "" {
			continue
		}
		p := inventory.Product{
			Name:     name,
			Category: cell(row, cols, ColCategory),
		}
		if p.Price, err = number(cell(row, cols, ColPrice)); err != nil {
			return nil, errors.Wrapf(err, "row %d: %s", n+2, ColPrice)
		}
		if p.Stock, err = number(cell(row, cols, ColStock)); err != nil {
			return nil, errors.Wrapf(err, "row %d: %s", n+2, ColStock)
		}
		products = append(products, p)
	}
	return products, nil
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func number(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
