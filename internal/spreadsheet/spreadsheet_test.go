package spreadsheet

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/morita/pos/internal/domain/inventory"
)

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return &buf
}

// --- Tests ---

func TestExport_Import(t *testing.T) {
	in := []inventory.Product{
		{Name: "Coca Cola", Price: d("3500"), Stock: d("10"), Category: "Bebidas"},
		{Name: "Queso", Price: d("8900.5"), Stock: d("-1.5")},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, in))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	width, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.InDelta(t, float64(len("Coca Cola")+2), width, 0.01)
	require.NoError(t, f.Close())

	out, err := Import(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.Equal(t, in[i].Name, out[i].Name)
		assert.True(t, in[i].Price.Equal(out[i].Price), "price %s", out[i].Price)
		assert.True(t, in[i].Stock.Equal(out[i].Stock), "stock %s", out[i].Stock)
		assert.Equal(t, in[i].Category, out[i].Category)
	}
}

func TestImport_HeadersByName(t *testing.T) {
	buf := workbook(t, [][]any{
		{"rubro", "STOCK", "producto", "precio"},
		{"Almacén", 4, "Yerba", 5600},
		{"", "", "", ""},
		{nil, nil, "Pan", nil},
	})

	out, err := Import(buf)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "Yerba", out[0].Name)
	assert.Equal(t, "Almacén", out[0].Category)
	assert.True(t, d("5600").Equal(out[0].Price))
	assert.True(t, d("4").Equal(out[0].Stock))

	assert.Equal(t, "Pan", out[1].Name)
	assert.True(t, out[1].Price.IsZero())
}

func TestImport_Errors(t *testing.T) {
	t.Run("no product column", func(t *testing.T) {
		_, err := Import(workbook(t, [][]any{{"Nombre", "Precio"}, {"Pan", 1200}}))
		require.ErrorIs(t, err, ErrNoNameColumn)
	})
	t.Run("bad price", func(t *testing.T) {
		_, err := Import(workbook(t, [][]any{{"Producto", "Precio"}, {"Pan", "barato"}}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row 2")
	})
	t.Run("not a workbook", func(t *testing.T) {
		_, err := Import(bytes.NewBufferString("Producto,Precio\nPan,1200\n"))
		require.Error(t, err)
	})
}
