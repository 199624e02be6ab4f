// Package ticket renders a sale receipt as a printable PDF.
package ticket

import (
	"io"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-pdf/fpdf"

	"github.com/morita/pos/internal/domain/sale"
)

const (
	font      = "Helvetica"
	pageLeft  = 10.0
	pageRight = 200.0
	dateOut   = "02/01/2006 15:04"
)

// Render writes r as a one-page A4 PDF to w.
func Render(w io.Writer, r *sale.Receipt) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(r.StoreName, true)
	pdf.AddPage()

	pdf.SetFont(font, "B", 22)
	pdf.CellFormat(190, 15, tr(strings.ToUpper(r.StoreName)), "", 1, "C", false, 0, "")

	pdf.SetFont(font, "", 14)
	pdf.CellFormat(190, 10, "FECHA: "+r.IssuedAt.Format(dateOut), "", 1, "", false, 0, "")
	if r.Customer != "" {
		pdf.CellFormat(190, 10, tr("CLIENTE: "+r.Customer), "", 1, "", false, 0, "")
	}
	rule(pdf)

	pdf.SetFont(font, "B", 14)
	for _, l := range r.Lines {
		pdf.CellFormat(90, 10, tr(strings.ToUpper(l.Product)), "", 0, "", false, 0, "")
		pdf.CellFormat(40, 10, "x"+Quantity(l.Quantity), "", 0, "", false, 0, "")
		pdf.CellFormat(60, 10, "$"+Money(l.Subtotal()), "", 1, "R", false, 0, "")
	}
	rule(pdf)

	pdf.SetFont(font, "B", 18)
	total(pdf, 12, "TOTAL:", "$"+Money(r.Total))
	pdf.SetFont(font, "", 16)
	total(pdf, 10, "PAGA CON:", "$"+Money(r.Tendered))
	total(pdf, 12, "VUELTO:", "$"+Money(r.Change))

	if err := pdf.Output(w); err != nil {
		return errors.Wrap(err, "render ticket")
	}
	return nil
}

func rule(pdf *fpdf.Fpdf) {
	pdf.Ln(5)
	pdf.Line(pageLeft, pdf.GetY(), pageRight, pdf.GetY())
	pdf.Ln(5)
}

func total(pdf *fpdf.Fpdf, h float64, label, amount string) {
	pdf.CellFormat(130, h, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(60, h, amount, "", 1, "R", false, 0, "")
}
