package writer

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
	"github.com/insightdelivered/invoice-item-converter/internal/pricing"
)

// PDFWriter renders records as a printable purchase document, the reverse of
// the extraction direction.
type PDFWriter struct {
	Options
	// Title is printed at the top of the first page.
	Title string
}

func (w *PDFWriter) Extension() string   { return ".pdf" }
func (w *PDFWriter) ContentType() string { return "application/pdf" }

const (
	pdfMargin    = 10.0
	pdfRowHeight = 7.0
)

// Write lays the records out as a table on landscape A4 pages, with the
// invoice metadata above it and the grand total below.
func (w *PDFWriter) Write(out io.Writer, doc *models.Document) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin+5)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := w.Title
	if title == "" {
		title = "Purchase Invoice"
	}
	pdf.SetTitle(title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfMargin - 2)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")

	if w.IncludeHeader {
		pdf.SetFont("Helvetica", "", 10)
		for _, kv := range metadataRows(doc.Header) {
			pdf.CellFormat(35, 6, tr(kv[0]+":"), "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 6, tr(kv[1]), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	header := headerRow(w.IncludeTotals)
	widths := columnWidths(pdf, len(header))

	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(0x22, 0xC5, 0x5E)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range header {
			pdf.CellFormat(widths[i], pdfRowHeight, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "", 9)
	}
	drawHeader()

	tag := doc.Header.CurrencyTag
	_, pageHeight := pdf.GetPageSize()
	for _, r := range doc.Records {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMargin-5 {
			pdf.AddPage()
			drawHeader()
		}
		cells := []string{
			r.VendorName,
			r.ProductCode,
			r.Description,
			formatQuantity(r.Quantity),
			pricing.Format(r.UnitPrice, tag),
			pricing.Format(r.LineSubtotal, tag),
		}
		if w.IncludeTotals {
			cells = append(cells, pricing.Format(r.VATAmount, tag), pricing.Format(r.TotalAmount, tag))
		}
		for i, c := range cells {
			align := "L"
			if i >= 3 {
				align = "R"
			}
			pdf.CellFormat(widths[i], pdfRowHeight, fitText(pdf, tr(c), widths[i]-2), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "B", 11)
	total := documentTotal(doc.Records)
	pdf.CellFormat(0, 8, tr("Grand total: "+pricing.Format(total, tag)), "", 1, "R", false, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	if err := pdf.Output(out); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}

// columnWidths gives numeric columns a fixed width and the description the rest.
func columnWidths(pdf *fpdf.Fpdf, n int) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin

	widths := []float64{45, 30, 0, 18, 32, 34}
	if n > len(widths) {
		widths = append(widths, 30, 34)
	}
	fixed := 0.0
	for _, w := range widths {
		fixed += w
	}
	widths[2] = usable - fixed
	return widths
}

// fitText truncates s with "..." until it fits in width.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}

// documentTotal sums line subtotals, preferring the precomputed grand total.
func documentTotal(records []models.OutputRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	if records[0].TotalAmount != 0 {
		return records[0].TotalAmount
	}
	subtotals := make([]float64, len(records))
	for i, r := range records {
		subtotals[i] = r.LineSubtotal
	}
	return pricing.Sum(subtotals...)
}
