package writer

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
	"github.com/insightdelivered/invoice-item-converter/internal/pricing"
)

const (
	importSheet = "Odoo Import"
	headerSheet = "Invoice"
	headerColor = "22C55E"
)

// XLSXWriter writes an Odoo-compatible purchase import workbook.
type XLSXWriter struct {
	Options
}

func (w *XLSXWriter) Extension() string { return ".xlsx" }
func (w *XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Write renders the records on the "Odoo Import" sheet with a styled header
// row and column widths fitted to the content. Metadata goes on a separate
// "Invoice" sheet so the import sheet keeps the fixed column layout.
func (w *XLSXWriter) Write(out io.Writer, doc *models.Document) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", importSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := headerRow(w.IncludeTotals)
	rows := [][]interface{}{toInterfaces(header)}
	for _, r := range doc.Records {
		row := []interface{}{
			r.VendorName,
			r.ProductCode,
			r.Description,
			r.Quantity,
			pricing.Round2(r.UnitPrice),
			pricing.Round2(r.LineSubtotal),
		}
		if w.IncludeTotals {
			row = append(row, pricing.Round2(r.VATAmount), pricing.Round2(r.TotalAmount))
		}
		rows = append(rows, row)
	}

	if err := writeRows(f, importSheet, rows); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastHeaderCell, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(importSheet, "A1", lastHeaderCell, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetPanes(importSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if w.IncludeHeader {
		if err := writeHeaderSheet(f, doc.Header); err != nil {
			return err
		}
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeaderSheet(f *excelize.File, h models.InvoiceHeader) error {
	meta := metadataRows(h)
	if len(meta) == 0 {
		return nil
	}
	if _, err := f.NewSheet(headerSheet); err != nil {
		return fmt.Errorf("failed to add %s sheet: %w", headerSheet, err)
	}
	rows := make([][]interface{}, 0, len(meta))
	for _, kv := range meta {
		rows = append(rows, []interface{}{kv[0], kv[1]})
	}
	return writeRows(f, headerSheet, rows)
}

// writeRows fills sheet from A1 and sets each column to its longest value + 3.
func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	widths := map[int]int{}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
		for col, v := range row {
			if n := utf8.RuneCountInString(fmt.Sprint(v)); n > widths[col] {
				widths[col] = n
			}
		}
	}

	for col, width := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(min(width+3, excelize.MaxColumnWidth))); err != nil {
			return fmt.Errorf("failed to size column %s: %w", name, err)
		}
	}
	return nil
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
