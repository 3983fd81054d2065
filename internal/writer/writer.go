package writer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

// Format names an export format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Writer serializes a converted invoice.
type Writer interface {
	// Write renders doc to out.
	Write(out io.Writer, doc *models.Document) error
	// Extension is the file extension, including the dot.
	Extension() string
	// ContentType is the MIME type of the output.
	ContentType() string
}

// Options are shared by all writers.
type Options struct {
	// IncludeHeader adds invoice metadata (number, date, vendor) above the rows.
	IncludeHeader bool
	// IncludeTotals adds the VAT amount and grand total columns.
	IncludeTotals bool
}

// New returns the writer for the given format.
func New(format Format, opts Options) (Writer, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatCSV:
		return &CSVWriter{Options: opts}, nil
	case FormatXLSX:
		return &XLSXWriter{Options: opts}, nil
	case FormatPDF:
		return &PDFWriter{Options: opts}, nil
	default:
		if s := SuggestFormat(string(format)); s != "" {
			return nil, fmt.Errorf("unsupported export format %q, did you mean %q?", format, s)
		}
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

// Formats lists the supported export formats.
var Formats = []Format{FormatCSV, FormatXLSX, FormatPDF}

// SuggestFormat returns the supported format closest to a mistyped name,
// or "" when none is within two edits.
func SuggestFormat(name string) Format {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))
	best, bestDist := Format(""), 3
	for _, f := range Formats {
		if d := fuzzy.LevenshteinDistance(name, string(f)); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

// WriteToFile renders doc with w into a new file at path.
func WriteToFile(w Writer, path string, doc *models.Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	if err := w.Write(f, doc); err != nil {
		return err
	}
	return f.Close()
}

// columns is the fixed export column order.
var columns = []string{"Vendor", "Product Code", "Description", "Quantity", "Unit Price", "Line Subtotal"}

var totalColumns = []string{"VAT Amount", "Total Amount"}

func headerRow(includeTotals bool) []string {
	row := append([]string{}, columns...)
	if includeTotals {
		row = append(row, totalColumns...)
	}
	return row
}

// metadataRows returns label/value pairs for the invoice header fields present.
func metadataRows(h models.InvoiceHeader) [][2]string {
	var rows [][2]string
	if h.InvoiceNumber != "" {
		rows = append(rows, [2]string{"Invoice Number", h.InvoiceNumber})
	}
	if h.InvoiceDate != "" {
		rows = append(rows, [2]string{"Invoice Date", h.InvoiceDate})
	}
	if h.VendorName != "" {
		rows = append(rows, [2]string{"Vendor", h.VendorName})
	}
	if h.CurrencyTag != "" {
		rows = append(rows, [2]string{"Currency", h.CurrencyTag})
	}
	return rows
}

// formatAmount renders money with two decimals, rounding half away from zero.
func formatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

func formatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
