package writer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

// CSVWriter writes output records as CSV.
type CSVWriter struct {
	Options
}

func (w *CSVWriter) Extension() string   { return ".csv" }
func (w *CSVWriter) ContentType() string { return "text/csv" }

// amount renders with two decimals in CSV cells and parses back leniently.
type amount float64

func (a amount) MarshalCSV() (string, error) {
	return formatAmount(float64(a)), nil
}

func (a *amount) UnmarshalCSV(s string) error {
	*a = amount(parseCell(s))
	return nil
}

type quantity float64

func (q quantity) MarshalCSV() (string, error) {
	return formatQuantity(float64(q)), nil
}

func (q *quantity) UnmarshalCSV(s string) error {
	*q = quantity(parseCell(s))
	return nil
}

// Row is the base CSV column layout.
type Row struct {
	Vendor       string   `csv:"Vendor"`
	ProductCode  string   `csv:"Product Code"`
	Description  string   `csv:"Description"`
	Quantity     quantity `csv:"Quantity"`
	UnitPrice    amount   `csv:"Unit Price"`
	LineSubtotal amount   `csv:"Line Subtotal"`
}

// RowWithTotals adds the optional total columns after the base layout.
// Row is embedded so its columns come first.
type RowWithTotals struct {
	Row
	VATAmount   amount `csv:"VAT Amount"`
	TotalAmount amount `csv:"Total Amount"`
}

func toCSVRow(r models.OutputRecord) Row {
	return Row{
		Vendor:       r.VendorName,
		ProductCode:  r.ProductCode,
		Description:  r.Description,
		Quantity:     quantity(r.Quantity),
		UnitPrice:    amount(r.UnitPrice),
		LineSubtotal: amount(r.LineSubtotal),
	}
}

// Write writes the records in CSV format, preceded by "# label,value"
// metadata rows when IncludeHeader is set.
func (w *CSVWriter) Write(out io.Writer, doc *models.Document) error {
	csvWriter := gocsv.DefaultCSVWriter(out)

	if w.IncludeHeader {
		for _, kv := range metadataRows(doc.Header) {
			if err := csvWriter.Write([]string{"# " + kv[0], kv[1]}); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	var err error
	if w.IncludeTotals {
		rows := make([]RowWithTotals, 0, len(doc.Records))
		for _, r := range doc.Records {
			rows = append(rows, RowWithTotals{
				Row:         toCSVRow(r),
				VATAmount:   amount(r.VATAmount),
				TotalAmount: amount(r.TotalAmount),
			})
		}
		err = gocsv.MarshalCSV(rows, csvWriter)
	} else {
		rows := make([]Row, 0, len(doc.Records))
		for _, r := range doc.Records {
			rows = append(rows, toCSVRow(r))
		}
		err = gocsv.MarshalCSV(rows, csvWriter)
	}
	if err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// ReadCSV parses records previously written by CSVWriter, skipping the "#"
// metadata rows above the column header. It feeds the reverse direction,
// records back to a document.
func ReadCSV(in io.Reader) ([]models.OutputRecord, error) {
	var body bytes.Buffer
	scanner := bufio.NewScanner(in)
	inRows := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		// rows may start with "#" too, e.g. a vendor named "#1 Supplies"
		if !inRows && strings.HasPrefix(line, "#") {
			continue
		}
		inRows = true
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if body.Len() == 0 {
		return []models.OutputRecord{}, nil
	}

	var rows []RowWithTotals
	if err := gocsv.Unmarshal(&body, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	records := make([]models.OutputRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, models.OutputRecord{
			VendorName:   r.Vendor,
			ProductCode:  r.ProductCode,
			Description:  r.Description,
			Quantity:     float64(r.Quantity),
			UnitPrice:    float64(r.UnitPrice),
			LineSubtotal: float64(r.LineSubtotal),
			VATAmount:    float64(r.VATAmount),
			TotalAmount:  float64(r.TotalAmount),
		})
	}
	return records, nil
}

func parseCell(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
