// Package extractor turns invoice PDFs into plain text, one string per page.
//
// It is the text-extraction collaborator of the line-item parser: a page
// without a text layer yields an empty string rather than an error, and the
// parser treats blank text as a document without items.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnreadablePDF is returned when the file cannot be opened as a PDF at all.
	ErrUnreadablePDF = errors.New("unreadable PDF")
	// ErrNoText marks a PDF that opened but carries no text layer.
	ErrNoText = errors.New("no text found in PDF")
)

// ExtractText reads the PDF at filePath and returns its text with pages
// separated by blank lines.
func ExtractText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", filePath, err)
	}
	return ExtractTextFromBytes(data)
}

// ExtractTextFromBytes extracts text from an in-memory PDF, such as an upload.
func ExtractTextFromBytes(data []byte) (string, error) {
	pages, err := ExtractPages(data)
	if err != nil {
		return "", err
	}
	return strings.Join(pages, "\n\n"), nil
}

// ExtractPages returns the text of each page. The row-based reader is tried
// first since it keeps an invoice line on one line; coordinate grouping and
// the external pdftotext tool are fallbacks for PDFs it cannot decode.
func ExtractPages(data []byte) ([]string, error) {
	pages, libErr := extractWithLibrary(data)
	if libErr == nil && isReadableText(pages) {
		return pages, nil
	}
	popplerPages, popplerErr := extractWithPdftotext(data)
	return selectPages(pages, libErr, popplerPages, popplerErr)
}

// selectPages picks between the library's pages and the pdftotext fallback.
// Unreadable text is never returned: a PDF that opened with only blank pages
// yields them (CheckText reports ErrNoText), anything else is unreadable.
func selectPages(pages []string, libErr error, fallback []string, fallbackErr error) ([]string, error) {
	if libErr == nil && isReadableText(pages) {
		return pages, nil
	}
	if fallbackErr == nil && isReadableText(fallback) {
		return fallback, nil
	}

	if libErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, libErr)
	}
	if IsBlank(strings.Join(pages, "")) {
		return pages, nil
	}
	return nil, fmt.Errorf("%w: text layer is not readable", ErrUnreadablePDF)
}

// IsBlank reports whether extracted text contains anything but whitespace.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// CheckText returns ErrNoText for blank text. Hosts use it to warn about
// scanned documents; the parser itself accepts blank text.
func CheckText(text string) error {
	if IsBlank(text) {
		return ErrNoText
	}
	return nil
}

// extractWithLibrary uses ledongthuc/pdf, recovering from its panics on
// malformed input.
func extractWithLibrary(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, errors.New("PDF has no pages")
	}

	pages = extractByRow(r, numPages)
	if isReadableText(pages) {
		return pages, nil
	}
	return extractByContent(r, numPages), nil
}

// extractByRow joins the words of each text row reported by the library.
func extractByRow(r *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			pages = append(pages, "")
			continue
		}
		var lines []string
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			if line := strings.TrimSpace(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractByContent rebuilds rows from raw text objects grouped by their
// rounded Y coordinate, top to bottom, each row ordered left to right.
func extractByContent(r *pdf.Reader, numPages int) []string {
	type textItem struct {
		x float64
		s string
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		rowMap := make(map[int][]textItem)
		for _, t := range page.Content().Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			rowMap[y] = append(rowMap[y], textItem{x: t.X, s: t.S})
		}

		ys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			ys = append(ys, y)
		}
		// PDF Y grows upwards
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		var lines []string
		for _, y := range ys {
			items := rowMap[y]
			sort.Slice(items, func(a, b int) bool { return items[a].x < items[b].x })

			var sb strings.Builder
			var prevX float64
			for j, item := range items {
				if j > 0 && item.x-prevX > 15 {
					sb.WriteString(" ")
				}
				sb.WriteString(item.s)
				prevX = item.x
			}
			if line := strings.TrimSpace(sb.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// extractWithPdftotext shells out to poppler's pdftotext when it is installed.
func extractWithPdftotext(data []byte) ([]string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return nil, fmt.Errorf("pdftotext not available: %w", err)
	}

	tmp, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmp.Name(), "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	// pdftotext separates pages with form feeds
	return strings.Split(strings.TrimRight(string(out), "\f\n"), "\f"), nil
}

// textQuality returns the share of characters that are plain ASCII letters,
// digits, whitespace or common invoice punctuation. Identity-encoded fonts
// decode to accented garbage, which unicode.IsLetter would accept.
func textQuality(pages []string) float64 {
	total, readable := 0, 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// isReadableText requires some text, mostly readable characters, and a
// digit somewhere, since an invoice without numbers has no line items.
func isReadableText(pages []string) bool {
	text := strings.Join(pages, "")
	if len(strings.TrimSpace(text)) < 20 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return strings.ContainsAny(text, "0123456789")
}
