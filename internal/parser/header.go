package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

var (
	invoiceNumberPattern = regexp.MustCompile(`(?i)\binvoice\s*(?:no\.?|number|num|#)\s*[:#.]?\s*([A-Z0-9][A-Z0-9/-]*)`)
	// DD/MM/YYYY, YYYY-MM-DD or "15 Jan 2024" after a "date" label
	invoiceDatePattern = regexp.MustCompile(`(?i)\bdate\s*:?\s*(\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s+[A-Za-z]{3,9}\s+\d{2,4})`)
	vendorLabelPattern = regexp.MustCompile(`(?i)^(?:vendor|supplier|sold by|seller|from)\s*:\s*(.+)$`)
)

// headerWindow bounds the vendor-name guess to the letterhead.
const headerWindow = 5

// ExtractHeader pulls the invoice number, date and vendor name out of the
// normalized lines. Fields that cannot be found are left empty.
func ExtractHeader(lines []string, tag string) models.InvoiceHeader {
	h := models.InvoiceHeader{CurrencyTag: tagOrDefault(tag)}

	for _, line := range lines {
		if h.InvoiceNumber == "" {
			if m := invoiceNumberPattern.FindStringSubmatch(line); m != nil {
				h.InvoiceNumber = m[1]
			}
		}
		if h.InvoiceDate == "" {
			if m := invoiceDatePattern.FindStringSubmatch(line); m != nil {
				h.InvoiceDate = m[1]
			}
		}
		if h.VendorName == "" {
			if m := vendorLabelPattern.FindStringSubmatch(line); m != nil {
				h.VendorName = strings.TrimSpace(m[1])
			}
		}
	}

	if h.VendorName == "" {
		h.VendorName = guessVendor(lines)
	}

	return h
}

// guessVendor returns the first letterhead line made of words only.
func guessVendor(lines []string) string {
	for i, line := range lines {
		if i >= headerWindow {
			break
		}
		if strings.ContainsAny(line, "0123456789@:") {
			continue
		}
		if stopMatcher.Contains([]byte(strings.ToLower(line))) {
			continue
		}
		return line
	}
	return ""
}
