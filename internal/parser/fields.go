package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

var (
	firstDigitRun = regexp.MustCompile(`\d+`)
	// Product codes on generic lines: two or more capitals, optional hyphen, digits
	genericCode = regexp.MustCompile(`\b[A-Z]{2,}-?\d+\b`)
	// Plain numbers, optionally thousands-separated and/or decimal
	numericToken = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|\b\d+(?:\.\d+)?\b`)
)

// ParseLine extracts the item fields from one candidate line. A result with
// an empty ProductCode means the line did not describe a product.
func ParseLine(c models.CandidateLine, tag string) models.ParsedItem {
	switch c.Format {
	case models.FormatTagged:
		return parseTaggedLine(c.Text, patternsFor(tagOrDefault(tag)))
	default:
		return parseGenericLine(c.Text)
	}
}

// parseTaggedLine handles lines such as "Item ABC-100 SR 25.50 3 ABC-100 7":
// the rightmost tagged amount is the unit price, the first number after it
// is the quantity, and the closing "code serial" pair names the product.
func parseTaggedLine(line string, p *tagPatterns) models.ParsedItem {
	var item models.ParsedItem

	amounts := p.taggedAmount.FindAllStringIndex(line, -1)
	if len(amounts) == 0 {
		return item
	}
	last := amounts[len(amounts)-1]
	item.UnitPrice = parseNumber(strings.TrimPrefix(line[last[0]:last[1]], p.tag))

	trailing := strings.TrimSpace(line[last[1]:])
	if trailing == "" {
		return item
	}

	qtyLoc := firstDigitRun.FindStringIndex(trailing)
	if qtyLoc != nil {
		item.Quantity = parseNumber(trailing[qtyLoc[0]:qtyLoc[1]])
	}

	rest := trailing
	if m := trailingCodeSerial.FindStringSubmatchIndex(trailing); m != nil {
		item.ProductCode = trailing[m[2]:m[3]]
		rest = trailing[:m[2]]
	}

	// Drop the quantity token when it sits in the text before the code.
	if qtyLoc != nil && qtyLoc[1] <= len(rest) {
		rest = rest[:qtyLoc[0]] + rest[qtyLoc[1]:]
	}
	item.Description = collapseSpaces(rest)

	return item
}

// parseGenericLine handles lines such as "Widget Deluxe WDX-9 12 45.00":
// the first model-like token is the code, the last two numbers of the whole
// line are quantity and unit price, and the remaining words form the
// description. Digits after a code's hyphen count as a number.
func parseGenericLine(line string) models.ParsedItem {
	var item models.ParsedItem

	numbers := numericToken.FindAllString(line, -1)
	switch n := len(numbers); {
	case n >= 2:
		item.Quantity = parseNumber(numbers[n-2])
		item.UnitPrice = parseNumber(numbers[n-1])
	case n == 1:
		item.UnitPrice = parseNumber(numbers[0])
	}

	rest := line
	if loc := genericCode.FindStringIndex(line); loc != nil {
		item.ProductCode = line[loc[0]:loc[1]]
		rest = line[:loc[0]] + " " + line[loc[1]:]
	}
	item.Description = collapseSpaces(numericToken.ReplaceAllString(rest, " "))
	return item
}
