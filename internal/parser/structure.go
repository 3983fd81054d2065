package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

// structureWindow is how many leading lines the detector inspects. Item
// tables and their headers start near the top of an invoice.
const structureWindow = 50

var (
	// Model codes such as "ABC-100" or "WDX-9"
	modelCodePattern = regexp.MustCompile(`[A-Z]{2,}-\d+`)
	quantityHeader   = regexp.MustCompile(`(?i)\b(?:qty|quantity)\b`)
	priceHeader      = regexp.MustCompile(`(?i)\b(?:price|amount|cost)\b`)
)

// DetectStructure reports which layout signals appear in the first
// structureWindow lines. TotalLineCount counts every line, not just the window.
func DetectStructure(lines []string, tag string) models.StructureSignature {
	tag = tagOrDefault(tag)
	p := patternsFor(tag)

	sig := models.StructureSignature{TotalLineCount: len(lines)}

	window := lines
	if len(window) > structureWindow {
		window = window[:structureWindow]
	}

	for _, line := range window {
		if !sig.HasTaggedAmount && strings.Contains(line, tag) && p.taggedSignal.MatchString(line) {
			sig.HasTaggedAmount = true
		}
		if !sig.HasModelCode && modelCodePattern.MatchString(line) {
			sig.HasModelCode = true
		}
		if !sig.HasQuantityHeader && quantityHeader.MatchString(line) {
			sig.HasQuantityHeader = true
		}
		if !sig.HasPriceHeader && priceHeader.MatchString(line) {
			sig.HasPriceHeader = true
		}
	}

	return sig
}
