package parser

import "strings"

// DefaultCurrencyTag is the currency literal used when the caller gives none.
const DefaultCurrencyTag = "SR"

// NormalizeLine collapses interior whitespace runs to single spaces and trims
// the result. Normalizing an already normalized line returns it unchanged.
func NormalizeLine(line string) string {
	return collapseSpaces(line)
}

// NormalizeLines splits raw extracted text into normalized lines in document
// order, dropping lines that are empty after normalization.
func NormalizeLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if n := NormalizeLine(l); n != "" {
			lines = append(lines, n)
		}
	}
	return lines
}

func tagOrDefault(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return DefaultCurrencyTag
	}
	return tag
}
