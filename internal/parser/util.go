package parser

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// whitespaceRun matches any run of whitespace, including non-breaking spaces
// left behind by PDF text extraction.
var whitespaceRun = regexp.MustCompile(`[\s\x{00A0}]+`)

// collapseSpaces reduces every whitespace run to one space and trims the ends.
func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// parseNumber converts "1,234.56" to 1234.56. Malformed text yields 0 so one
// bad token never aborts a whole document.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// tagPatterns holds the regexes that depend on the invoice's currency tag.
type tagPatterns struct {
	tag string
	// TAG followed, anywhere later on the line, by a decimal amount
	taggedSignal *regexp.Regexp
	// TAG, optional thousands separators, digits '.' digits
	taggedAmount *regexp.Regexp
}

var (
	patternsMu    sync.Mutex
	patternsByTag = map[string]*tagPatterns{}
)

// patternsFor compiles, once per tag, the patterns used by the detector,
// classifier and field parser.
func patternsFor(tag string) *tagPatterns {
	patternsMu.Lock()
	defer patternsMu.Unlock()

	if p, ok := patternsByTag[tag]; ok {
		return p
	}

	quoted := regexp.QuoteMeta(tag)
	p := &tagPatterns{
		tag:          tag,
		taggedSignal: regexp.MustCompile(quoted + `.*\d+\.\d+`),
		taggedAmount: regexp.MustCompile(quoted + `\s*[\d,]*\d\.\d+`),
	}
	patternsByTag[tag] = p
	return p
}
