package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/cloudflare/ahocorasick"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

// LinePolicy decides whether a normalized line is an item line of one layout.
type LinePolicy interface {
	// Format is the tag given to lines the policy accepts.
	Format() models.LineFormat
	// Accept reports whether line qualifies, with a short reason when it does not.
	Accept(line string) (bool, string)
}

// trailingCodeSerial matches "code serial" at the end of a line, e.g. "ABC-100 7".
var trailingCodeSerial = regexp.MustCompile(`(?:^|\s)([A-Za-z0-9][A-Za-z0-9-]*)\s+(\d+)$`)

// stopWords mark header and summary lines under the generic policy. Matching
// is by substring, so "subtotal" is covered by "total" as well.
var stopWords = []string{"total", "subtotal", "invoice", "date"}

var stopMatcher = ahocorasick.NewStringMatcher(stopWords)

// TaggedPolicy accepts lines that carry a currency-tagged amount and end with
// a product code followed by a line number.
type TaggedPolicy struct {
	patterns *tagPatterns
}

// NewTaggedPolicy returns the tagged-amount policy for the given currency tag.
func NewTaggedPolicy(tag string) *TaggedPolicy {
	return &TaggedPolicy{patterns: patternsFor(tagOrDefault(tag))}
}

func (p *TaggedPolicy) Format() models.LineFormat {
	return models.FormatTagged
}

func (p *TaggedPolicy) Accept(line string) (bool, string) {
	if !strings.Contains(line, p.patterns.tag) {
		return false, "no currency tag"
	}
	if !p.patterns.taggedAmount.MatchString(line) {
		return false, "no tagged amount"
	}
	if !trailingCodeSerial.MatchString(line) {
		return false, "no trailing code and line number"
	}
	return true, ""
}

// GenericPolicy accepts any line mixing digits and letters that is not a
// header or summary line. It favours recall and admits lines such as
// "Due 12 March"; those fall out later when no product code is found.
type GenericPolicy struct{}

func (GenericPolicy) Format() models.LineFormat {
	return models.FormatGeneric
}

func (GenericPolicy) Accept(line string) (bool, string) {
	var hasDigit, hasLetter bool
	for _, r := range line {
		if unicode.IsDigit(r) {
			hasDigit = true
		} else if unicode.IsLetter(r) {
			hasLetter = true
		}
		if hasDigit && hasLetter {
			break
		}
	}
	if !hasDigit {
		return false, "no digits"
	}
	if !hasLetter {
		return false, "no letters"
	}
	if stopMatcher.Contains([]byte(strings.ToLower(line))) {
		return false, "header or summary line"
	}
	return true, ""
}

// PolicyFor selects the extraction policy from the structure signature.
func PolicyFor(sig models.StructureSignature, tag string) LinePolicy {
	if sig.HasTaggedAmount {
		return NewTaggedPolicy(tag)
	}
	return GenericPolicy{}
}

// ExtractItems returns the candidate item lines of text in document order.
func ExtractItems(text string, sig models.StructureSignature, tag string) []models.CandidateLine {
	candidates, _ := classifyLines(NormalizeLines(text), PolicyFor(sig, tag))
	return candidates
}

// classifyLines filters lines through policy and records a debug trace entry
// for each line. Result fields of accepted lines are filled in by the caller
// once the line has been parsed.
func classifyLines(lines []string, policy LinePolicy) ([]models.CandidateLine, []models.DebugLine) {
	candidates := []models.CandidateLine{}
	debug := make([]models.DebugLine, 0, len(lines))

	for i, line := range lines {
		dl := models.DebugLine{LineNum: i + 1, Text: line}
		ok, reason := policy.Accept(line)
		if !ok {
			dl.Result = "skipped"
			dl.Reason = reason
			debug = append(debug, dl)
			continue
		}
		dl.Format = policy.Format()
		debug = append(debug, dl)
		candidates = append(candidates, models.CandidateLine{
			Format:  policy.Format(),
			Text:    line,
			LineNum: i + 1,
		})
	}

	return candidates, debug
}
