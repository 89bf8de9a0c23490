// Package pii classifies spans of text against a fixed set of PII type
// recognizers. Recognizers are deterministic: a structural pattern plus a
// checksum where the format defines one (Luhn for credit cards and Canadian
// SINs). Each type carries a fixed confidence constant; min_score in guard
// configuration gates against these constants.
package pii

import (
	"regexp"
	"sort"
	"strings"
)

// Type names one detectable PII category.
type Type string

const (
	TypeEmail      Type = "email"
	TypePhone      Type = "phone_number"
	TypeSSN        Type = "ssn"
	TypeCreditCard Type = "credit_card"
	TypeCASIN      Type = "ca_sin"
	TypeURL        Type = "url"
)

// ParseType maps a configuration string to a known PII type.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeEmail, TypePhone, TypeSSN, TypeCreditCard, TypeCASIN, TypeURL:
		return Type(s), true
	}
	return "", false
}

// Span is one detected PII occurrence. Start/End are byte offsets into the
// scanned text.
type Span struct {
	Type       Type
	Start      int
	End        int
	Confidence float32
}

// recognizer pairs a structural pattern with a fixed confidence and an
// optional checksum validator over the matched text.
type recognizer struct {
	typ        Type
	re         *regexp.Regexp
	confidence float32
	validate   func(string) bool
}

// Pre-compiled recognizers — one per PII type, compiled once at startup.
var recognizers = []recognizer{
	{TypeEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), 0.85, nil},
	{TypeSSN, regexp.MustCompile(`\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`), 0.90, nil},
	// Card numbers for the major networks, with optional spaces/dashes.
	// Luhn validation keeps arbitrary 16-digit strings from matching.
	{TypeCreditCard, regexp.MustCompile(`\b(?:4\d{3}|5[1-5]\d{2}|6011)[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), 0.95, luhnValid},
	{TypeCreditCard, regexp.MustCompile(`\b3[47]\d{2}[-\s]?\d{6}[-\s]?\d{5}\b`), 0.95, luhnValid},
	// Canadian SIN: 9 digits grouped in threes, Luhn-checked per the format.
	{TypeCASIN, regexp.MustCompile(`\b\d{3}[-\s]\d{3}[-\s]\d{3}\b`), 0.90, luhnValid},
	// US phone formats: (123) 456-7890, 123-456-7890, +1-123-456-7890.
	{TypePhone, regexp.MustCompile(`(\+1[-\s]?)?\(?\d{3}\)?[-\s.]\d{3}[-\s.]\d{4}\b`), 0.75, nil},
	{TypeURL, regexp.MustCompile(`\bhttps?://[^\s<>"']+`), 0.80, nil},
}

// Detect scans text for the requested PII types and returns spans at or
// above minScore, sorted by start offset. Overlapping spans keep the higher
// confidence detection.
func Detect(text string, types []Type, minScore float32) []Span {
	if len(types) == 0 {
		return nil
	}
	wanted := make(map[Type]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var spans []Span
	for _, r := range recognizers {
		if !wanted[r.typ] || r.confidence < minScore {
			continue
		}
		for _, loc := range r.re.FindAllStringIndex(text, -1) {
			matched := text[loc[0]:loc[1]]
			if r.validate != nil && !r.validate(matched) {
				continue
			}
			spans = append(spans, Span{
				Type:       r.typ,
				Start:      loc[0],
				End:        loc[1],
				Confidence: r.confidence,
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].Confidence > spans[j].Confidence
	})
	return dedupeOverlaps(spans)
}

// dedupeOverlaps drops spans that overlap an already-kept span. Input must
// be sorted by start offset with higher confidence first on ties.
func dedupeOverlaps(spans []Span) []Span {
	out := spans[:0]
	lastEnd := -1
	for _, s := range spans {
		if s.Start < lastEnd {
			continue
		}
		out = append(out, s)
		lastEnd = s.End
	}
	return out
}

// Mask replaces each span with a <TYPE> placeholder and leaves every other
// byte of the input unchanged. Spans must be non-overlapping and sorted by
// start offset, as returned by Detect.
func Mask(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, s := range spans {
		b.WriteString(text[prev:s.Start])
		b.WriteString(Placeholder(s.Type))
		prev = s.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// Placeholder returns the mask token for a PII type, e.g. <EMAIL>.
func Placeholder(t Type) string {
	return "<" + strings.ToUpper(string(t)) + ">"
}

// Types lists the detected types across spans, deduplicated, in first-seen
// order. Used for reject reasons so raw matched values never leak into
// logs or error responses.
func Types(spans []Span) []string {
	seen := make(map[Type]bool, len(spans))
	var out []string
	for _, s := range spans {
		if seen[s.Type] {
			continue
		}
		seen[s.Type] = true
		out = append(out, string(s.Type))
	}
	return out
}

// luhnValid reports whether the digits of s satisfy the Luhn checksum.
// Non-digit separators are ignored.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 9 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
