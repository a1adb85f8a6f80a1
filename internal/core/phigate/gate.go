// Package phigate classifies free-text clinical input before it may be sent
// to an external generative model. Analyze is a pure function of its input
// and the compiled rule pack: it never performs I/O and never fails
package phigate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"chartguard/internal/core/rulepack"
)

// Status is the classification verdict level
type Status string

const (
	// StatusGreen means no rule matched; transmission is allowed
	StatusGreen Status = "GREEN"
	// StatusYellow means only soft rules matched; allowed but flagged for review
	StatusYellow Status = "YELLOW"
	// StatusRed means a hard rule matched; transmission must be blocked
	StatusRed Status = "RED"
)

// AgeContext carries the categorical bucket of the first detected age
type AgeContext struct {
	AgeGroup string `json:"age_group"`
}

// Verdict is the result of one Analyze call. RedactedText always carries the
// age-redacted form regardless of status, so YELLOW/GREEN callers can use it
// directly
type Verdict struct {
	Status       Status      `json:"status"`
	RedactedText string      `json:"redacted_text"`
	AgeContext   *AgeContext `json:"age_context,omitempty"`
	BlockReasons []string    `json:"block_reasons,omitempty"`
}

// Gate runs classification over raw input text
type Gate struct {
	pack *rulepack.Pack
}

// New constructs a Gate over a compiled rule pack
func New(p *rulepack.Pack) *Gate { return &Gate{pack: p} }

// Analyze redacts ages and classifies text.
//
// Age redaction always runs first, so an age-pattern-like string can never
// also trigger a hard date rule. Hard rules short-circuit to RED; soft rules
// are only consulted when no hard rule matched
func (g *Gate) Analyze(text string) Verdict {
	var ages []float64

	redacted, found := g.redactPass(text, g.pack.Age.NumberUnit, true)
	ages = append(ages, found...)
	redacted, found = g.redactPass(redacted, g.pack.Age.LabelNumber, false)
	ages = append(ages, found...)

	v := Verdict{Status: StatusGreen, RedactedText: redacted}
	if len(ages) > 0 {
		v.AgeContext = &AgeContext{AgeGroup: categorizeAge(ages[0])}
	}

	if hits := scanRules(g.pack.Hard, redacted); len(hits) > 0 {
		v.Status = StatusRed
		v.BlockReasons = hits
		return v
	}
	if hits := scanRules(g.pack.Soft, redacted); len(hits) > 0 {
		v.Status = StatusYellow
		v.BlockReasons = hits
	}
	return v
}

// redactPass replaces every guarded match of re with the placeholder and
// returns the extracted age values in match order.
//
// For the number-unit pass (unitForm=true) group 1 is the number and group 2
// the unit; for the label-number pass group 2 is the number and the unit is
// implicitly years
func (g *Gate) redactPass(text string, re *regexp.Regexp, unitForm bool) (string, []float64) {
	idx := re.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return text, nil
	}

	var ages []float64
	var b strings.Builder
	b.Grow(len(text))
	last := 0

	for _, m := range idx {
		start, end := m[0], m[1]

		var numStr, unit string
		if unitForm {
			numStr = text[m[2]:m[3]]
			unit = text[m[4]:m[5]]
		} else {
			numStr = text[m[4]:m[5]]
		}

		if !g.matchAllowed(text, start, end) {
			continue // left verbatim; copied by the next flush
		}

		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		age := float64(n)
		if unitForm && g.pack.Age.IsMonthUnit(unit) {
			age = age / 12
		}
		ages = append(ages, age)

		b.WriteString(text[last:start])
		b.WriteString(g.pack.Placeholder)
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), ages
}

// matchAllowed applies the word-boundary and date-fragment guards.
//
// Word boundary: the rune immediately before the match must not be an ASCII
// word rune, and when the match ends in an ASCII word rune the one after it
// must not be either. Boundaries are ASCII-scoped on purpose: the units are
// mixed-script and e.g. "72歳。" has no word rune on either side of 歳.
//
// Date fragment: the nearest non-space rune on either side must not be one
// of / - . so "2024/12/31" and "R6.2.7" are never misread as ages
func (g *Gate) matchAllowed(text string, start, end int) bool {
	if r, ok := lastRune(text[:start]); ok && isWordASCII(r) {
		return false
	}
	endsWord := false
	if r, ok := lastRune(text[start:end]); ok {
		endsWord = isWordASCII(r)
	}
	if endsWord {
		if r, ok := firstRune(text[end:]); ok && isWordASCII(r) {
			return false
		}
	}

	if r, ok := prevNonSpace(text, start); ok && isDatePunct(r) {
		return false
	}
	if r, ok := nextNonSpace(text, end); ok && isDatePunct(r) {
		return false
	}
	return true
}

func scanRules(rules []rulepack.Rule, text string) []string {
	var hits []string
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if !r.Re.MatchString(text) {
			continue
		}
		if _, dup := seen[r.Label]; dup {
			continue
		}
		seen[r.Label] = struct{}{}
		hits = append(hits, r.Label)
	}
	return hits
}

// categorizeAge maps an age in years to its bucket
func categorizeAge(age float64) string {
	switch {
	case age < 1:
		return "Infant"
	case age < 6:
		return "0-5"
	case age < 18:
		return "6-17"
	case age < 40:
		return "18-39"
	case age < 65:
		return "40-64"
	default:
		return "65+"
	}
}

func isWordASCII(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z')
}

func isDatePunct(r rune) bool { return r == '/' || r == '-' || r == '.' }

func lastRune(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	r, _ := utf8.DecodeLastRuneInString(s)
	return r, true
}

func firstRune(s string) (rune, bool) {
	if s == "" {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, true
}

func prevNonSpace(s string, pos int) (rune, bool) {
	for pos > 0 {
		r, sz := utf8.DecodeLastRuneInString(s[:pos])
		if !unicode.IsSpace(r) {
			return r, true
		}
		pos -= sz
	}
	return 0, false
}

func nextNonSpace(s string, pos int) (rune, bool) {
	for pos < len(s) {
		r, sz := utf8.DecodeRuneInString(s[pos:])
		if !unicode.IsSpace(r) {
			return r, true
		}
		pos += sz
	}
	return 0, false
}
