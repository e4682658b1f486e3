// Package text holds string cleanup shared by ingestion, prompting and event dedup.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeBody strips NUL and other control characters that corrupt storage.
// Newlines and tabs are kept. Invalid UTF-8 is dropped.
func SanitizeBody(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case unicode.IsControl(r), r == utf8.RuneError:
			return -1
		default:
			return r
		}
	}, s)
}

// Compact prepares post text for a prompt: drops links, collapses whitespace and
// truncates to maxRunes (0 means no limit).
func Compact(s string, maxRunes int) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))

	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:maxRunes])) + "…"
	}

	return s
}

// Fold applies NFKC normalization and Unicode-aware lower-casing.
func Fold(s string) string {
	return cases.Lower(language.Und).String(norm.NFKC.String(s))
}

// MinKeywordLength is the shortest token kept by Keywords.
const MinKeywordLength = 3

//nolint:gochecknoglobals
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {}, "onto": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "will": {}, "are": {}, "was": {},
	"were": {}, "has": {}, "have": {}, "had": {}, "its": {}, "our": {}, "their": {},
	"about": {}, "after": {}, "before": {}, "over": {}, "under": {}, "upon": {},
	"new": {}, "via": {}, "per": {}, "all": {}, "any": {}, "but": {}, "not": {},
	"expected": {}, "event": {}, "announcement": {}, "report": {}, "update": {},
}

// Keywords tokenizes a title into a de-duplicated, order-preserving keyword list:
// folded to lower case, punctuation stripped, stopwords and short tokens removed.
func Keywords(title string) []string {
	fields := strings.FieldsFunc(Fold(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, f := range fields {
		if utf8.RuneCountInString(f) < MinKeywordLength {
			continue
		}

		if _, stop := stopwords[f]; stop {
			continue
		}

		if _, dup := seen[f]; dup {
			continue
		}

		seen[f] = struct{}{}
		out = append(out, f)
	}

	return out
}
