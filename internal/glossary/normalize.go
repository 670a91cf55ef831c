package glossary

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTerm reduces a term to its duplicate-detection key: compatibility
// normalization, whitespace stripped, everything except word characters and
// hyphens dropped, lowercased. Hyphens survive so romanized honorific
// suffixes stay distinguishable from the bare name.
func NormalizeTerm(term string) string {
	var b strings.Builder
	for _, r := range norm.NFKC.String(term) {
		if unicode.IsSpace(r) {
			continue
		}
		if r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// sanitizeField strips punctuation a model tends to decorate extracted terms
// with, keeping word characters, spaces, and hyphens, and collapsing runs of
// whitespace.
func sanitizeField(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
