package glossary

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchForChapter returns the entries whose original term actually appears
// in the chapter text. This bounds the glossary context injected per call
// instead of letting the prompt grow with every chapter processed.
// Latin-script terms must appear as whole words; terms in scripts without
// word boundaries match as substrings.
func MatchForChapter(entries []Entry, text string) []Entry {
	var matched []Entry
	for _, entry := range entries {
		if termAppears(text, entry.Original) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// MatchContext filters a context dictionary (lowercased term to gender tag)
// down to the terms present in text, case-insensitively.
func MatchContext(dict map[string]string, text string) map[string]string {
	if len(dict) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	matched := make(map[string]string)
	for term, gender := range dict {
		if termAppears(lower, term) {
			matched[term] = gender
		}
	}
	if len(matched) == 0 {
		return nil
	}
	return matched
}

// FormatEntries renders entries as the line block injected into prompts.
func FormatEntries(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.String())
	}
	return strings.Join(lines, "\n")
}

// FormatContext renders a context dictionary as deterministic "term => tag"
// lines, sorted by term so prompts are stable across runs.
func FormatContext(dict map[string]string) string {
	terms := make([]string, 0, len(dict))
	for term := range dict {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	lines := make([]string, 0, len(terms))
	for _, term := range terms {
		lines = append(lines, term+" => "+dict[term])
	}
	return strings.Join(lines, "\n")
}

func termAppears(text, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return false
	}
	if isLatinTerm(term) {
		return wholeWord(text, term)
	}
	return strings.Contains(text, term)
}

// isLatinTerm reports whether every letter in the term belongs to the Latin
// script. Terms without letters take the whole-word path too.
func isLatinTerm(term string) bool {
	for _, r := range term {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

func wholeWord(text, term string) bool {
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], term)
		if idx < 0 {
			return false
		}
		begin := start + idx
		end := begin + len(term)
		if boundaryBefore(text, begin) && boundaryAfter(text, end) {
			return true
		}
		start = begin + len(term)
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
