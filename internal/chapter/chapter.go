// Package chapter models source chapters and their derived texts.
//
// A chapter is one UTF-8 text file whose name embeds a base-10 ordinal
// (chapter_12.txt, 003_prologue.txt). Ordering is numeric-aware so
// chapter_2 precedes chapter_10, which keeps "previous chapter" context
// lookups well-defined across the pipeline.
package chapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Unit is one chapter of source text plus its derived artifacts. The output
// file on disk is the single source of truth; the text fields here are
// working copies populated as phases run.
type Unit struct {
	Name       string
	Path       string
	Ordinal    int
	HasOrdinal bool

	SourceText     string
	TranslatedText string
	ProofedText    string
	ByteSize       int
}

// ParseOrdinal extracts the first embedded base-10 integer from a filename.
// Returns false when the name carries no digits.
func ParseOrdinal(name string) (int, bool) {
	start := -1
	for i, r := range name {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	digits := name[start:end]
	// Guard absurd digit runs against overflow; treat them as unordered.
	if len(digits) > 18 {
		return 0, false
	}
	value := 0
	for _, r := range digits {
		value = value*10 + int(r-'0')
	}
	return value, true
}

// New builds a Unit from a file path, deriving the ordinal from the name.
func New(path string) *Unit {
	name := filepath.Base(path)
	ordinal, ok := ParseOrdinal(name)
	return &Unit{
		Name:       name,
		Path:       path,
		Ordinal:    ordinal,
		HasOrdinal: ok,
	}
}

// Scan lists the .txt chapters under dir in natural numeric order. A missing
// directory yields an empty slice, not an error, so a proof-only run can
// operate on whatever the output directory already holds.
func Scan(dir string) ([]*Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan chapters in %s: %w", dir, err)
	}
	units := make([]*Unit, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".txt") {
			continue
		}
		units = append(units, New(filepath.Join(dir, name)))
	}
	SortUnits(units)
	return units, nil
}

// SortUnits orders units by embedded ordinal, with ordinal-less names last
// and name order breaking ties. The sort is stable across repeated calls.
func SortUnits(units []*Unit) {
	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		switch {
		case a.HasOrdinal && !b.HasOrdinal:
			return true
		case !a.HasOrdinal && b.HasOrdinal:
			return false
		case a.HasOrdinal && b.HasOrdinal && a.Ordinal != b.Ordinal:
			return a.Ordinal < b.Ordinal
		default:
			return a.Name < b.Name
		}
	})
}

// LoadSource reads the chapter file into SourceText and records its size.
func (u *Unit) LoadSource() error {
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return fmt.Errorf("read chapter %s: %w", u.Name, err)
	}
	u.SourceText = string(data)
	u.ByteSize = len(data)
	return nil
}

// OutputPath returns the destination for this chapter under outputDir.
func (u *Unit) OutputPath(outputDir string) string {
	return filepath.Join(outputDir, u.Name)
}

// Previous returns the unit preceding index i in the ordered slice, or nil
// at the start of the sequence.
func Previous(units []*Unit, i int) *Unit {
	if i <= 0 || i > len(units) {
		return nil
	}
	return units[i-1]
}
