// Package glossary maintains the shared term dictionary that keeps character
// names and pronouns consistent across chapters. The master file stores one
// entry per line between START/END marker lines; derived name and context
// sub-glossaries live in a sibling folder named after the master file.
package glossary

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loom/internal/fileutil"
)

// Marker lines fencing the entry section of a glossary file. Historical
// files drifted in trailing '=' count, so parsing only requires the leading
// run and the label while writes always emit these exact bytes.
const (
	markerStart = "==================================== GLOSSARY START ==============================="
	markerEnd   = "==================================== GLOSSARY END ================================"
)

// Entry is one glossary line. Gender is empty for two-field lines such as
// those in the derived sub-glossaries.
type Entry struct {
	Original    string
	Translation string
	Gender      string
}

// String renders the entry in the on-disk "a => b => c" form.
func (e Entry) String() string {
	if e.Gender == "" {
		return e.Original + " => " + e.Translation
	}
	return e.Original + " => " + e.Translation + " => " + e.Gender
}

// ParseLine parses an "original => translation[ => gender]" line. Lines with
// fewer than two fields, or an empty original or translation, are rejected.
func ParseLine(line string) (Entry, bool) {
	if !strings.Contains(line, "=>") {
		return Entry{}, false
	}
	parts := strings.Split(line, "=>")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Entry{}, false
	}
	entry := Entry{Original: parts[0], Translation: parts[1]}
	if len(parts) >= 3 {
		entry.Gender = parts[2]
	}
	return entry, true
}

func isMarker(line, label string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "====") && strings.Contains(trimmed, label)
}

// section extracts the lines between the START and END markers. Returns
// false when the START marker is missing entirely.
func section(content string) ([]string, bool) {
	lines := strings.Split(content, "\n")
	var body []string
	inside := false
	found := false
	for _, line := range lines {
		switch {
		case isMarker(line, "GLOSSARY START"):
			inside = true
			found = true
		case isMarker(line, "GLOSSARY END"):
			inside = false
		case inside:
			body = append(body, line)
		}
	}
	return body, found
}

// EnsureFile creates an empty marker-fenced glossary at path if none exists.
func EnsureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create glossary directory: %w", err)
	}
	return fileutil.WriteAtomic(path, []byte(markerStart+"\n"+markerEnd+"\n"), 0o644)
}

// ReadEntries loads the parseable entries from a glossary file. A missing
// file reads as empty; a file without markers is an error since that means
// the path points at something that is not a glossary.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read glossary %s: %w", path, err)
	}
	body, found := section(string(data))
	if !found {
		return nil, fmt.Errorf("glossary %s is missing its START marker", path)
	}
	var entries []Entry
	for _, line := range body {
		if entry, ok := ParseLine(line); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// WriteEntries atomically rewrites a glossary file with the canonical
// markers around the given entries.
func WriteEntries(path string, entries []Entry) error {
	var b strings.Builder
	b.WriteString(markerStart)
	b.WriteByte('\n')
	for _, entry := range entries {
		b.WriteString(entry.String())
		b.WriteByte('\n')
	}
	b.WriteString(markerEnd)
	b.WriteByte('\n')
	return fileutil.WriteAtomic(path, []byte(b.String()), 0o644)
}

// SplitPaths derives the sub-glossary locations for a master glossary:
// a folder named after the file's stem holding name_glossary.txt and
// context_glossary.txt.
func SplitPaths(mainPath string) (dir, namePath, contextPath string) {
	base := strings.TrimSuffix(filepath.Base(mainPath), filepath.Ext(mainPath))
	dir = filepath.Join(filepath.Dir(mainPath), base)
	return dir, filepath.Join(dir, "name_glossary.txt"), filepath.Join(dir, "context_glossary.txt")
}

// LoadNameEntries reads the derived name sub-glossary for a master glossary.
func LoadNameEntries(mainPath string) ([]Entry, error) {
	_, namePath, _ := SplitPaths(mainPath)
	return ReadEntries(namePath)
}

// LoadContextDict reads the derived context sub-glossary into a lookup of
// lowercased term to gender tag.
func LoadContextDict(mainPath string) (map[string]string, error) {
	_, _, contextPath := SplitPaths(mainPath)
	entries, err := ReadEntries(contextPath)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	dict := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.Gender != "" {
			dict[strings.ToLower(entry.Original)] = entry.Gender
			dict[strings.ToLower(entry.Translation)] = entry.Gender
			continue
		}
		dict[strings.ToLower(entry.Original)] = entry.Translation
	}
	return dict, nil
}
