package glossary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"

	"loom/internal/config"
	"loom/internal/fileutil"
	"loom/internal/logging"
)

// Generator is the model call used to extract and proofread glossary
// entries. The gateway satisfies it; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, instructions []string, prompt string) (string, error)
}

// noEntitiesSentinel is the phrase the extraction instructions ask the model
// to emit when a chapter contains nothing worth recording.
const noEntitiesSentinel = "No named entities found"

var extractionInstructions = []string{
	"Extract a glossary of Non-English proper nouns (places, people, unique terms) from the given text.",
	"For each unique Non-English term, provide a recommended English translation and gender pronoun ONLY.",
	"Output only lines of the form: Non-English Original Text => English => Gender Pronoun, with proper capitalization.",
	"Gender pronouns should be one of: he/him, she/her, they/them, or it/its.",
	"If no named entities are found, write: No named entities found.",
	"Remove any special characters that are not letters or numbers from the terms.",
}

var proofInstructions = []string{
	"Your task is to proofread the given glossary for a Non-English-to-English translation project.",
	"Fix any inconsistencies, merge similar entries, and remove any similar and exact duplicates.",
	"If there is transliteration, translate it into the nearest English equivalent.",
	"Each glossary line is in this format: Original => English => Gender",
	"Ensure consistent formatting and spacing.",
	"If two ORIGINAL terms are CLEARLY spelling variants of the SAME name, merge them.",
	"Preserve honorifics by appending them to the translated term.",
	"Return ONLY the cleaned glossary lines. Do not explain or comment.",
	"All lines across all chunks should be used to determine consistency.",
}

// Symbols that disqualify an extracted term. A term carrying full-width
// punctuation is a sentence fragment the model failed to trim, not a name.
var denySymbols = []string{
	"…", "「", "」", "『", "』", "、", "。", "！", "？", "～", "・",
	"（", "）", "【", "】", "《", "》", "〈", "〉", "〔", "〕", "［", "］",
	"｛", "｝", "〝", "〟", "〃", "：", "；", "，", "．", "＿", "／", "＼",
}

// Store owns the master glossary file. Writes are serialized through a
// sibling lock file so concurrent runs sharing one glossary cannot clobber
// each other's appends.
type Store struct {
	path   string
	gen    Generator
	logger *slog.Logger
	lock   *flock.Flock

	latinMaxPercent int
	proofChunkBytes int
	callTimeout     time.Duration
}

// NewStore builds a Store for the master glossary at path.
func NewStore(path string, gen Generator, cfg config.Glossary, logger *slog.Logger) *Store {
	return &Store{
		path:            path,
		gen:             gen,
		logger:          logging.NewComponentLogger(logger, "glossary"),
		lock:            flock.New(path + ".lock"),
		latinMaxPercent: cfg.LatinMaxPercent,
		proofChunkBytes: cfg.ProofChunkBytes,
		callTimeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Path returns the master glossary location.
func (s *Store) Path() string { return s.path }

// Entries loads the current master entries.
func (s *Store) Entries() ([]Entry, error) { return ReadEntries(s.path) }

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

// log derives a call-scoped logger carrying the run, phase, and chapter
// fields the orchestrator attached to the context.
func (s *Store) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}

// Build extracts terms from chapter text and appends the net-new ones to the
// master file. Entries are deduplicated by normalized original term, first
// seen wins. Returns the number of entries added.
func (s *Store) Build(ctx context.Context, chapterText string) (int, error) {
	logger := s.log(ctx)
	if err := EnsureFile(s.path); err != nil {
		return 0, err
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	response, err := s.gen.Generate(callCtx, extractionInstructions, chapterText)
	if err != nil {
		return 0, fmt.Errorf("extract glossary terms: %w", err)
	}
	response = strings.TrimSpace(response)
	if response == "" || strings.Contains(response, noEntitiesSentinel) {
		logger.Debug("no new glossary terms found")
		return 0, nil
	}

	candidates := parseExtraction(response)
	if len(candidates) == 0 {
		logger.Warn("extraction response contained no valid glossary lines")
		return 0, nil
	}

	if err := s.lock.Lock(); err != nil {
		return 0, fmt.Errorf("lock glossary: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	existing, err := ReadEntries(s.path)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, entry := range existing {
		seen[NormalizeTerm(entry.Original)] = struct{}{}
	}

	var added []Entry
	for _, candidate := range candidates {
		key := NormalizeTerm(candidate.Original)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		added = append(added, candidate)
	}
	if len(added) == 0 {
		logger.Debug("all extracted terms already known")
		return 0, nil
	}

	if err := WriteEntries(s.path, append(existing, added...)); err != nil {
		return 0, fmt.Errorf("append glossary entries: %w", err)
	}
	logger.Info("glossary updated",
		slog.Int("added", len(added)),
		slog.Int("total", len(existing)+len(added)))
	return len(added), nil
}

// parseExtraction pulls three-field entries out of a model response,
// sanitizing the term and translation fields.
func parseExtraction(response string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(response, "\n") {
		entry, ok := ParseLine(line)
		if !ok || entry.Gender == "" {
			continue
		}
		entry.Original = sanitizeField(entry.Original)
		entry.Translation = sanitizeField(entry.Translation)
		if entry.Original == "" || entry.Translation == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// Split derives the name and context sub-glossaries from the master file.
// Both are rewritten wholesale, so repeated calls converge on the same
// content. Name entries keep original => translation; context entries map
// translation => gender and omit two-field lines.
func (s *Store) Split() (namePath, contextPath string, err error) {
	entries, err := ReadEntries(s.path)
	if err != nil {
		return "", "", err
	}

	dir, namePath, contextPath := SplitPaths(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create sub-glossary directory: %w", err)
	}

	nameEntries := make([]Entry, 0, len(entries))
	var contextEntries []Entry
	for _, entry := range entries {
		nameEntries = append(nameEntries, Entry{Original: entry.Original, Translation: entry.Translation})
		if entry.Gender != "" {
			contextEntries = append(contextEntries, Entry{Original: entry.Translation, Translation: entry.Gender})
		}
	}

	if err := WriteEntries(namePath, nameEntries); err != nil {
		return "", "", err
	}
	if err := WriteEntries(contextPath, contextEntries); err != nil {
		return "", "", err
	}
	s.logger.Debug("glossary split",
		slog.Int("name_entries", len(nameEntries)),
		slog.Int("context_entries", len(contextEntries)))
	return namePath, contextPath, nil
}

// Clean drops entries whose original term is Latin-dominant or carries
// disqualifying punctuation. Returns counts of removed and kept entries.
func (s *Store) Clean() (removed, kept int, err error) {
	if err := s.lock.Lock(); err != nil {
		return 0, 0, fmt.Errorf("lock glossary: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	entries, err := ReadEntries(s.path)
	if err != nil {
		return 0, 0, err
	}

	keptEntries := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if latinShareExceeds(entry.Original, s.latinMaxPercent) {
			s.logger.Debug("dropped latin-dominant term", slog.String("term", entry.Original))
			removed++
			continue
		}
		if containsDenySymbol(entry.Original) {
			s.logger.Debug("dropped term with punctuation", slog.String("term", entry.Original))
			removed++
			continue
		}
		keptEntries = append(keptEntries, entry)
	}

	if err := WriteEntries(s.path, keptEntries); err != nil {
		return 0, 0, err
	}
	s.logger.Info("glossary cleaned",
		slog.Int("removed", removed),
		slog.Int("kept", len(keptEntries)))
	return removed, len(keptEntries), nil
}

// latinShareExceeds reports whether more than maxPercent of the term's
// letters are ASCII Latin. Such terms are English residue the extraction
// step should not have kept.
func latinShareExceeds(term string, maxPercent int) bool {
	letters, latin := 0, 0
	for _, r := range term {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 128 {
			lower := r | 0x20
			if lower >= 'a' && lower <= 'z' {
				latin++
			}
		}
	}
	if letters == 0 {
		return false
	}
	return latin*100 > maxPercent*letters
}

func containsDenySymbol(term string) bool {
	for _, symbol := range denySymbols {
		if strings.Contains(term, symbol) {
			return true
		}
	}
	return false
}

// Proof sends the glossary to the model in byte-bounded chunks for
// consistency rewriting. Earlier cleaned chunks ride along as context so
// spelling variants merge across chunk boundaries. Any chunk failure aborts
// the whole pass and leaves the file untouched; a .bak copy of the previous
// content is kept next to the master on success.
func (s *Store) Proof(ctx context.Context) error {
	logger := s.log(ctx)
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock glossary: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	entries, err := ReadEntries(s.path)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		logger.Debug("glossary empty, nothing to proofread")
		return nil
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.String())
	}
	chunks := chunkByBytes(lines, s.proofChunkBytes)

	var cleaned []Entry
	var previous []string
	for i, chunk := range chunks {
		prompt := buildProofPrompt(previous, i+1, len(chunks), chunk)

		callCtx, cancel := s.callContext(ctx)
		response, err := s.gen.Generate(callCtx, proofInstructions, prompt)
		cancel()
		if err != nil {
			return fmt.Errorf("proofread glossary part %d/%d: %w", i+1, len(chunks), err)
		}

		response = strings.TrimSpace(response)
		previous = append(previous, response)
		for _, line := range strings.Split(response, "\n") {
			if entry, ok := ParseLine(line); ok {
				cleaned = append(cleaned, entry)
			}
		}
		logger.Debug("glossary chunk proofread",
			slog.Int("part", i+1),
			slog.Int("parts", len(chunks)))
	}

	if len(cleaned) == 0 {
		return errors.New("glossary proofread produced no parseable entries, keeping original")
	}

	if err := fileutil.CopyFile(s.path, s.path+".bak"); err != nil {
		return fmt.Errorf("back up glossary before rewrite: %w", err)
	}
	if err := WriteEntries(s.path, cleaned); err != nil {
		return err
	}
	logger.Info("glossary proofread",
		slog.Int("parts", len(chunks)),
		slog.Int("before", len(entries)),
		slog.Int("after", len(cleaned)))
	return nil
}

func buildProofPrompt(previous []string, part, parts int, chunk []string) string {
	var b strings.Builder
	if len(previous) > 0 {
		b.WriteString("PREVIOUS CLEANED ENTRIES:\n")
		b.WriteString(strings.Join(previous, "\n"))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Glossary Part %d of %d (to proofread):\n", part, parts)
	b.WriteString(strings.Join(chunk, "\n"))
	return b.String()
}

// chunkByBytes groups lines into chunks of at most maxBytes (measured with
// the joining newlines) without ever splitting a line.
func chunkByBytes(lines []string, maxBytes int) [][]string {
	if maxBytes <= 0 {
		return [][]string{lines}
	}
	var chunks [][]string
	var current []string
	size := 0
	for _, line := range lines {
		lineSize := len(line) + 1
		if size+lineSize > maxBytes && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, line)
		size += lineSize
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
