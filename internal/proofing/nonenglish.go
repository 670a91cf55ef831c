package proofing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"loom/internal/fileutil"
	"loom/internal/glossary"
	"loom/internal/logging"
)

// batchDelimiter separates retranslation units inside the single batched
// call. The response must echo it between exactly as many segments as
// were sent.
const batchDelimiter = "====TRANS_UNIT_SEP===="

// batchAttempts bounds how often a structurally invalid batch response
// (wrong segment count) is retried before the originals are kept.
const batchAttempts = 4

var retranslateInstructions = []string{
	"You are an expert English translator tasked with fixing lines containing untranslated non-English words or characters.",
	"You will receive text lines separated by '====TRANS_UNIT_SEP===='.",
	"Your PRIMARY GOAL is to translate ONLY the non-English words within each line into fluent English.",
	"CRITICAL RULES:",
	"1. Translate ALL non-English words to proper English meanings in context.",
	"2. DO NOT transliterate. No romanizations allowed.",
	"3. DO NOT explain translations. DO NOT add parentheses or footnotes.",
	"4. DO NOT modify any English, punctuation, names, or formatting.",
	"5. If a line is fully English, return it unchanged.",
	"",
	"Return the revised lines using the exact same delimiter format and order.",
	"Ensure output has the same number of lines as input, one delimiter between each line.",
}

// ignoreRunes are skipped when deciding whether a line still carries
// untranslated text. Full-width punctuation and a few stray Korean jamo
// survive legitimate translations, so they never flag a line on their own.
var ignoreRunes = func() map[rune]struct{} {
	const chars = "「」『』【】（）〈〉《》・ー〜～！？、。．，：；" +
		"“”‘’…—–‐≪≫〔〕［］｛｝｢｣ ㄴㅡㅋㅣ"
	set := make(map[rune]struct{})
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}()

// lineNeedsRetranslation reports whether a line still contains non-Latin
// letters after translation. Lines with at most one letter are ignored;
// a lone stray rune is not worth a model round trip.
func lineNeedsRetranslation(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	letters := 0
	nonLatin := false
	for _, r := range trimmed {
		if unicode.IsLetter(r) {
			letters++
		}
		if _, skip := ignoreRunes[r]; skip {
			continue
		}
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			nonLatin = true
		}
	}
	return nonLatin && letters > 1
}

// flaggedLine ties one detected line back to its file and position.
type flaggedLine struct {
	file string
	idx  int
	text string
}

func (f flaggedLine) auditEntry() string {
	return fmt.Sprintf("%s (line %d): %s", f.file, f.idx+1, strings.TrimSpace(f.text))
}

// NonEnglish finds every line across the output directory that still
// carries non-Latin letters, retranslates all of them in one batched
// call, and splices the fixes back in place. The flagged originals are
// recorded in the audit log either way; if the batch cannot be completed
// the files are left untouched and the failure is appended to the log.
func (e *Engine) NonEnglish(ctx context.Context) error {
	logger := e.log(ctx)
	units, err := e.scanOutputs()
	if err != nil {
		return err
	}

	fileLines := make(map[string][]string, len(units))
	var flagged []flaggedLine
	for _, unit := range units {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}
		text, err := readFileText(unit.Path)
		if err != nil {
			logger.Warn("skipping unreadable chapter", slog.String("file", unit.Name), slog.String("error", err.Error()))
			continue
		}
		lines := strings.Split(text, "\n")
		fileLines[unit.Name] = lines
		for idx, line := range lines {
			if lineNeedsRetranslation(line) {
				flagged = append(flagged, flaggedLine{file: unit.Name, idx: idx, text: line})
			}
		}
	}

	if len(flagged) == 0 {
		logger.Info("no non-english lines found", slog.Int("files", len(units)))
		return nil
	}
	logger.Info("non-english lines flagged",
		slog.Int("lines", len(flagged)),
		slog.Int("files", len(fileLines)))

	fixed, err := e.retranslateBatch(ctx, flagged)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("batch retranslation failed, keeping originals",
			slog.String("error", err.Error()),
			logging.Alert("retranslation_failed"))
		return e.writeAuditLog(flagged, err)
	}

	changedFiles := make(map[string]struct{})
	for i, fl := range flagged {
		replacement := fixed[i]
		if replacement == strings.TrimSpace(fl.text) {
			continue
		}
		fileLines[fl.file][fl.idx] = replacement
		changedFiles[fl.file] = struct{}{}
		logger.Info("line retranslated",
			slog.String("file", fl.file),
			slog.Int("line", fl.idx+1))
	}

	for _, unit := range units {
		if _, changed := changedFiles[unit.Name]; !changed {
			continue
		}
		content := strings.Join(fileLines[unit.Name], "\n")
		if err := fileutil.WriteAtomic(unit.Path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", unit.Name, err)
		}
	}

	if err := e.writeAuditLog(flagged, nil); err != nil {
		return err
	}
	logger.Info("non-english pass complete",
		slog.Int("fixed", len(flagged)),
		slog.Int("files_updated", len(changedFiles)),
		slog.String("audit_log", e.AuditLogPath()))
	return nil
}

// retranslateBatch sends all flagged lines in one delimited prompt. The
// glossary master rides along so names stay consistent with earlier
// phases. A response whose segment count differs from the input is
// rejected wholesale and retried.
func (e *Engine) retranslateBatch(ctx context.Context, flagged []flaggedLine) ([]string, error) {
	instructions := append([]string{}, retranslateInstructions...)
	instructions = append(instructions, "", "Glossary (for name consistency):", orNone(e.glossaryBlock()))

	stripped := make([]string, len(flagged))
	for i, fl := range flagged {
		stripped[i] = strings.TrimSpace(fl.text)
	}
	prompt := batchDelimiter + "\n" + strings.Join(stripped, "\n"+batchDelimiter+"\n")

	var lastErr error
	for attempt := 1; attempt <= batchAttempts; attempt++ {
		callCtx, cancel := e.callContext(ctx, e.batchTimeout)
		response, err := e.gen.Generate(callCtx, instructions, prompt)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("retranslate batch: %w", err)
		}

		segments, err := splitBatchResponse(response, len(flagged))
		if err != nil {
			lastErr = err
			e.log(ctx).Warn("batch response rejected",
				slog.Int(logging.FieldAttempt, attempt),
				slog.Int("attempts", batchAttempts),
				slog.String("error", err.Error()))
			continue
		}
		return segments, nil
	}
	return nil, lastErr
}

// splitBatchResponse cuts a delimited response back into segments and
// enforces the count contract.
func splitBatchResponse(response string, want int) ([]string, error) {
	raw := strings.TrimSpace(response)
	raw = strings.TrimPrefix(raw, batchDelimiter)
	raw = strings.TrimSuffix(raw, batchDelimiter)

	parts := strings.Split(raw, batchDelimiter)
	segments := make([]string, len(parts))
	for i, part := range parts {
		segments[i] = strings.TrimSpace(part)
	}
	if len(segments) != want {
		return nil, fmt.Errorf("segment count mismatch: expected %d, got %d", want, len(segments))
	}
	return segments, nil
}

// glossaryBlock renders the master glossary for prompt inclusion, or an
// empty string when it has no entries.
func (e *Engine) glossaryBlock() string {
	entries, err := glossary.ReadEntries(e.glossaryPath)
	if err != nil {
		e.logger.Warn("glossary unavailable for retranslation", slog.String("error", err.Error()))
		return ""
	}
	return glossary.FormatEntries(entries)
}

// writeAuditLog records every flagged line, and the batch failure when
// there was one, in the log directory. The log is rewritten per pass.
func (e *Engine) writeAuditLog(flagged []flaggedLine, batchErr error) error {
	entries := make([]string, 0, len(flagged)+1)
	for _, fl := range flagged {
		entries = append(entries, fl.auditEntry())
	}
	if batchErr != nil {
		entries = append(entries, fmt.Sprintf("retranslation failed, lines kept unchanged: %v", batchErr))
	}
	content := strings.Join(entries, "\n") + "\n"
	if err := fileutil.WriteAtomic(e.AuditLogPath(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
