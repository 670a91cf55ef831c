package proofing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"loom/internal/chapter"
	"loom/internal/glossary"
)

const (
	chapterStartMarker = "=== CURRENT CHAPTER TO PROOFREAD START ==="
	chapterEndMarker   = "=== CURRENT CHAPTER TO PROOFREAD END ==="
	explanationMarker  = "Explanation:"
)

var copyEditInstructions = []string{
	"SYSTEM INSTRUCTIONS — PROOFREADING",
	"",
	"ROLE: You are a professional English proofreader and editor specializing in translated Asian fiction (Japanese, Korean, and Chinese light novels and web novels).",
	"OBJECTIVE: Make the English translation read fluently and naturally, as if originally written in English by a native speaker, WITHOUT altering the original meaning, plot, or character intent.",
	"",
	"REFERENCE SECTIONS: The input may contain GLOSSARY and CONTEXT MATERIALS. These are for reference only. DO NOT edit or change anything within them.",
	"",
	"SCOPE: The text to be proofread is enclosed between the exact markers:",
	chapterStartMarker,
	chapterEndMarker,
	"Edit only the text between these markers and return only that text (omit the markers themselves).",
	"",
	"SPECIFIC GUIDELINES:",
	"1. NATURAL ENGLISH: Fix grammar, phrasing, and awkward sentences while preserving meaning.",
	"2. SLANG & IDIOMS: Replace literal translations with natural English equivalents that keep the author's intent.",
	"3. CHARACTER VOICE: Retain each character's distinct tone and vocabulary.",
	"4. HONORIFICS: Preserve all honorifics (e.g., -san, -kun, -sama).",
	"5. FORMATTING: Do not add ALL CAPS, bold, or extra punctuation unless clearly required by the original.",
	"6. HTML TAGS: Do not add or remove any <i>, <b>, or similar tags.",
	"7. IMAGE TAGS: Preserve <img ...> tags exactly as given.",
	"8. CONTEXT CONSISTENCY: Consult the glossary and context materials to maintain terminology consistency.",
	"9. NSFW: NSFW content is allowed; characters are fictional and of legal age.",
	"10. NO CHANGES NEEDED: Leave text unchanged if it already reads fluently.",
	"11. EXPLANATION: After significant edits, append 'Explanation:' followed by a bulleted list of key changes. Do not repeat the explanation more than once.",
	"12. CAPITALIZATION: Capitalize proper nouns, names, and sentence beginnings only; avoid unnecessary ALL-CAPS.",
	"13. SENTENCE STRUCTURE: Avoid merging or splitting sentences unless essential for clarity; keep original pacing and paragraph breaks.",
	"14. REPETITION: Preserve intentional repetition (e.g., 'That, that was...') unless it sounds unnatural in English.",
	"---",
	"Context materials (Glossaries, Previous/Next Chapters) follow:",
}

// CopyEdit runs the fluency pass over each translated chapter. The
// prompt carries the glossary entries matched to the chapter plus the
// previous chapter's current text, so phrasing and names stay continuous
// across files. A response whose line count drifts more than the
// configured delta from the input is discarded.
func (e *Engine) CopyEdit(ctx context.Context) error {
	logger := e.log(ctx)
	units, err := e.scanOutputs()
	if err != nil {
		return err
	}
	nameEntries, contextDict := e.loadGlossaries()

	var edited, kept int
	for i, unit := range units {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}
		text, err := readFileText(unit.Path)
		if err != nil {
			logger.Warn("skipping unreadable chapter", slog.String("file", unit.Name), slog.String("error", err.Error()))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		prompt := e.buildCopyEditPrompt(units, i, text, nameEntries, contextDict)

		callCtx, cancel := e.callContext(ctx, e.copyEditTimeout)
		response, err := e.gen.Generate(callCtx, copyEditInstructions, prompt)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("copy-edit failed, keeping original",
				slog.String("file", unit.Name),
				slog.String("error", err.Error()))
			kept++
			continue
		}

		proofed, ok := e.acceptCopyEditResult(unit.Name, text, response)
		if !ok {
			kept++
			continue
		}
		changed, err := e.writeIfChanged(unit.Path, strings.TrimSpace(text), proofed)
		if err != nil {
			return err
		}
		if changed {
			edited++
			logger.Info("chapter copy-edited", slog.String("file", unit.Name))
		} else {
			kept++
		}
	}

	logger.Info("copy-edit pass complete", slog.Int("updated", edited), slog.Int("unchanged", kept))
	return nil
}

// buildCopyEditPrompt frames the chapter between the scope markers and
// prepends the reference materials the instructions point at.
func (e *Engine) buildCopyEditPrompt(units []*chapter.Unit, i int, text string, nameEntries []glossary.Entry, contextDict map[string]string) string {
	var sections []string
	if matched := glossary.MatchForChapter(nameEntries, text); len(matched) > 0 {
		sections = append(sections, "Glossary of Proper Names:\n"+glossary.FormatEntries(matched))
	}
	if matched := glossary.MatchContext(contextDict, text); len(matched) > 0 {
		sections = append(sections, "Glossary of Gender Pronouns:\n"+glossary.FormatContext(matched))
	}
	if prev := chapter.Previous(units, i); prev != nil {
		if prevText, err := readFileText(prev.Path); err == nil && strings.TrimSpace(prevText) != "" {
			sections = append(sections, "Previous Chapter Context:\n"+strings.TrimSpace(prevText))
		}
	}

	var b strings.Builder
	b.WriteString("--- GLOSSARY AND CONTEXT MATERIALS (for reference only) ---\n\n")
	b.WriteString(strings.Join(sections, "\n\n"))
	b.WriteString("\n\n--- END OF CONTEXT MATERIALS ---\n\n")
	b.WriteString(chapterStartMarker + "\n")
	b.WriteString(text)
	b.WriteString("\n" + chapterEndMarker)
	return b.String()
}

// acceptCopyEditResult strips the explanation block and any echoed scope
// markers, then rejects responses whose length drifted too far from the
// original to be a faithful edit.
func (e *Engine) acceptCopyEditResult(name, original, response string) (string, bool) {
	proofed := response
	if idx := strings.Index(proofed, explanationMarker); idx >= 0 {
		explanation := strings.TrimSpace(proofed[idx+len(explanationMarker):])
		proofed = proofed[:idx]
		if explanation != "" {
			e.logger.Info("copy-edit changes",
				slog.String("file", name),
				slog.String("explanation", snippetOf(explanation)))
		}
	}
	proofed = strings.ReplaceAll(proofed, chapterStartMarker, "")
	proofed = strings.ReplaceAll(proofed, chapterEndMarker, "")
	proofed = strings.TrimSpace(proofed)

	if proofed == "" {
		e.logger.Warn("empty copy-edit response, keeping original", slog.String("file", name))
		return "", false
	}

	origLines := len(strings.Split(strings.TrimSpace(original), "\n"))
	proofedLines := len(strings.Split(proofed, "\n"))
	delta := proofedLines - origLines
	if delta < 0 {
		delta = -delta
	}
	if e.maxLineDelta > 0 && delta > e.maxLineDelta {
		e.logger.Warn("copy-edit line count drifted, keeping original",
			slog.String("file", name),
			slog.Int("original_lines", origLines),
			slog.Int("response_lines", proofedLines))
		return "", false
	}
	return proofed, true
}

// snippetOf bounds logged explanations to a single readable line.
func snippetOf(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= 200 {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:200]))
}
