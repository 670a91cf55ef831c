package proofing

import (
	"context"
	"log/slog"
	"strings"

	"loom/internal/glossary"
)

// noChangeReplies are trivial acknowledgements some models emit instead
// of echoing unmodified text. Any of them means "keep the original".
var noChangeReplies = map[string]struct{}{
	"no changes needed":  {},
	"no edits necessary": {},
	"unchanged":          {},
	"no change needed":   {},
}

// genderInstructions builds the system prompt for pronoun correction.
// The context glossary drives the corrections; the name glossary is
// reference-only so the model does not touch proper nouns.
func genderInstructions(contextText, nameText string) []string {
	return []string{
		"You are an expert English proofreader, specializing in pronoun correction.",
		"Your ONLY task is to correct gender pronouns (he, she, his, hers, him, her, they, them, their, theirs, himself, herself, themselves) within the text to accurately reflect the character's gender as defined in the provided glossary.",
		"",
		"Prioritize accuracy: Use the glossary and *context* to ensure pronoun changes are grammatically correct and logically consistent within the sentence and surrounding text.",
		"If a pronoun is ambiguous and not clearly linked to a character in the glossary, leave it unchanged. Do *NOT* guess or assume.",
		"",
		"You MUST NOT change any character names, punctuation, sentence structure, word choice, formatting, or any other aspect of the text besides the gender pronouns that conflict with the provided glossary.",
		"Do NOT invent, hallucinate, rephrase, or translate from scratch. Only make the smallest changes necessary to correct pronouns.",
		"",
		"HTML tags such as <img> MUST be preserved exactly. Do not modify or remove them.",
		"If no gender pronouns require correction based on the glossary, return the text exactly as-is.",
		"If the context glossary below is empty or contains '(none)', return the text exactly as-is.",
		"",
		"===========================CONTEXT GLOSSARY=========================",
		"Glossary (character name => gender pronoun set): Use these to replace existing pronouns in the main text. Example sets: 'he/him/his/himself', 'she/her/hers/herself', 'they/them/their/themselves'.",
		contextText,
		"===========================NAME GLOSSARY=============================",
		"Glossary of Proper Names (read-only, for reference only; DO NOT USE TO REPLACE PRONOUNS): This glossary contains a list of character names, locations, items and other proper nouns that may appear in the text.",
		nameText,
		"",
		"===========================GLOSSARY END================================",
		"Begin proofreading below:",
	}
}

// Gender corrects pronouns in every translated chapter against the
// context glossary. Each file gets only the glossary entries that
// actually appear in it. The original text is kept whenever the model's
// answer is empty, a "no changes" acknowledgement, or suspiciously short.
func (e *Engine) Gender(ctx context.Context) error {
	logger := e.log(ctx)
	units, err := e.scanOutputs()
	if err != nil {
		return err
	}
	nameEntries, contextDict := e.loadGlossaries()

	var fixed, kept int
	for _, unit := range units {
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

		contextText := orNone(glossary.FormatContext(glossary.MatchContext(contextDict, text)))
		nameText := orNone(glossary.FormatEntries(glossary.MatchForChapter(nameEntries, text)))
		instructions := genderInstructions(contextText, nameText)

		callCtx, cancel := e.callContext(ctx, e.batchTimeout)
		response, err := e.gen.Generate(callCtx, instructions, strings.TrimSpace(text))
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("gender pass failed, keeping original",
				slog.String("file", unit.Name),
				slog.String("error", err.Error()))
			kept++
			continue
		}

		proofed, ok := e.acceptGenderResult(unit.Name, text, response)
		if !ok {
			kept++
			continue
		}
		changed, err := e.writeIfChanged(unit.Path, strings.TrimSpace(text), proofed)
		if err != nil {
			return err
		}
		if changed {
			fixed++
			logger.Info("pronouns corrected", slog.String("file", unit.Name))
		} else {
			kept++
		}
	}

	logger.Info("gender pass complete", slog.Int("updated", fixed), slog.Int("unchanged", kept))
	return nil
}

// acceptGenderResult applies the guard rails that keep a bad model
// answer from destroying a chapter: non-empty, not boilerplate, and not
// radically shorter than the input.
func (e *Engine) acceptGenderResult(name, original, response string) (string, bool) {
	result := strings.TrimSpace(response)
	if result == "" {
		e.logger.Warn("empty gender response, keeping original", slog.String("file", name))
		return "", false
	}
	if _, trivial := noChangeReplies[strings.ToLower(result)]; trivial {
		e.logger.Debug("no pronoun changes needed", slog.String("file", name))
		return "", false
	}

	origLines := len(strings.Split(strings.TrimSpace(original), "\n"))
	resultLines := len(strings.Split(result, "\n"))
	if e.resultTooShort(origLines, resultLines) {
		e.logger.Warn("gender response too short, keeping original",
			slog.String("file", name),
			slog.Int("original_lines", origLines),
			slog.Int("response_lines", resultLines))
		return "", false
	}
	return result, true
}

// resultTooShort flags responses below the floor or below the configured
// percentage of the input's line count.
func (e *Engine) resultTooShort(origLines, resultLines int) bool {
	if resultLines < e.minLineFloor {
		return true
	}
	return resultLines*100 < origLines*e.minLineRatioPercent
}
