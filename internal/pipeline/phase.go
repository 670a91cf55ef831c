package pipeline

import (
	"fmt"

	"loom/internal/proofing"
)

// Phase names the pipeline stage a run is currently executing. Reported
// through Status for the control surface.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseGlossary        Phase = "glossary"
	PhaseTranslate       Phase = "translate"
	PhaseProofNonEnglish Phase = "proof-nonenglish"
	PhaseProofGender     Phase = "proof-gender"
	PhaseProofCopyEdit   Phase = "proof-ai"
	PhaseDone            Phase = "done"
)

// Selection names the portion of the pipeline a run covers.
type Selection string

const (
	SelectAll             Selection = "all"
	SelectGlossary        Selection = "glossary"
	SelectTranslate       Selection = "translate"
	SelectProof           Selection = "proof"
	SelectProofNonEnglish Selection = "proof-nonenglish"
	SelectProofGender     Selection = "proof-gender"
	SelectProofCopyEdit   Selection = "proof-ai"
)

// ResolveSelection maps the CLI surface onto a Selection. An explicit
// non-default --phase wins; the legacy boolean flags only narrow the default.
func ResolveSelection(phase string, skipGlossary, proofOnly bool) (Selection, error) {
	switch Selection(phase) {
	case SelectGlossary, SelectTranslate, SelectProof, SelectProofNonEnglish, SelectProofGender, SelectProofCopyEdit:
		return Selection(phase), nil
	case SelectAll, Selection(""):
	default:
		return "", fmt.Errorf("unknown phase %q", phase)
	}
	if proofOnly {
		return SelectProof, nil
	}
	if skipGlossary {
		return SelectTranslate, nil
	}
	return SelectAll, nil
}

// includesGlossary reports whether the run builds the glossary.
func (s Selection) includesGlossary() bool {
	return s == SelectAll || s == SelectGlossary
}

// includesTranslate reports whether the run translates chapters. Translate
// implies the proofing passes afterward, matching the skip-glossary resume
// flow.
func (s Selection) includesTranslate() bool {
	return s == SelectAll || s == SelectTranslate
}

// proofPasses returns the proofing passes the run executes, in order.
func (s Selection) proofPasses() []proofing.Pass {
	switch s {
	case SelectAll, SelectTranslate, SelectProof:
		return []proofing.Pass{proofing.PassNonEnglish, proofing.PassGender, proofing.PassCopyEdit}
	case SelectProofNonEnglish:
		return []proofing.Pass{proofing.PassNonEnglish}
	case SelectProofGender:
		return []proofing.Pass{proofing.PassGender}
	case SelectProofCopyEdit:
		return []proofing.Pass{proofing.PassCopyEdit}
	default:
		return nil
	}
}

// phaseForPass maps a proofing pass to its reported phase.
func phaseForPass(pass proofing.Pass) Phase {
	switch pass {
	case proofing.PassGender:
		return PhaseProofGender
	case proofing.PassCopyEdit:
		return PhaseProofCopyEdit
	default:
		return PhaseProofNonEnglish
	}
}
