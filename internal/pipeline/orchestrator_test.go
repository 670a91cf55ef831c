package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"loom/internal/config"
	"loom/internal/glossary"
	"loom/internal/journal"
	"loom/internal/logging"
	"loom/internal/pipeline"
	"loom/internal/proofing"
	"loom/internal/testsupport"
)

const (
	copyEditStart = "=== CURRENT CHAPTER TO PROOFREAD START ==="
	copyEditEnd   = "=== CURRENT CHAPTER TO PROOFREAD END ==="
)

// scriptedModel serves every Generate call in a run: glossary extraction,
// glossary proofreading, and the per-file proofing passes. The proofing
// passes echo their input so files stay untouched unless a test overrides.
type scriptedModel struct {
	mu         sync.Mutex
	extraction string
	calls      map[string]int
}

func newScriptedModel(extraction string) *scriptedModel {
	return &scriptedModel{extraction: extraction, calls: make(map[string]int)}
}

func (m *scriptedModel) record(label string) {
	m.mu.Lock()
	m.calls[label]++
	m.mu.Unlock()
}

func (m *scriptedModel) count(label string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[label]
}

func (m *scriptedModel) Generate(_ context.Context, instructions []string, prompt string) (string, error) {
	switch {
	case len(instructions) > 0 && strings.HasPrefix(instructions[0], "Extract a glossary"):
		m.record("extract")
		return m.extraction, nil
	case strings.Contains(prompt, copyEditStart):
		m.record("copyedit")
		start := strings.Index(prompt, copyEditStart)
		end := strings.Index(prompt, copyEditEnd)
		return strings.TrimSpace(prompt[start+len(copyEditStart) : end]), nil
	case strings.Contains(prompt, "(to proofread):"):
		m.record("glossary-proof")
		idx := strings.Index(prompt, "(to proofread):\n")
		return prompt[idx+len("(to proofread):\n"):], nil
	default:
		m.record("gender")
		return prompt, nil
	}
}

type stubTranslator struct {
	mu     sync.Mutex
	calls  []string
	failOn string
	onCall func()
}

func (s *stubTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	failOn := s.failOn
	onCall := s.onCall
	s.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if failOn != "" && strings.Contains(text, failOn) {
		return "", errors.New("translation attempts exhausted")
	}
	return "[EN] " + text, nil
}

func (s *stubTranslator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestOrchestrator(t *testing.T, tr pipeline.Translator, model *scriptedModel) (*pipeline.Orchestrator, *config.Config, *journal.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	logger := logging.NewNop()
	gloss := glossary.NewStore(cfg.Paths.GlossaryPath, model, cfg.Glossary, logger)
	engine := proofing.NewEngine(model, cfg, logger)
	orch := pipeline.NewWithNotifier(cfg, tr, gloss, engine, store, logger, nil)
	return orch, cfg, store
}

func TestRunEndToEnd(t *testing.T) {
	model := newScriptedModel("Haruto => Haruto => he/him")
	tr := &stubTranslator{}
	orch, cfg, store := newTestOrchestrator(t, tr, model)

	sources := map[string]string{
		"chapter_1.txt": "Haruto walked home.",
		"chapter_2.txt": "The rain kept falling.",
		"chapter_3.txt": "Stars blinked over the town.",
	}
	for name, text := range sources {
		testsupport.WriteChapter(t, cfg.Paths.InputDir, name, text)
	}

	if err := orch.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for name, text := range sources {
		got := testsupport.ReadFile(t, filepath.Join(cfg.Paths.OutputDir, name))
		if got != "[EN] "+text {
			t.Fatalf("output %s = %q", name, got)
		}
	}

	entries, err := glossary.ReadEntries(cfg.Paths.GlossaryPath)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Original != "Haruto" || entries[0].Gender != "he/him" {
		t.Fatalf("glossary entries = %v", entries)
	}

	ctx := context.Background()
	rows, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, row := range rows {
		if row.Status != journal.StatusProofed {
			t.Fatalf("chapter %s status = %s, want proofed", row.Name, row.Status)
		}
	}
	remaining, err := store.Untranslated(ctx)
	if err != nil {
		t.Fatalf("Untranslated: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty untranslated audit, got %d rows", len(remaining))
	}

	if got := tr.callCount(); got != 3 {
		t.Fatalf("translate calls = %d, want 3", got)
	}
	if got := model.count("extract"); got != 3 {
		t.Fatalf("extraction calls = %d, want 3", got)
	}
	if got := model.count("gender"); got != 3 {
		t.Fatalf("gender calls = %d, want 3", got)
	}
	if got := model.count("copyedit"); got != 3 {
		t.Fatalf("copyedit calls = %d, want 3", got)
	}

	status := orch.Status()
	if status.Completed != 3 || status.Skipped != 0 {
		t.Fatalf("status = %+v", status)
	}
	if status.Phase != pipeline.PhaseDone {
		t.Fatalf("phase = %s, want done", status.Phase)
	}
}

func TestRunRecordsFailedChapter(t *testing.T) {
	model := newScriptedModel("No named entities found")
	tr := &stubTranslator{failOn: "rain"}
	orch, cfg, store := newTestOrchestrator(t, tr, model)

	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_1.txt", "Haruto walked home.")
	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_2.txt", "The rain kept falling.")
	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_3.txt", "Stars blinked over the town.")

	if err := orch.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("Run should not fail on a skipped chapter: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "chapter_2.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed chapter should have no output, stat err = %v", err)
	}

	ctx := context.Background()
	row, err := store.Get(ctx, "chapter_2.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != journal.StatusFailed || row.Attempts != 1 {
		t.Fatalf("failed row = %+v", row)
	}

	remaining, err := store.Untranslated(ctx)
	if err != nil {
		t.Fatalf("Untranslated: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Name != "chapter_2.txt" {
		t.Fatalf("untranslated = %v", remaining)
	}

	status := orch.Status()
	if status.Completed != 2 || status.Skipped != 1 {
		t.Fatalf("status = %+v", status)
	}
}

func TestRunCancelStopsAtChapterBoundary(t *testing.T) {
	model := newScriptedModel("No named entities found")
	tr := &stubTranslator{}
	orch, cfg, store := newTestOrchestrator(t, tr, model)
	tr.onCall = orch.Cancel

	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_1.txt", "First chapter.")
	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_2.txt", "Second chapter.")
	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_3.txt", "Third chapter.")

	err := orch.Run(context.Background(), pipeline.Options{Selection: pipeline.SelectTranslate})
	if !errors.Is(err, pipeline.ErrCanceled) {
		t.Fatalf("Run = %v, want ErrCanceled", err)
	}

	if got := tr.callCount(); got != 1 {
		t.Fatalf("translate calls = %d, want 1 before cancel", got)
	}
	got := testsupport.ReadFile(t, filepath.Join(cfg.Paths.OutputDir, "chapter_1.txt"))
	if got != "[EN] First chapter." {
		t.Fatalf("completed chapter rewritten: %q", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "chapter_2.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("canceled run should not start chapter 2, stat err = %v", err)
	}

	row, err := store.Get(context.Background(), "chapter_1.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != journal.StatusTranslated {
		t.Fatalf("chapter_1 status = %s, want translated (proofing skipped)", row.Status)
	}

	status := orch.Status()
	if !status.Canceled {
		t.Fatal("status should report canceled")
	}
}

func TestRunProofOnlyUsesExistingOutput(t *testing.T) {
	model := newScriptedModel("No named entities found")
	tr := &stubTranslator{}
	orch, cfg, _ := newTestOrchestrator(t, tr, model)

	testsupport.WriteChapter(t, cfg.Paths.OutputDir, "chapter_1.txt", "He said hello.")

	if err := orch.Run(context.Background(), pipeline.Options{Selection: pipeline.SelectProof}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := tr.callCount(); got != 0 {
		t.Fatalf("proof-only run called translate %d times", got)
	}
	if got := model.count("gender"); got != 1 {
		t.Fatalf("gender calls = %d, want 1", got)
	}
	if got := model.count("copyedit"); got != 1 {
		t.Fatalf("copyedit calls = %d, want 1", got)
	}
	got := testsupport.ReadFile(t, filepath.Join(cfg.Paths.OutputDir, "chapter_1.txt"))
	if got != "He said hello." {
		t.Fatalf("echo proofing should keep file unchanged, got %q", got)
	}
}

func TestRunResumeSkipsCompletedChapters(t *testing.T) {
	model := newScriptedModel("No named entities found")
	first := &stubTranslator{}
	orch, cfg, store := newTestOrchestrator(t, first, model)

	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_1.txt", "First chapter.")
	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_2.txt", "Second chapter.")
	if err := orch.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := first.callCount(); got != 2 {
		t.Fatalf("first run translate calls = %d, want 2", got)
	}

	// A new chapter arrives; the rerun must only touch it.
	testsupport.WriteChapter(t, cfg.Paths.InputDir, "chapter_3.txt", "Third chapter.")
	second := &stubTranslator{}
	gloss := glossary.NewStore(cfg.Paths.GlossaryPath, model, cfg.Glossary, logging.NewNop())
	engine := proofing.NewEngine(model, cfg, logging.NewNop())
	rerun := pipeline.NewWithNotifier(cfg, second, gloss, engine, store, logging.NewNop(), nil)

	if err := rerun.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := second.callCount(); got != 1 {
		t.Fatalf("second run translate calls = %d, want 1", got)
	}
	if !strings.Contains(second.calls[0], "Third chapter") {
		t.Fatalf("second run translated %q", second.calls[0])
	}

	got := testsupport.ReadFile(t, filepath.Join(cfg.Paths.OutputDir, "chapter_1.txt"))
	if got != "[EN] First chapter." {
		t.Fatalf("resumed run rewrote an existing output: %q", got)
	}

	rows, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for _, row := range rows {
		if row.Status != journal.StatusProofed {
			t.Fatalf("chapter %s status = %s, want proofed", row.Name, row.Status)
		}
	}
}

func TestResolveSelection(t *testing.T) {
	tests := []struct {
		name         string
		phase        string
		skipGlossary bool
		proofOnly    bool
		want         pipeline.Selection
		wantErr      bool
	}{
		{name: "default", phase: "", want: pipeline.SelectAll},
		{name: "all", phase: "all", want: pipeline.SelectAll},
		{name: "skip glossary", phase: "all", skipGlossary: true, want: pipeline.SelectTranslate},
		{name: "proof only", phase: "", proofOnly: true, want: pipeline.SelectProof},
		{name: "proof only wins over skip", phase: "", skipGlossary: true, proofOnly: true, want: pipeline.SelectProof},
		{name: "explicit wins over flags", phase: "translate", proofOnly: true, want: pipeline.SelectTranslate},
		{name: "single pass", phase: "proof-gender", want: pipeline.SelectProofGender},
		{name: "unknown", phase: "bogus", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pipeline.ResolveSelection(tc.phase, tc.skipGlossary, tc.proofOnly)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveSelection: %v", err)
			}
			if got != tc.want {
				t.Fatalf("selection = %s, want %s", got, tc.want)
			}
		})
	}
}
