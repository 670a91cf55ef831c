package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"loom/internal/journal"
	"loom/internal/testsupport"
)

func seedJournalStatuses(t *testing.T, env *cliTestEnv) {
	t.Helper()
	ctx := context.Background()
	testsupport.SeedChapters(t, env.store, "run-1", "chapter_1.txt", "chapter_2.txt", "chapter_3.txt")
	if err := env.store.MarkPhase(ctx, "chapter_1.txt", journal.StatusTranslated); err != nil {
		t.Fatalf("mark translated: %v", err)
	}
	if err := env.store.MarkFailed(ctx, "chapter_2.txt", "model returned empty response"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
}

func TestStatusRendersRunAndJournalSections(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournalStatuses(t, env)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	requireContains(t, out, "== Run ==")
	requireContains(t, out, "[OK] Idle")
	requireContains(t, out, "== Journal ==")
	requireContains(t, out, "Translated")
	requireContains(t, out, "Failed")
	requireContains(t, out, "Total")
}

func TestStatusReportsMissingRun(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "absent.sock")

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status without run: %v", err)
	}
	requireContains(t, out, "no run in progress")
	requireContains(t, out, "Journal is empty")
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournalStatuses(t, env)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}

	var doc struct {
		Run *struct {
			Phase  string `json:"phase"`
			Paused bool   `json:"paused"`
		} `json:"run"`
		Journal struct {
			Total      int `json:"total"`
			Pending    int `json:"pending"`
			Translated int `json:"translated"`
			Failed     int `json:"failed"`
		} `json:"journal"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("unmarshal status output: %v\n%s", err, out)
	}
	if doc.Run == nil || doc.Run.Phase != "idle" {
		t.Fatalf("unexpected run block: %+v", doc.Run)
	}
	if doc.Journal.Total != 3 || doc.Journal.Pending != 1 || doc.Journal.Translated != 1 || doc.Journal.Failed != 1 {
		t.Fatalf("unexpected journal counts: %+v", doc.Journal)
	}
}
