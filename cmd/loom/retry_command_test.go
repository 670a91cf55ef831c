package main

import (
	"context"
	"testing"

	"loom/internal/journal"
)

func TestRetryResetsFailedChapters(t *testing.T) {
	env := setupCLITestEnv(t)
	seedJournalStatuses(t, env)

	out, _, err := runCLI(t, []string{"retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "Reset 1 failed chapters to pending")

	chapter, err := env.store.Get(context.Background(), "chapter_2.txt")
	if err != nil {
		t.Fatalf("journal get: %v", err)
	}
	if chapter.Status != journal.StatusPending {
		t.Fatalf("expected pending after retry, got %s", chapter.Status)
	}
	if chapter.LastError != "" {
		t.Fatalf("expected cleared error, got %q", chapter.LastError)
	}
}

func TestRetryWithoutFailures(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"retry"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	requireContains(t, out, "No failed chapters to retry")
}
