package testsupport

import (
	"context"
	"testing"

	"loom/internal/chapter"
	"loom/internal/config"
	"loom/internal/journal"
)

// MustOpenJournal opens a journal.Store for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedChapters registers the named chapters as pending journal rows.
func SeedChapters(t testing.TB, store *journal.Store, runID string, names ...string) {
	t.Helper()

	units := make([]*chapter.Unit, 0, len(names))
	for _, name := range names {
		units = append(units, chapter.New(name))
	}
	if err := store.EnsureChapters(context.Background(), units, runID); err != nil {
		t.Fatalf("EnsureChapters: %v", err)
	}
}
