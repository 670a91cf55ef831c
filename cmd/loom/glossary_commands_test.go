package main

import (
	"strings"
	"testing"

	"loom/internal/glossary"
	"loom/internal/testsupport"
)

func seedGlossary(t *testing.T, env *cliTestEnv) {
	t.Helper()
	entries := []glossary.Entry{
		{Original: "蓝霄", Translation: "Lan Xiao", Gender: "male"},
		{Original: "NPC guild", Translation: "NPC guild"},
		{Original: "修炼境界", Translation: "cultivation realm"},
	}
	if err := glossary.WriteEntries(env.cfg.Paths.GlossaryPath, entries); err != nil {
		t.Fatalf("write glossary: %v", err)
	}
}

func TestGlossaryShowRendersEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	seedGlossary(t, env)

	out, _, err := runCLI(t, []string{"glossary", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("glossary show: %v", err)
	}
	requireContains(t, out, "蓝霄")
	requireContains(t, out, "Lan Xiao")
	requireContains(t, out, "male")
	requireContains(t, out, "3 entries")
}

func TestGlossaryShowEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"glossary", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("glossary show: %v", err)
	}
	requireContains(t, out, "Glossary is empty")
}

func TestGlossaryCleanDropsLatinTerms(t *testing.T) {
	env := setupCLITestEnv(t)
	seedGlossary(t, env)

	out, _, err := runCLI(t, []string{"glossary", "clean"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("glossary clean: %v", err)
	}
	requireContains(t, out, "Removed 1 entries, kept 2")

	entries, err := glossary.ReadEntries(env.cfg.Paths.GlossaryPath)
	if err != nil {
		t.Fatalf("read glossary: %v", err)
	}
	for _, entry := range entries {
		if entry.Original == "NPC guild" {
			t.Fatal("latin-dominant term survived clean")
		}
	}
}

func TestGlossarySplitWritesViews(t *testing.T) {
	env := setupCLITestEnv(t)
	seedGlossary(t, env)

	out, _, err := runCLI(t, []string{"glossary", "split"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("glossary split: %v", err)
	}
	requireContains(t, out, "name view")
	requireContains(t, out, "context view")

	_, namePath, contextPath := glossary.SplitPaths(env.cfg.Paths.GlossaryPath)
	nameContent := testsupport.ReadFile(t, namePath)
	if !strings.Contains(nameContent, "蓝霄 => Lan Xiao") {
		t.Fatalf("name view missing entry:\n%s", nameContent)
	}
	contextContent := testsupport.ReadFile(t, contextPath)
	if !strings.Contains(contextContent, "Lan Xiao => male") {
		t.Fatalf("context view missing gender entry:\n%s", contextContent)
	}
}
