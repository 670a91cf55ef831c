package main

import (
	"bytes"
	"testing"
)

func TestVersionCommandSkipsConfig(t *testing.T) {
	// No HOME override and no config file: version must still work.
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	requireContains(t, stdout.String(), "loom ")
}
