package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loom/internal/config"
	"loom/internal/logging"
)

func TestNewFromConfigConsole(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "test"
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger instance")
	}
	logger.Info("startup message")

	content, err := os.ReadFile(logging.LogFilePath(&cfg))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "startup message") {
		t.Fatalf("log file missing message, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleHandlerHeaderFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("chapter translated",
		logging.String(logging.FieldChapter, "chapter_3.txt"),
		logging.String(logging.FieldPhase, "translate"),
		logging.Int("output_bytes", 42),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "[pipeline]") {
		t.Fatalf("expected component header, got %q", line)
	}
	if !strings.Contains(line, "chapter_3.txt (translate)") {
		t.Fatalf("expected chapter/phase subject, got %q", line)
	}
	if !strings.Contains(line, "output_bytes=42") {
		t.Fatalf("expected trailing attrs, got %q", line)
	}
	if strings.Contains(line, "chapter=") || strings.Contains(line, "phase=") {
		t.Fatalf("subject fields should not repeat as attrs, got %q", line)
	}
}

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")

	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("decode json log line: %v", err)
	}
	if decoded["msg"] != "json message" {
		t.Fatalf("msg = %v, want %q", decoded["msg"], "json message")
	}
	if decoded["level"] != "info" {
		t.Fatalf("level = %v, want info", decoded["level"])
	}
	if _, ok := decoded["ts"]; !ok {
		t.Fatal("expected ts key in json output")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")

	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = logging.WithChapter(ctx, "chapter_7.txt")
	ctx = logging.WithPhase(ctx, "proof-gender")
	ctx = logging.WithRequestID(ctx, "req-xyz")

	logging.WithContext(ctx, logger).Info("contextual log")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("decode json log line: %v", err)
	}
	if decoded[logging.FieldChapter] != "chapter_7.txt" {
		t.Fatalf("chapter = %v, want chapter_7.txt", decoded[logging.FieldChapter])
	}
	if decoded[logging.FieldPhase] != "proof-gender" {
		t.Fatalf("phase = %v, want proof-gender", decoded[logging.FieldPhase])
	}
	if decoded[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("correlation_id = %v, want req-xyz", decoded[logging.FieldCorrelationID])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")

	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "glossary parse skipped line", "glossary_parse_skipped")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("decode json log line: %v", err)
	}
	if decoded[logging.FieldEventType] != "glossary_parse_skipped" {
		t.Fatalf("event_type = %v", decoded[logging.FieldEventType])
	}
	if decoded[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error_hint")
	}
	if decoded[logging.FieldImpact] == "" {
		t.Fatal("expected default impact")
	}
}

func TestFormatSubject(t *testing.T) {
	cases := []struct {
		name    string
		chapter string
		phase   string
		want    string
	}{
		{"both", "chapter_1.txt", "translate", "chapter_1.txt (translate)"},
		{"chapter only", "chapter_1.txt", "", "chapter_1.txt"},
		{"phase only", "", "glossary", "glossary"},
		{"neither", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := logging.FormatSubject(tc.chapter, tc.phase); got != tc.want {
				t.Fatalf("FormatSubject(%q, %q) = %q, want %q", tc.chapter, tc.phase, got, tc.want)
			}
		})
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "run-old.log")
	newPath := filepath.Join(dir, "run-new.log")
	keepPath := filepath.Join(dir, "loom.log")
	for _, path := range []string{oldPath, newPath, keepPath} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(keepPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	logging.CleanupOldLogs(logging.NewNop(), 7, logging.RetentionTarget{
		Dir:     dir,
		Pattern: "*.log",
		Exclude: []string{keepPath},
	})

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected %s pruned, err=%v", oldPath, err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected %s kept: %v", newPath, err)
	}
	if _, err := os.Stat(keepPath); err != nil {
		t.Fatalf("expected excluded %s kept: %v", keepPath, err)
	}
}
