package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"loom/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\nd\n")

	result, err := logs.Tail(path, 2)
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "c" || result.Lines[1] != "d" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("expected offset to advance")
	}
}

func TestTailShortFile(t *testing.T) {
	path := writeLog(t, "only\n")

	result, err := logs.Tail(path, 10)
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestTailZeroLimitReportsEndOffset(t *testing.T) {
	path := writeLog(t, "a\nb\n")

	result, err := logs.Tail(path, 0)
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("expected no lines, got %#v", result.Lines)
	}
	if result.Offset != 4 {
		t.Fatalf("expected end offset 4, got %d", result.Offset)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")

	result, err := logs.Tail(path, 1)
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}

	errStop := errors.New("stop")
	got := make(chan []string, 1)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(context.Background(), path, result.Offset, func(lines []string) error {
			got <- lines
			return errStop
		})
	}()

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case lines := <-got:
		if len(lines) != 1 || lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not observe appended line")
	}
	if err := <-done; !errors.Is(err, errStop) {
		t.Fatalf("expected emit error to propagate, got %v", err)
	}
}

func TestFollowStopsOnContextCancel(t *testing.T) {
	path := writeLog(t, "x\n")

	result, err := logs.Tail(path, 0)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, result.Offset, func([]string) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not stop after cancel")
	}
}

func TestFollowRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")

	result, err := logs.Tail(path, 0)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}

	if err := os.WriteFile(path, []byte("fresh\n"), 0o644); err != nil {
		t.Fatalf("truncate log: %v", err)
	}

	errStop := errors.New("stop")
	var seen []string
	err = logs.Follow(context.Background(), path, result.Offset, func(lines []string) error {
		seen = append(seen, lines...)
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected emit error to propagate, got %v", err)
	}
	if len(seen) != 1 || seen[0] != "fresh" {
		t.Fatalf("expected restart from top after truncation, got %#v", seen)
	}
}
