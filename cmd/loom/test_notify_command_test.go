package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"loom/internal/testsupport"
)

func TestTestNotifyPublishesToConfiguredTopic(t *testing.T) {
	received := make(chan *http.Request, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = backend.URL
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	stdout, _, err := runCLI(t, []string{"test-notify"}, "", configPath)
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, stdout, "Test notification sent")

	select {
	case req := <-received:
		if got := req.Header.Get("Title"); got != "Loom - Test" {
			t.Errorf("Title header = %q, want %q", got, "Loom - Test")
		}
	default:
		t.Fatal("notification backend received no request")
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	stdout, _, err := runCLI(t, []string{"test-notify"}, "", configPath)
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, stdout, "not configured")
}
