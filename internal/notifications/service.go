package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"loom/internal/config"
)

const userAgent = "Loom/0.1.0"

// Event identifies a run milestone worth pushing to the operator.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunCompleted Event = "run_completed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event-specific fields. Formatting happens inside the
// service so callers stay free of message-template concerns.
type Payload map[string]any

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		runLifecycle: cfg.Notifications.RunLifecycle,
		errors:       cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	runLifecycle bool
	errors       bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunStarted:
		if !n.runLifecycle {
			return message{}, false
		}
		return message{
			title: "Loom - Run Started",
			body:  fmt.Sprintf("Translating %d chapters (run %s)", payloadInt(payload, "chapters"), payloadString(payload, "runID")),
			tags:  []string{"loom", "run", "started"},
		}, true
	case EventRunCompleted:
		if !n.runLifecycle {
			return message{}, false
		}
		completed := payloadInt(payload, "completed")
		skipped := payloadInt(payload, "skipped")
		duration := payloadDuration(payload, "duration")
		if skipped == 0 {
			return message{
				title: "Loom - Run Complete",
				body:  fmt.Sprintf("✅ Run complete: %d chapters in %s", completed, duration),
				tags:  []string{"loom", "run", "completed"},
			}, true
		}
		return message{
			title:    "Loom - Run Complete (with skips)",
			body:     fmt.Sprintf("Run complete: %d chapters, %d skipped in %s", completed, skipped, duration),
			tags:     []string{"loom", "run", "completed"},
			priority: "high",
		}, true
	case EventError:
		if !n.errors {
			return message{}, false
		}
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(payloadError(payload, "error"))
		return message{
			title:    "Loom - Error",
			body:     builder.String(),
			tags:     []string{"loom", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Loom - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"loom", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(p Payload, key string) string {
	if p == nil {
		return ""
	}
	if value, ok := p[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func payloadInt(p Payload, key string) int {
	if p == nil {
		return 0
	}
	if value, ok := p[key].(int); ok {
		return value
	}
	return 0
}

func payloadDuration(p Payload, key string) string {
	if p == nil {
		return "0s"
	}
	value, ok := p[key].(time.Duration)
	if !ok {
		return "0s"
	}
	value = value.Round(time.Second)
	if value <= 0 {
		return "0s"
	}
	return value.String()
}

func payloadError(p Payload, key string) string {
	if p == nil {
		return "unknown"
	}
	switch value := p[key].(type) {
	case error:
		if value != nil {
			return strings.TrimSpace(value.Error())
		}
	case string:
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return "unknown"
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
