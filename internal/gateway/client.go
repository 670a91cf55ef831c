package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"loom/internal/config"
	"loom/internal/logging"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 90 * time.Second
	requestTemperature = 0.3
)

// Client wraps an OpenRouter-compatible chat completions endpoint. It
// performs exactly one attempt per call; retry policy lives in Gateway.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a transport from the supplied configuration.
func NewClient(cfg config.LLMConfig, opts ...ClientOption) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: config.LLMConfig{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatResponseMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false, so tolerate it as a fallback.
		Delta chatResponseMessage `json:"delta"`
		// Legacy "text" field (completion-style responses).
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

// Complete performs one chat completion attempt. Instructions become the
// system message, joined by newlines; prompt is the user message. Failures
// come back as *Error with a Kind the retry layer acts on.
func (c *Client) Complete(ctx context.Context, instructions []string, prompt string) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &Error{Kind: KindFatal, Message: "api key required"}
	}
	if strings.TrimSpace(prompt) == "" {
		return "", &Error{Kind: KindFatal, Message: "prompt required"}
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.Join(instructions, "\n")},
			{Role: "user", Content: prompt},
		},
		Temperature: requestTemperature,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Kind: KindFatal, Message: "encode request body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", &Error{Kind: KindFatal, Message: "build request", Err: err}
	}
	requestID, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: KindTransient, Message: "http request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: KindTransient, Message: "read response body", Err: err}
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", classifyStatus(resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", &Error{Kind: KindTransient, Message: "decode response", Err: err}
	}
	if completion.Error != nil {
		return "", classifyAPIError(completion.Error.Code, completion.Error.Message)
	}

	content, finishReason, refusal := extractContent(completion)
	if refusal != "" || strings.EqualFold(finishReason, "content_filter") {
		return "", &Error{
			Kind:    KindContentBlocked,
			Message: fmt.Sprintf("refused (finish_reason=%q, refusal=%q)", finishReason, refusal),
		}
	}
	if content == "" {
		return "", &Error{
			Kind:    KindTransient,
			Message: fmt.Sprintf("empty content (finish_reason=%q, snippet=%s)", finishReason, snippet(string(body))),
		}
	}
	return content, nil
}

func extractContent(completion chatResponse) (content, finishReason, refusal string) {
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if content == "" {
			content = firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text)
		}
	}
	return content, finishReason, refusal
}

func classifyStatus(status int, body, retryAfterHeader string) *Error {
	retryAfter, _ := parseRetryAfter(retryAfterHeader)
	kind := KindTransient
	switch {
	case status == http.StatusRequestTimeout:
		kind = KindTimeout
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		if moderationSignals(body) {
			kind = KindContentBlocked
		} else {
			kind = KindFatal
		}
	case status >= http.StatusInternalServerError:
		kind = KindTransient
	default:
		if moderationSignals(body) {
			kind = KindContentBlocked
		} else {
			kind = KindFatal
		}
	}
	return &Error{
		Kind:       kind,
		Status:     status,
		RetryAfter: retryAfter,
		Message:    snippet(body),
	}
}

func classifyAPIError(code int, message string) *Error {
	if moderationSignals(message) {
		return &Error{Kind: KindContentBlocked, Status: code, Message: strings.TrimSpace(message)}
	}
	return &Error{Kind: KindTransient, Status: code, Message: strings.TrimSpace(message)}
}

// moderationSignals sniffs a response body for the markers OpenRouter-style
// providers use when a safety filter declined the request.
func moderationSignals(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"moderation", "content_filter", "flagged", "prohibited_content"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func snippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
