package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"loom/internal/config"
	"loom/internal/logging"
)

type stubCall struct {
	firstInstruction string
	prompt           string
	requestID        string
}

type stubResult struct {
	text string
	err  error
}

type stubCompleter struct {
	script []stubResult
	calls  []stubCall
}

func (s *stubCompleter) Complete(ctx context.Context, instructions []string, prompt string) (string, error) {
	call := stubCall{prompt: prompt}
	if len(instructions) > 0 {
		call.firstInstruction = instructions[0]
	}
	call.requestID, _ = logging.RequestIDFromContext(ctx)
	s.calls = append(s.calls, call)
	i := len(s.calls) - 1
	if i >= len(s.script) {
		return "", &Error{Kind: KindTransient, Message: "script exhausted"}
	}
	return s.script[i].text, s.script[i].err
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Pipeline.PrimaryAttempts = 3
	cfg.Pipeline.SecondaryAttempts = 2
	cfg.Pipeline.PrimaryBackoffSeconds = 0
	cfg.Pipeline.SecondaryBackoffSeconds = 0
	cfg.Pipeline.SizeRetryLimit = 2
	cfg.Pipeline.SizeRatioPercent = 125
	cfg.Pipeline.SizeMarginBytes = 10240
	return cfg
}

func newTestGateway(stub Completer, cfg config.Config) *Gateway {
	return New(stub, &cfg, logging.NewNop())
}

func isSecondary(instruction string) bool {
	return strings.Contains(instruction, "TRANSLATE novels INTO ENGLISH")
}

func TestGenerateRetriesExactlyConfiguredAttempts(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindTransient, Message: "boom"}},
		{err: &Error{Kind: KindTimeout, Message: "slow"}},
		{err: &Error{Kind: KindRateLimited, Message: "quota"}},
		{text: "should never be reached"},
	}}
	gw := newTestGateway(stub, testConfig())

	_, err := gw.Generate(context.Background(), []string{"instruction"}, "prompt")
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := len(stub.calls); got != 3 {
		t.Fatalf("made %d attempts, want exactly 3", got)
	}
}

func TestGenerateSucceedsAfterTransientFailures(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindTransient, Message: "blip"}},
		{text: "recovered"},
	}}
	gw := newTestGateway(stub, testConfig())

	got, err := gw.Generate(context.Background(), []string{"instruction"}, "prompt")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "recovered" {
		t.Fatalf("Generate = %q, want %q", got, "recovered")
	}
	if len(stub.calls) != 2 {
		t.Fatalf("made %d attempts, want 2", len(stub.calls))
	}
}

func TestGenerateCorrelationIDSpansRetries(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindTransient, Message: "blip"}},
		{text: "recovered"},
		{text: "second call"},
	}}
	gw := newTestGateway(stub, testConfig())

	if _, err := gw.Generate(context.Background(), []string{"instruction"}, "prompt"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := gw.Generate(context.Background(), []string{"instruction"}, "prompt"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(stub.calls) != 3 {
		t.Fatalf("made %d attempts, want 3", len(stub.calls))
	}
	if stub.calls[0].requestID == "" {
		t.Fatal("attempts must carry a correlation ID")
	}
	if stub.calls[0].requestID != stub.calls[1].requestID {
		t.Error("retries of one call must share its correlation ID")
	}
	if stub.calls[2].requestID == stub.calls[0].requestID {
		t.Error("separate calls must get distinct correlation IDs")
	}
}

func TestGenerateStopsImmediatelyOnFatal(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindFatal, Message: "bad key"}},
	}}
	gw := newTestGateway(stub, testConfig())

	_, err := gw.Generate(context.Background(), []string{"instruction"}, "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(stub.calls) != 1 {
		t.Fatalf("fatal error retried: %d attempts", len(stub.calls))
	}
}

func TestTranslateFallsBackToSecondaryOnce(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindContentBlocked, Message: "refused"}},
		{text: "translated output"},
	}}
	gw := newTestGateway(stub, testConfig())

	got, err := gw.Translate(context.Background(), "原文テキスト", "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "translated output" {
		t.Fatalf("Translate = %q", got)
	}
	if len(stub.calls) != 2 {
		t.Fatalf("made %d calls, want 2 (one per instruction set)", len(stub.calls))
	}
	if isSecondary(stub.calls[0].firstInstruction) {
		t.Error("first call should use the primary instruction set")
	}
	if !isSecondary(stub.calls[1].firstInstruction) {
		t.Error("second call should use the secondary instruction set")
	}
}

func TestTranslateBothSetsBlockedExhausts(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindContentBlocked, Message: "refused"}},
		{err: &Error{Kind: KindContentBlocked, Message: "refused again"}},
	}}
	gw := newTestGateway(stub, testConfig())

	_, err := gw.Translate(context.Background(), "原文テキスト", "")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if len(stub.calls) != 2 {
		t.Fatalf("made %d calls, want 2 (content blocks are never retried in place)", len(stub.calls))
	}
}

func TestTranslateTransientExhaustionWrapsSentinel(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{err: &Error{Kind: KindTransient}},
		{err: &Error{Kind: KindTransient}},
		{err: &Error{Kind: KindTransient}},
	}}
	gw := newTestGateway(stub, testConfig())

	_, err := gw.Translate(context.Background(), "原文テキスト", "")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	for _, call := range stub.calls {
		if isSecondary(call.firstInstruction) {
			t.Fatal("transient failures must not trigger the secondary instruction set")
		}
	}
	if len(stub.calls) != 3 {
		t.Fatalf("made %d calls, want 3 primary attempts", len(stub.calls))
	}
}

func TestTranslateProtectsImageTags(t *testing.T) {
	stub := &stubCompleter{script: []stubResult{
		{text: "Before image __IMAGE_TAG_0__ after image."},
	}}
	gw := newTestGateway(stub, testConfig())

	got, err := gw.Translate(context.Background(), `挿絵<img src="pic.png"/>のある章`, "glossary block")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	prompt := stub.calls[0].prompt
	if strings.Contains(prompt, "<img") {
		t.Errorf("raw image tag leaked into prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "__IMAGE_TAG_0__") {
		t.Errorf("prompt missing placeholder: %q", prompt)
	}
	if !strings.Contains(got, `<img src="pic.png"/>`) {
		t.Errorf("image tag not restored in output: %q", got)
	}
}

func TestTranslateAppendsGlossaryBlock(t *testing.T) {
	var captured []string
	stub := &stubCompleter{script: []stubResult{{text: "out"}}}
	gw := newTestGateway(&captureCompleter{inner: stub, instructions: &captured}, testConfig())

	if _, err := gw.Translate(context.Background(), "本文", "カヅキ => Kazuki"); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(captured) == 0 || captured[len(captured)-1] != "カヅキ => Kazuki" {
		t.Fatalf("glossary block not appended to instructions: %v", captured)
	}
}

type captureCompleter struct {
	inner        Completer
	instructions *[]string
}

func (c *captureCompleter) Complete(ctx context.Context, instructions []string, prompt string) (string, error) {
	*c.instructions = append([]string(nil), instructions...)
	return c.inner.Complete(ctx, instructions, prompt)
}

func TestTranslateSizeGuardRetriesThenAccepts(t *testing.T) {
	input := strings.Repeat("あ", 40)
	oversized := strings.Repeat("x", 400)
	good := strings.Repeat("y", 100)

	cfg := testConfig()
	cfg.Pipeline.SizeMarginBytes = 1 << 20

	stub := &stubCompleter{script: []stubResult{
		{text: oversized},
		{text: good},
	}}
	gw := newTestGateway(stub, cfg)

	got, err := gw.Translate(context.Background(), input, "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != good {
		t.Fatalf("size guard kept the oversized result (len=%d)", len(got))
	}
	if len(stub.calls) != 2 {
		t.Fatalf("made %d calls, want 2", len(stub.calls))
	}
}

func TestTranslateSizeGuardKeepsFirstAfterExhaustion(t *testing.T) {
	input := strings.Repeat("あ", 40)
	first := strings.Repeat("x", 400)

	cfg := testConfig()
	cfg.Pipeline.SizeMarginBytes = 1 << 20

	stub := &stubCompleter{script: []stubResult{
		{text: first},
		{text: strings.Repeat("z", 500)},
		{text: strings.Repeat("w", 600)},
	}}
	gw := newTestGateway(stub, cfg)

	got, err := gw.Translate(context.Background(), input, "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != first {
		t.Fatal("exhausted size retries must keep the first translation")
	}
	if len(stub.calls) != 3 {
		t.Fatalf("made %d calls, want 1 original + 2 size retries", len(stub.calls))
	}
}

func TestTranslateSizeGuardDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.SizeRatioPercent = 0

	stub := &stubCompleter{script: []stubResult{
		{text: strings.Repeat("x", 4000)},
	}}
	gw := newTestGateway(stub, cfg)

	got, err := gw.Translate(context.Background(), "短い", "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("guard disabled but %d calls made", len(stub.calls))
	}
	if len(got) != 4000 {
		t.Fatalf("output altered: len=%d", len(got))
	}
}
