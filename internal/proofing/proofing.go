// Package proofing runs the post-translation cleanup passes over the
// output directory: non-English residue repair, gender pronoun
// correction, and a final copy-edit. Each pass reads the current state
// of the translated files and rewrites them in place, so passes compose
// and any single pass can be re-run on its own.
package proofing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"loom/internal/chapter"
	"loom/internal/config"
	"loom/internal/fileutil"
	"loom/internal/glossary"
	"loom/internal/logging"
)

// Generator is the model call the passes run on. The gateway satisfies
// it; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, instructions []string, prompt string) (string, error)
}

// Pass selects which proofing stage to run.
type Pass string

const (
	PassAll        Pass = "all"
	PassNonEnglish Pass = "non_english"
	PassGender     Pass = "gender"
	PassCopyEdit   Pass = "copyedit"
)

// auditLogName is the file in the log directory recording every line the
// non-English pass flagged, kept across runs for manual review.
const auditLogName = "non_english_lines.log"

// Engine coordinates the proofing passes over one output directory.
type Engine struct {
	gen    Generator
	logger *slog.Logger

	outputDir    string
	logDir       string
	glossaryPath string

	minLineRatioPercent int
	minLineFloor        int
	maxLineDelta        int
	batchTimeout        time.Duration
	copyEditTimeout     time.Duration

	// Checkpoint, when set, is consulted before each file. It blocks
	// while the run is paused and returns an error once cancelled.
	Checkpoint func(ctx context.Context) error
}

// NewEngine builds an Engine over the configured output directory.
func NewEngine(gen Generator, cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		gen:                 gen,
		logger:              logging.NewComponentLogger(logger, "proofing"),
		outputDir:           cfg.Paths.OutputDir,
		logDir:              cfg.Paths.LogDir,
		glossaryPath:        cfg.Paths.GlossaryPath,
		minLineRatioPercent: cfg.Proofing.MinLineRatioPercent,
		minLineFloor:        cfg.Proofing.MinLineFloor,
		maxLineDelta:        cfg.Proofing.MaxLineDelta,
		batchTimeout:        time.Duration(cfg.Proofing.BatchTimeoutSeconds) * time.Second,
		copyEditTimeout:     time.Duration(cfg.Proofing.CopyEditTimeoutSeconds) * time.Second,
	}
}

// AuditLogPath returns the location of the non-English audit log.
func (e *Engine) AuditLogPath() string {
	return filepath.Join(e.logDir, auditLogName)
}

// Run executes the selected pass, or all three in order for PassAll.
// A failure inside one file never aborts the batch; only I/O setup
// errors and context cancellation propagate.
func (e *Engine) Run(ctx context.Context, pass Pass) error {
	switch pass {
	case PassNonEnglish:
		return e.NonEnglish(ctx)
	case PassGender:
		return e.Gender(ctx)
	case PassCopyEdit:
		return e.CopyEdit(ctx)
	case PassAll, "":
		if err := e.NonEnglish(ctx); err != nil {
			return err
		}
		if err := e.Gender(ctx); err != nil {
			return err
		}
		return e.CopyEdit(ctx)
	default:
		return fmt.Errorf("unknown proofing pass %q", pass)
	}
}

func (e *Engine) checkpoint(ctx context.Context) error {
	if e.Checkpoint == nil {
		return ctx.Err()
	}
	return e.Checkpoint(ctx)
}

// log derives a pass-scoped logger carrying the run and phase fields the
// orchestrator attached to the context.
func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, e.logger)
}

func (e *Engine) callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// scanOutputs lists the translated chapters currently in the output
// directory in natural order.
func (e *Engine) scanOutputs() ([]*chapter.Unit, error) {
	return chapter.Scan(e.outputDir)
}

// writeIfChanged rewrites path only when the proofed text differs from
// what is on disk.
func (e *Engine) writeIfChanged(path, original, proofed string) (bool, error) {
	if proofed == original {
		return false, nil
	}
	if err := fileutil.WriteAtomic(path, []byte(proofed), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// loadGlossaries reads the name and context sub-glossaries once per
// pass. Missing sub-glossaries degrade to empty views rather than
// failing the pass; the prompts fall back to "(none)".
func (e *Engine) loadGlossaries() ([]glossary.Entry, map[string]string) {
	entries, err := glossary.LoadNameEntries(e.glossaryPath)
	if err != nil {
		e.logger.Warn("name glossary unavailable", slog.String("error", err.Error()))
	}
	dict, err := glossary.LoadContextDict(e.glossaryPath)
	if err != nil {
		e.logger.Warn("context glossary unavailable", slog.String("error", err.Error()))
	}
	return entries, dict
}

// orNone substitutes the placeholder the prompts use for an empty
// glossary block.
func orNone(block string) string {
	if block == "" {
		return "(none)"
	}
	return block
}

func readFileText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}
