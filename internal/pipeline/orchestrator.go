package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"loom/internal/config"
	"loom/internal/glossary"
	"loom/internal/journal"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/proofing"
)

// Translator is the slice of the gateway the translate phase consumes.
type Translator interface {
	Translate(ctx context.Context, chapterText, glossaryBlock string) (string, error)
}

// Orchestrator sequences the pipeline phases over one chapter library.
type Orchestrator struct {
	cfg      *config.Config
	tr       Translator
	glossary *glossary.Store
	proofer  *proofing.Engine
	journal  *journal.Store
	notifier notifications.Service
	logger   *slog.Logger
	gate     *Gate

	mu       sync.RWMutex
	runID    string
	phase    Phase
	chapter  string
	total    int
	complete int
	skipped  int
}

// New constructs an orchestrator wired to the shared components. The
// notifier comes from configuration; use NewWithNotifier to inject one.
func New(cfg *config.Config, tr Translator, gloss *glossary.Store, proofer *proofing.Engine, store *journal.Store, logger *slog.Logger) *Orchestrator {
	return NewWithNotifier(cfg, tr, gloss, proofer, store, logger, notifications.NewService(cfg))
}

// NewWithNotifier constructs an orchestrator with an explicit notifier.
func NewWithNotifier(cfg *config.Config, tr Translator, gloss *glossary.Store, proofer *proofing.Engine, store *journal.Store, logger *slog.Logger, notifier notifications.Service) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:      cfg,
		tr:       tr,
		glossary: gloss,
		proofer:  proofer,
		journal:  store,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		gate:     NewGate(),
		phase:    PhaseIdle,
	}
	if proofer != nil {
		proofer.Checkpoint = o.checkpoint
	}
	return o
}

// Pause holds the worker at the next chapter boundary.
func (o *Orchestrator) Pause() { o.gate.Pause() }

// Resume releases a paused worker.
func (o *Orchestrator) Resume() { o.gate.Resume() }

// Cancel stops the run at the next chapter boundary. Completed output files
// are left intact.
func (o *Orchestrator) Cancel() { o.gate.Cancel() }

// Status is a point-in-time snapshot of the run for the control surface.
type Status struct {
	RunID     string
	Phase     Phase
	Chapter   string
	Total     int
	Completed int
	Skipped   int
	Paused    bool
	Canceled  bool
}

// Status reports the current run state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Status{
		RunID:     o.runID,
		Phase:     o.phase,
		Chapter:   o.chapter,
		Total:     o.total,
		Completed: o.complete,
		Skipped:   o.skipped,
		Paused:    o.gate.Paused(),
		Canceled:  o.gate.Canceled(),
	}
}

func (o *Orchestrator) setPhase(phase Phase) {
	o.mu.Lock()
	o.phase = phase
	o.chapter = ""
	o.mu.Unlock()
}

func (o *Orchestrator) setChapter(name string) {
	o.mu.Lock()
	o.chapter = name
	o.mu.Unlock()
}

func (o *Orchestrator) noteResult(completed bool) {
	o.mu.Lock()
	if completed {
		o.complete++
	} else {
		o.skipped++
	}
	o.mu.Unlock()
}

// checkpoint is the chapter-boundary suspension point shared with the
// proofing engine.
func (o *Orchestrator) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.gate.Wait(ctx)
}
