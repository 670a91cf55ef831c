package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"loom/internal/chapter"
	"loom/internal/fileutil"
	"loom/internal/glossary"
	"loom/internal/journal"
	"loom/internal/logging"
	"loom/internal/notifications"
)

// Options selects what a run covers.
type Options struct {
	Selection Selection
	RunID     string
}

// Run executes the selected phases over the configured chapter library.
// Returns ErrCanceled when stopped through the control surface; per-chapter
// failures are journaled and never returned.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	selection := opts.Selection
	if selection == "" {
		selection = SelectAll
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = logging.WithRunID(ctx, runID)
	start := time.Now()

	units, fullRun, err := o.prepare(ctx, runID)
	if err != nil {
		o.notifyError(ctx, "startup", err)
		return err
	}

	o.logger.Info("run starting",
		logging.String("run_id", runID),
		logging.String("selection", string(selection)),
		logging.Int("chapters", len(units)),
		logging.Bool("full_run", fullRun))
	o.notifyStarted(ctx, runID, len(units))

	runErr := o.runPhases(ctx, selection, units, fullRun)
	switch {
	case errors.Is(runErr, ErrCanceled):
		o.logger.Info("run canceled; completed chapters kept", logging.String("run_id", runID))
		o.summarize(ctx, start, false)
		o.setPhase(PhaseIdle)
		return runErr
	case runErr != nil && ctx.Err() != nil:
		o.setPhase(PhaseIdle)
		return runErr
	case runErr != nil:
		o.setPhase(PhaseIdle)
		o.notifyError(ctx, "pipeline", runErr)
		return runErr
	}

	o.summarize(ctx, start, true)
	o.setPhase(PhaseDone)
	return nil
}

// prepare resolves startup resources. Failures here are the only ones that
// abort a run outright.
func (o *Orchestrator) prepare(ctx context.Context, runID string) ([]*chapter.Unit, bool, error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, false, err
	}
	if err := glossary.EnsureFile(o.glossary.Path()); err != nil {
		return nil, false, err
	}

	units, err := chapter.Scan(o.cfg.Paths.InputDir)
	if err != nil {
		return nil, false, err
	}
	fullRun := len(units) > 0
	if !fullRun {
		o.logger.Info("no input chapters; operating on existing output")
		if units, err = chapter.Scan(o.cfg.Paths.OutputDir); err != nil {
			return nil, false, err
		}
	}

	if err := o.journal.EnsureChapters(ctx, units, runID); err != nil {
		return nil, false, err
	}

	o.mu.Lock()
	o.runID = runID
	o.total = len(units)
	o.complete = 0
	o.skipped = 0
	o.mu.Unlock()
	return units, fullRun, nil
}

func (o *Orchestrator) runPhases(ctx context.Context, selection Selection, units []*chapter.Unit, fullRun bool) error {
	// The derived name/context views must exist before any phase reads them,
	// including resumed runs that skip glossary building.
	if _, _, err := o.glossary.Split(); err != nil {
		o.logger.Warn("glossary split failed", logging.Error(err))
	}

	if selection.includesGlossary() && fullRun {
		if err := o.runGlossaryPhase(ctx, units); err != nil {
			return err
		}
	}
	if selection.includesTranslate() && fullRun {
		if err := o.runTranslatePhase(ctx, units); err != nil {
			return err
		}
	}

	passes := selection.proofPasses()
	for _, pass := range passes {
		phase := phaseForPass(pass)
		o.setPhase(phase)
		if err := o.proofer.Run(logging.WithPhase(ctx, string(phase)), pass); err != nil {
			return err
		}
	}
	if len(passes) == 3 {
		o.markProofed(ctx)
	}
	return nil
}

// runGlossaryPhase extracts glossary entries from every chapter, then
// rewrites the derived views and runs the AI maintenance pass over the
// master.
func (o *Orchestrator) runGlossaryPhase(ctx context.Context, units []*chapter.Unit) error {
	o.setPhase(PhaseGlossary)
	ctx = logging.WithPhase(ctx, string(PhaseGlossary))
	batchSize, totalBatches := o.batching(len(units))

	for i, unit := range units {
		if err := o.checkpoint(ctx); err != nil {
			return err
		}
		if i%batchSize == 0 {
			o.logger.Info("glossary batch",
				logging.Int("batch", i/batchSize+1),
				logging.Int("batches", totalBatches))
		}
		o.setChapter(unit.Name)

		if o.phaseDone(ctx, unit.Name, journal.StatusGlossaried) {
			continue
		}
		if err := unit.LoadSource(); err != nil {
			o.chapterFailed(ctx, unit.Name, "glossary", err)
			continue
		}
		if len(unit.SourceText) == 0 {
			o.logger.Debug("empty chapter, skipping glossary extraction", logging.String("chapter", unit.Name))
			o.markPhase(ctx, unit.Name, journal.StatusGlossaried)
			continue
		}

		added, err := o.glossary.Build(logging.WithChapter(ctx, unit.Name), unit.SourceText)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.chapterFailed(ctx, unit.Name, "glossary", err)
			continue
		}
		if added > 0 {
			o.logger.Info("glossary entries added",
				logging.String("chapter", unit.Name),
				logging.Int("added", added))
		}
		o.markPhase(ctx, unit.Name, journal.StatusGlossaried)
	}

	if _, _, err := o.glossary.Split(); err != nil {
		o.logger.Warn("glossary split failed", logging.Error(err))
	}
	if err := o.glossary.Proof(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Warn("glossary proofing failed; master kept as built", logging.Error(err))
	}
	o.logger.Info("glossary phase complete")
	return nil
}

// runTranslatePhase translates chapters in natural order, injecting the
// matched name-glossary subset per chapter. Failed chapters are journaled
// and skipped, never fatal.
func (o *Orchestrator) runTranslatePhase(ctx context.Context, units []*chapter.Unit) error {
	o.setPhase(PhaseTranslate)
	ctx = logging.WithPhase(ctx, string(PhaseTranslate))

	nameEntries, err := glossary.LoadNameEntries(o.glossary.Path())
	if err != nil {
		o.logger.Warn("name glossary unavailable; translating without it", logging.Error(err))
	}
	batchSize, totalBatches := o.batching(len(units))

	for i, unit := range units {
		if err := o.checkpoint(ctx); err != nil {
			return err
		}
		if i%batchSize == 0 {
			o.logger.Info("translation batch",
				logging.Int("batch", i/batchSize+1),
				logging.Int("batches", totalBatches))
		}
		o.setChapter(unit.Name)

		if o.phaseDone(ctx, unit.Name, journal.StatusTranslated) {
			o.logger.Debug("already translated, skipping", logging.String("chapter", unit.Name))
			continue
		}
		o.logger.Info("translating chapter",
			logging.String("chapter", unit.Name),
			logging.Int("index", i+1),
			logging.Int("total", len(units)))

		if err := unit.LoadSource(); err != nil {
			o.chapterFailed(ctx, unit.Name, "translate", err)
			o.noteResult(false)
			continue
		}
		outPath := unit.OutputPath(o.cfg.Paths.OutputDir)
		if len(unit.SourceText) == 0 {
			if err := fileutil.WriteAtomic(outPath, nil, 0o644); err != nil {
				o.chapterFailed(ctx, unit.Name, "translate", err)
				o.noteResult(false)
				continue
			}
			o.markPhase(ctx, unit.Name, journal.StatusTranslated)
			o.noteResult(true)
			continue
		}

		block := glossary.FormatEntries(glossary.MatchForChapter(nameEntries, unit.SourceText))
		translated, err := o.tr.Translate(logging.WithChapter(ctx, unit.Name), unit.SourceText, block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.chapterFailed(ctx, unit.Name, "translate", err)
			o.noteResult(false)
			continue
		}
		unit.TranslatedText = translated

		if err := fileutil.WriteAtomic(outPath, []byte(translated), 0o644); err != nil {
			o.chapterFailed(ctx, unit.Name, "translate", err)
			o.noteResult(false)
			continue
		}
		o.markPhase(ctx, unit.Name, journal.StatusTranslated)
		o.noteResult(true)
	}

	o.logger.Info("translation phase complete")
	return nil
}

// markProofed advances translated rows after the full proofing sequence.
// Single-pass maintenance runs leave statuses alone.
func (o *Orchestrator) markProofed(ctx context.Context) {
	rows, err := o.journal.List(ctx)
	if err != nil {
		o.logger.Warn("journal list failed after proofing", logging.Error(err))
		return
	}
	for _, row := range rows {
		if row.Status != journal.StatusTranslated {
			continue
		}
		o.markPhase(ctx, row.Name, journal.StatusProofed)
	}
}

// phaseDone reports whether the chapter already reached the given status on
// an earlier run, letting a resumed run skip completed work.
func (o *Orchestrator) phaseDone(ctx context.Context, name string, status journal.Status) bool {
	row, err := o.journal.Get(ctx, name)
	if err != nil || row == nil {
		return false
	}
	return statusRank(row.Status) >= statusRank(status)
}

func statusRank(status journal.Status) int {
	switch status {
	case journal.StatusGlossaried:
		return 1
	case journal.StatusTranslated:
		return 2
	case journal.StatusProofed:
		return 3
	default:
		return 0
	}
}

func (o *Orchestrator) markPhase(ctx context.Context, name string, status journal.Status) {
	if err := o.journal.MarkPhase(ctx, name, status); err != nil {
		o.logger.Warn("journal update failed",
			logging.String("chapter", name),
			logging.String("status", string(status)),
			logging.Error(err))
	}
}

func (o *Orchestrator) chapterFailed(ctx context.Context, name, phase string, cause error) {
	o.logger.Warn("chapter failed, continuing with next",
		logging.String("chapter", name),
		logging.String("phase", phase),
		logging.Error(cause))
	if err := o.journal.MarkFailed(ctx, name, cause.Error()); err != nil {
		o.logger.Warn("journal update failed",
			logging.String("chapter", name),
			logging.Error(err))
	}
}

func (o *Orchestrator) batching(total int) (batchSize, batches int) {
	batchSize = o.cfg.Pipeline.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batches = (total + batchSize - 1) / batchSize
	return batchSize, batches
}

// summarize logs the per-run outcome and the persistent untranslated audit.
func (o *Orchestrator) summarize(ctx context.Context, start time.Time, completed bool) {
	elapsed := time.Since(start).Round(time.Second)

	o.mu.RLock()
	runID := o.runID
	complete := o.complete
	skipped := o.skipped
	o.mu.RUnlock()

	summary, err := o.journal.Health(ctx)
	if err != nil {
		o.logger.Warn("journal summary unavailable", logging.Error(err))
	}
	o.logger.Info("run summary",
		logging.String("run_id", runID),
		logging.Int("translated", complete),
		logging.Int("skipped", skipped),
		logging.Int("proofed_total", summary.Proofed),
		logging.Int("failed_total", summary.Failed),
		logging.Duration("elapsed", elapsed))

	remaining, err := o.journal.Untranslated(ctx)
	if err != nil {
		o.logger.Warn("untranslated audit unavailable", logging.Error(err))
	} else if len(remaining) > 0 {
		names := make([]string, 0, len(remaining))
		for _, row := range remaining {
			names = append(names, row.Name)
		}
		o.logger.Warn("chapters remain untranslated",
			logging.Int("count", len(names)),
			logging.Any("chapters", names),
			logging.Alert("untranslated_backlog"))
	}

	if completed {
		o.notifyCompleted(ctx, complete, skipped, elapsed)
	}
}

func (o *Orchestrator) notifyStarted(ctx context.Context, runID string, chapters int) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventRunStarted, notifications.Payload{
		"chapters": chapters,
		"runID":    runID,
	})
	if err != nil {
		o.logger.Debug("run start notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) notifyCompleted(ctx context.Context, completed, skipped int, elapsed time.Duration) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"completed": completed,
		"skipped":   skipped,
		"duration":  elapsed,
	})
	if err != nil {
		o.logger.Debug("run completion notification failed", logging.Error(err))
	}
}

func (o *Orchestrator) notifyError(ctx context.Context, label string, cause error) {
	if o.notifier == nil || cause == nil {
		return
	}
	err := o.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"context": label,
		"error":   cause,
	})
	if err != nil {
		o.logger.Debug("error notification failed", logging.Error(err))
	}
}
