// Package pipeline drives chapters through the translation phases.
//
// The Orchestrator sequences glossary building, translation, and the three
// proofing passes over a naturally ordered chapter set, recording per-chapter
// outcomes in the journal and emitting run-level notifications. Chapters are
// processed strictly sequentially; the only suspension point is the
// chapter-boundary checkpoint, where the worker honors the pause gate and the
// cancel flag. Cancellation is cooperative: no unit of work is interrupted
// mid-flight, and completed output files are never rolled back.
//
// Per-chapter and per-pass failures are logged and journaled, never fatal;
// only startup resource failures abort a run. The control surface (Pause,
// Resume, Cancel, Status) is consumed by the IPC server so a second terminal
// can steer a long run.
package pipeline
