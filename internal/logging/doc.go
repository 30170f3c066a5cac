// Package logging assembles structured slog loggers and formatting helpers used
// across the triage run.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code can automatically tag log
// lines with task IDs, task kinds, module names, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
//
// Prefer these constructors over hand-rolled slog setup so new modules emit
// data with the same shape as the scheduler and the pipelines.
package logging
