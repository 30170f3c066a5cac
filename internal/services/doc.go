// Package services defines shared utilities consumed by the scheduler, the
// pipelines, and the analysis modules.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, task kinds, module names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures from modules,
//     configuration, and external tools classify consistently.
//
// Use these helpers when wiring new modules so operational behaviour (error
// reporting, observability) stays uniform across pipelines.
package services
