// Package workflow drives one triage run.
//
// Analyze opens the case store, task queue and image, builds the pipelines,
// seeds the queue through extraction and carve preparation, and hands control
// to a Driver. The Driver owns the scheduler state machine:
//
//	Idle -> Draining -> ReportingPipeline -> Done
//
// with Failed reachable from every non-terminal state. Draining consumes the
// queue one task at a time; a failing task never stops the drain. The
// reporting pipeline runs once after the queue is empty and its failure fails
// the run.
package workflow
