// Package pipeline runs ordered chains of analysis modules.
//
// A Module handles one task and answers with a Status. A Pipeline binds a
// module chain to a task kind: RunTask executes the chain for one task and
// contains any failure (error, Fail status, or panic) to that task, while Run
// executes the chain once over the whole case and reports failures to the
// caller. The Manager builds pipelines from the pipeline configuration file by
// resolving module names through a Registry of constructors; dependencies
// reach modules through an explicit Deps bundle.
package pipeline
