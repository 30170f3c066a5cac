// Package modules contains the built-in analysis modules and registers them
// with a pipeline.Registry.
//
// FileAnalysis modules receive a file id, Carve modules a carve batch id, and
// reporting modules run once over the whole case. Modules read and write the
// case store through pipeline.Deps; file content is opened through Deps.FS.
package modules
