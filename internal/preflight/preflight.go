package preflight

import (
	"triage/internal/config"
	"triage/internal/pipeline"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not block a run.
	Optional bool
}

// RunAll executes every check for one run. pipelineCfg may be nil when the
// pipeline config could not be read; the pipeline manager reports that.
func RunAll(cfg *config.Config, imagePath, outDir string, pipelineCfg *pipeline.PipelineConfig) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadable("Image", imagePath),
		CheckOutputDir(outDir),
	}
	results = append(results, CheckPrograms(cfg, pipelineCfg)...)
	return results
}

// Failed returns the required results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
