package modules

import (
	"fmt"

	"triage/internal/pipeline"
	"triage/internal/queue"
)

var builtins = []pipeline.Registration{
	{
		Name:        HashName,
		Description: "hash file content (md5, sha1, sha256)",
		Kinds:       []queue.Kind{queue.KindFileAnalysis},
		New:         newHash,
	},
	{
		Name:        SkipKnownName,
		Description: "stop analysis of files in a known-good hash set",
		Kinds:       []queue.Kind{queue.KindFileAnalysis},
		New:         newSkipKnown,
	},
	{
		Name:        FileTypeName,
		Description: "detect MIME type and extension from content",
		Kinds:       []queue.Kind{queue.KindFileAnalysis},
		New:         newFileType,
	},
	{
		Name:        CarveExtractName,
		Description: "carve JPEG, PNG, GIF, PDF and ZIP files from unallocated space",
		Kinds:       []queue.Kind{queue.KindCarve},
		New:         newCarveExtract,
	},
	{
		Name:        ExecName,
		Description: "run an external program speaking JSON on stdin/stdout",
		New:         newExec,
	},
	{
		Name:        SummaryName,
		Description: "write report.txt and report.json for the case",
		Kinds:       []queue.Kind{queue.KindReport},
		New:         newSummary,
	},
}

// Register adds every built-in module to reg.
func Register(reg *pipeline.Registry) error {
	for _, b := range builtins {
		if err := reg.Register(b); err != nil {
			return fmt.Errorf("register built-in modules: %w", err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in modules.
func NewRegistry() (*pipeline.Registry, error) {
	reg := pipeline.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}
