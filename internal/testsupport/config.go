package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"triage/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The output directory is not created; the pipeline config path points at a
// file only when WithPipeline is used.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Paths.ProgDir = filepath.Join(base, "bin")
	cfgVal.Paths.PipelineConfig = filepath.Join(base, "pipeline.toml")
	cfgVal.Logging.Format = "json"
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPipeline writes contents as the pipeline config.
func WithPipeline(contents string) ConfigOption {
	return func(b *configBuilder) {
		if err := os.WriteFile(b.cfg.Paths.PipelineConfig, []byte(contents), 0o644); err != nil {
			b.t.Fatalf("write pipeline config: %v", err)
		}
	}
}

// WithQueueBackend selects the task queue backend.
func WithQueueBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scheduler.QueueBackend = backend
	}
}

// WithCarveCeiling sets the carve capture ceiling in bytes. Zero disables carving.
func WithCarveCeiling(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Carving.Enabled = bytes > 0
		b.cfg.Carving.MaxBytes = bytes
	}
}

// WithStubbedPrograms writes executable scripts into the program directory.
// Each script prints output and exits 0.
func WithStubbedPrograms(output string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := b.cfg.Paths.ProgDir
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\ncat >/dev/null\nprintf '%s' '" + output + "'\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
