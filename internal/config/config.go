package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

//go:embed sample_pipeline.toml
var samplePipeline string

// OutputDirSuffix is appended to the image path when no output directory is configured.
const OutputDirSuffix = "_triage_out"

// Paths contains file and directory locations used by a run.
type Paths struct {
	PipelineConfig string `toml:"pipeline_config"`
	OutputDir      string `toml:"output_dir"`
	ProgDir        string `toml:"prog_dir"`
}

// Carving controls preparation of the unallocated-space artifact.
type Carving struct {
	Enabled      bool   `toml:"enabled"`
	ArtifactName string `toml:"artifact_name"`
	// MaxSize accepts human-readable sizes ("1GB", "512MiB").
	MaxSize string `toml:"max_size"`
	// MaxBytes is derived from MaxSize during normalization.
	MaxBytes int64 `toml:"-"`
}

// Scheduler contains task queue and drain settings.
type Scheduler struct {
	QueueBackend string `toml:"queue_backend"`
	// TaskTimeout bounds one task's pass through its pipeline, in seconds. Zero disables it.
	TaskTimeout int `toml:"task_timeout"`
}

// Image selects how the evidence path is opened.
type Image struct {
	Format     string   `toml:"format"`
	Include    []string `toml:"include"`
	SectorSize int      `toml:"sector_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics controls the run metrics textfile.
type Metrics struct {
	Enabled  bool   `toml:"enabled"`
	FileName string `toml:"file_name"`
}

// Config encapsulates all system configuration for a triage run.
//
// Configuration sections:
//   - Paths: pipeline config, output directory, and module program directory
//   - Carving: unallocated space capture
//   - Scheduler: queue backend and per-task timeout
//   - Image: evidence backend selection
//   - Logging: log format and level
//   - Metrics: run metrics textfile
type Config struct {
	Paths     Paths     `toml:"paths"`
	Carving   Carving   `toml:"carving"`
	Scheduler Scheduler `toml:"scheduler"`
	Image     Image     `toml:"image"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the per-user configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultUserConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. The boolean reports whether a file was found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// An explicit path that does not exist is reported as absent rather than an error.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	userPath, err := expandPath(defaultUserConfigPath)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	if info, err := os.Stat(userPath); err == nil && !info.IsDir() {
		return userPath, true, nil
	}

	return userPath, false, nil
}

// OutputDirFor returns the configured output directory, or the default
// "<image>_triage_out" next to the image.
func (c *Config) OutputDirFor(imagePath string) (string, error) {
	if dir := strings.TrimSpace(c.Paths.OutputDir); dir != "" {
		return expandPath(dir)
	}
	trimmed := strings.TrimRight(strings.TrimSpace(imagePath), string(filepath.Separator))
	if trimmed == "" {
		return "", errors.New("image path is empty")
	}
	return expandPath(trimmed + OutputDirSuffix)
}

// TaskTimeoutDuration converts scheduler.task_timeout into a duration.
func (c *Config) TaskTimeoutDuration() time.Duration {
	if c.Scheduler.TaskTimeout <= 0 {
		return 0
	}
	return time.Duration(c.Scheduler.TaskTimeout) * time.Second
}

// ResolveProgPath resolves a module program path against paths.prog_dir.
func (c *Config) ResolveProgPath(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	if !strings.ContainsRune(name, filepath.Separator) && !strings.HasPrefix(name, ".") {
		// bare names are looked up on PATH
		return name
	}
	return filepath.Join(c.Paths.ProgDir, name)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultProgDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	return writeSample(path, sampleConfig, "config")
}

// CreateSamplePipeline writes a sample pipeline configuration file.
func CreateSamplePipeline(path string) error {
	return writeSample(path, samplePipeline, "pipeline config")
}

func writeSample(path, content, label string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", label, err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s %s already exists", label, path)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write sample %s: %w", label, err)
	}
	return nil
}
