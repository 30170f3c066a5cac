package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCarving(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeImage()
	c.normalizeLogging()
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("TRIAGE_OUTPUT_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.OutputDir = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("TRIAGE_PIPELINE_CONFIG"); ok && strings.TrimSpace(value) != "" {
		c.Paths.PipelineConfig = strings.TrimSpace(value)
	}

	if strings.TrimSpace(c.Paths.ProgDir) == "" {
		c.Paths.ProgDir = defaultProgDir()
	}
	if c.Paths.ProgDir, err = expandPath(c.Paths.ProgDir); err != nil {
		return fmt.Errorf("paths.prog_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PipelineConfig) == "" {
		c.Paths.PipelineConfig = filepath.Join(c.Paths.ProgDir, defaultPipelineName)
	}
	if c.Paths.PipelineConfig, err = expandPath(c.Paths.PipelineConfig); err != nil {
		return fmt.Errorf("paths.pipeline_config: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCarving() error {
	c.Carving.ArtifactName = strings.TrimSpace(c.Carving.ArtifactName)
	if c.Carving.ArtifactName == "" {
		c.Carving.ArtifactName = defaultArtifactName
	}
	c.Carving.MaxSize = strings.TrimSpace(c.Carving.MaxSize)
	if c.Carving.MaxSize == "" {
		c.Carving.MaxSize = defaultCarveMaxSize
	}
	size, err := humanize.ParseBytes(c.Carving.MaxSize)
	if err != nil {
		return fmt.Errorf("carving.max_size: %w", err)
	}
	c.Carving.MaxBytes = int64(size)
	return nil
}

func (c *Config) normalizeScheduler() {
	c.Scheduler.QueueBackend = strings.ToLower(strings.TrimSpace(c.Scheduler.QueueBackend))
	if c.Scheduler.QueueBackend == "" {
		c.Scheduler.QueueBackend = defaultQueueBackend
	}
}

func (c *Config) normalizeImage() {
	c.Image.Format = strings.ToLower(strings.TrimSpace(c.Image.Format))
	if c.Image.Format == "" {
		c.Image.Format = defaultImageFormat
	}
	if c.Image.SectorSize == 0 {
		c.Image.SectorSize = defaultSectorSize
	}
	patterns := make([]string, 0, len(c.Image.Include))
	for _, pattern := range c.Image.Include {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	c.Image.Include = patterns
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.FileName = strings.TrimSpace(c.Metrics.FileName)
	if c.Metrics.FileName == "" {
		c.Metrics.FileName = defaultMetricsFileName
	}
}
