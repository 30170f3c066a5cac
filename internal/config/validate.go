package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCarving(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.PipelineConfig) == "" {
		return errors.New("paths.pipeline_config must be set")
	}
	if strings.TrimSpace(c.Paths.ProgDir) == "" {
		return errors.New("paths.prog_dir must be set")
	}
	return nil
}

func (c *Config) validateCarving() error {
	if strings.ContainsRune(c.Carving.ArtifactName, filepath.Separator) {
		return fmt.Errorf("carving.artifact_name %q must be a file name, not a path", c.Carving.ArtifactName)
	}
	if c.Carving.Enabled && c.Carving.MaxBytes <= 0 {
		return errors.New("carving.max_size must be positive when carving.enabled is true")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	switch c.Scheduler.QueueBackend {
	case QueueBackendMemory, QueueBackendSQLite:
	default:
		return fmt.Errorf("scheduler.queue_backend must be %q or %q, got %q", QueueBackendMemory, QueueBackendSQLite, c.Scheduler.QueueBackend)
	}
	if c.Scheduler.TaskTimeout < 0 {
		return errors.New("scheduler.task_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateImage() error {
	switch c.Image.Format {
	case ImageFormatAuto, ImageFormatRaw, ImageFormatDir:
	default:
		return fmt.Errorf("image.format must be one of auto, raw, dir; got %q", c.Image.Format)
	}
	if c.Image.SectorSize <= 0 || c.Image.SectorSize&(c.Image.SectorSize-1) != 0 {
		return fmt.Errorf("image.sector_size must be a positive power of two, got %d", c.Image.SectorSize)
	}
	for _, pattern := range c.Image.Include {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("image.include pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}
