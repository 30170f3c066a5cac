package config

const (
	projectConfigName      = "triage.toml"
	defaultUserConfigPath  = "~/.config/triage/config.toml"
	defaultPipelineName    = "pipeline.toml"
	defaultArtifactName    = "unalloc.bin"
	defaultCarveMaxSize    = "1GB"
	defaultQueueBackend    = QueueBackendMemory
	defaultImageFormat     = ImageFormatAuto
	defaultSectorSize      = 512
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultMetricsFileName = "metrics.prom"
)

// Queue backends.
const (
	QueueBackendMemory = "memory"
	QueueBackendSQLite = "sqlite"
)

// Image formats.
const (
	ImageFormatAuto = "auto"
	ImageFormatRaw  = "raw"
	ImageFormatDir  = "dir"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Carving: Carving{
			Enabled:      true,
			ArtifactName: defaultArtifactName,
			MaxSize:      defaultCarveMaxSize,
			MaxBytes:     1_000_000_000,
		},
		Scheduler: Scheduler{
			QueueBackend: defaultQueueBackend,
		},
		Image: Image{
			Format:     defaultImageFormat,
			SectorSize: defaultSectorSize,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Enabled:  true,
			FileName: defaultMetricsFileName,
		},
	}
}
