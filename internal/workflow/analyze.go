package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"triage/internal/carving"
	"triage/internal/casedb"
	"triage/internal/config"
	"triage/internal/image"
	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

// Request describes one analysis run.
type Request struct {
	Config    *config.Config
	ImagePath string
	// OutputDir must already exist; the caller owns creating and locking it.
	OutputDir string
	RunID     string
	Registry  *pipeline.Registry
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	// FS defaults to the operating system.
	FS afero.Fs
}

// Analyze runs the whole triage flow for one image. Setup failures are
// returned before any task is dequeued; the summary is persisted in the case
// database whenever the store could be opened.
func Analyze(ctx context.Context, req Request) (summary Summary, err error) {
	if req.Config == nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "workflow", "analyze", "config is required", nil)
	}
	if req.Registry == nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "workflow", "analyze", "module registry is required", nil)
	}
	fsys := req.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	if req.RunID != "" {
		logger = logger.With(logging.String(logging.FieldCorrelationID, req.RunID))
	}

	store, err := casedb.Open(ctx, req.OutputDir)
	if err != nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "workflow", "open case database", req.OutputDir, err)
	}
	defer store.Close()

	begin := time.Now()
	defer func() {
		if summary.State == "" {
			summary = newSummary(req.RunID)
		}
		if summary.StartedAt.IsZero() {
			summary.StartedAt = begin
		}
		if summary.FinishedAt.IsZero() {
			summary.FinishedAt = time.Now()
		}
		if err != nil && !summary.State.IsTerminal() {
			summary.State = StateFailed
			summary.Error = err.Error()
		}
		recordRun(context.WithoutCancel(ctx), store, req.ImagePath, summary, logger)
	}()

	q, err := queue.Open(ctx, req.Config, req.OutputDir, queue.WithLengthObserver(req.Metrics.QueueDepth))
	if err != nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "workflow", "open task queue", "", err)
	}
	defer q.Close()

	opts := image.OptionsFromConfig(req.Config)
	opts.FS = fsys
	img, err := image.Open(req.ImagePath, opts)
	if err != nil {
		return Summary{}, err
	}
	defer img.Close()
	logger.Info("image opened",
		logging.String("image", img.Path()),
		logging.String("format", img.Format()),
		logging.Int64("size", img.Size()),
	)

	manager := pipeline.NewManager(req.Registry, pipeline.Deps{
		Config:    req.Config,
		Store:     store,
		Queue:     q,
		Image:     img,
		FS:        fsys,
		OutputDir: req.OutputDir,
		Logger:    req.Logger,
		Metrics:   req.Metrics,
	})
	defer func() {
		if cerr := manager.Close(); cerr != nil {
			logger.Warn("close modules", logging.Error(cerr))
		}
	}()

	driver := NewDriver(q, manager,
		WithLogger(req.Logger),
		WithMetrics(req.Metrics),
		WithRunID(req.RunID),
	)
	if err := driver.LoadPipelines(); err != nil {
		return driver.finish(err)
	}

	if err := Seed(ctx, SeedRequest{
		Config:    req.Config,
		Image:     img,
		Store:     store,
		Queue:     q,
		FS:        fsys,
		OutputDir: req.OutputDir,
		Logger:    req.Logger,
		Metrics:   req.Metrics,
	}); err != nil {
		if !errors.Is(err, ErrCarvePrep) || ctx.Err() != nil {
			return driver.finish(err)
		}
		logging.WarnWithContext(logger, "carve preparation failed; continuing without carving", "carve_prep_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unallocated space is not carved in this run"),
		)
		driver.AddWarning(err.Error())
	}

	return driver.Run(ctx)
}

// SeedRequest carries what extraction and carve preparation need.
type SeedRequest struct {
	Config    *config.Config
	Image     image.Image
	Store     *casedb.Store
	Queue     queue.Queue
	FS        afero.Fs
	OutputDir string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Seed extracts every file into the case store, enqueueing one file analysis
// task per file, then prepares the carve artifact and enqueues its Carve task.
// Carve preparation always follows complete extraction; its failures are
// marked with ErrCarvePrep.
func Seed(ctx context.Context, req SeedRequest) error {
	logger := logging.NewComponentLogger(req.Logger, "workflow")
	sink := &extractionSink{store: req.Store, queue: req.Queue, metrics: req.Metrics}
	if err := req.Image.ExtractFiles(ctx, sink); err != nil {
		return fmt.Errorf("extract files: %w", err)
	}
	logger.Info("extraction complete",
		logging.Int("files", sink.files),
		logging.Int("unallocated_ranges", sink.ranges),
	)

	if req.Config == nil || !req.Config.Carving.Enabled {
		logger.Info("carving disabled")
		return nil
	}
	carver := &carving.SectorConcat{
		Image:    req.Image,
		Store:    req.Store,
		Queue:    req.Queue,
		FS:       req.FS,
		Dir:      filepath.Join(req.OutputDir, carving.DirName),
		Name:     req.Config.Carving.ArtifactName,
		MaxBytes: req.Config.Carving.MaxBytes,
		Logger:   req.Logger,
		Metrics:  req.Metrics,
	}
	if _, err := carver.ProcessSectors(ctx, false); err != nil {
		return fmt.Errorf("%w: %w", ErrCarvePrep, err)
	}
	return nil
}

func recordRun(ctx context.Context, store *casedb.Store, imagePath string, summary Summary, logger *slog.Logger) {
	if summary.RunID == "" {
		return
	}
	err := store.RecordRun(ctx, casedb.Run{
		ID:         summary.RunID,
		ImagePath:  imagePath,
		State:      string(summary.State),
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Error:      summary.Error,
		Summary:    summary.JSON(),
	})
	if err != nil {
		logger.Warn("record run summary", logging.Error(err))
	}
}
