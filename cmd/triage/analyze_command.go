package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/modules"
	"triage/internal/pipeline"
	"triage/internal/preflight"
	"triage/internal/textutil"
	"triage/internal/workflow"
)

type analyzeOptions struct {
	configPath   string
	pipelinePath string
	outputDir    string
	verbose      bool
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze IMAGE",
		Short: "Analyze a disk image and write a case directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Framework configuration file")
	cmd.Flags().StringVarP(&opts.pipelinePath, "pipeline", "p", "", "Pipeline configuration file (overrides paths.pipeline_config)")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "d", "", "Output directory (must not exist)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts analyzeOptions, imageArg string) error {
	cfg, cfgPath, cfgExists, err := config.Load(strings.TrimSpace(opts.configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return err
	}

	imagePath, err := config.ExpandPath(imageArg)
	if err != nil {
		return fmt.Errorf("resolve image path: %w", err)
	}
	outDir, err := cfg.OutputDirFor(imagePath)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	// A missing or malformed pipeline config is reported by the pipeline manager.
	pipelineCfg, _ := pipeline.LoadPipelineConfig(cfg.Paths.PipelineConfig)
	if err := reportPreflight(stderr, preflight.RunAll(cfg, imagePath, outDir, pipelineCfg)); err != nil {
		return err
	}

	lock := flock.New(outDir + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another triage run is writing %s", outDir)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	if err := os.Mkdir(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg, outDir)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if !cfgExists {
		logger.Info("no framework config file found", logging.String("path", cfgPath))
	}

	registry, err := modules.NewRegistry()
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	runID := uuid.NewString()
	logger.Info("starting image analysis",
		logging.String("image", imagePath),
		logging.String("output_dir", outDir),
		logging.String(logging.FieldCorrelationID, runID),
	)

	summary, runErr := workflow.Analyze(cmd.Context(), workflow.Request{
		Config:    cfg,
		ImagePath: imagePath,
		OutputDir: outDir,
		RunID:     runID,
		Registry:  registry,
		Logger:    logger,
		Metrics:   m,
	})

	if m != nil {
		if err := m.WriteTextfile(filepath.Join(outDir, cfg.Metrics.FileName)); err != nil {
			logging.WarnWithContext(logger, "metrics textfile not written", "metrics_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run metrics unavailable"),
			)
		}
	}

	renderSummary(cmd.OutOrStdout(), summary)
	if runErr != nil {
		logging.ErrorWithContext(logger, "image analysis failed", "run_failed",
			logging.Error(runErr),
			logging.String(logging.FieldCorrelationID, runID),
		)
		return runErr
	}
	logger.Info("image analysis complete",
		logging.String(logging.FieldCorrelationID, runID),
		logging.String("state", string(summary.State)),
		logging.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return nil
}

func applyOverrides(cfg *config.Config, opts analyzeOptions) error {
	if path := strings.TrimSpace(opts.pipelinePath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return fmt.Errorf("resolve pipeline config path: %w", err)
		}
		cfg.Paths.PipelineConfig = expanded
	}
	if dir := strings.TrimSpace(opts.outputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve output directory: %w", err)
		}
		cfg.Paths.OutputDir = expanded
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	return nil
}

func reportPreflight(w io.Writer, results []preflight.Result) error {
	for _, r := range results {
		if r.Passed {
			continue
		}
		label := "error"
		if r.Optional {
			label = "warning"
		}
		fmt.Fprintf(w, "preflight %s: %s: %s\n", label, r.Name, r.Detail)
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		return errors.New("preflight checks failed")
	}
	return nil
}

func renderSummary(w io.Writer, summary workflow.Summary) {
	if summary.State == "" {
		return
	}
	rows := make([][]string, 0, len(summary.Tasks)+1)
	for _, kind := range summary.Kinds() {
		stats := summary.Tasks[kind]
		rows = append(rows, statsRow(textutil.Label(string(kind)), *stats))
	}
	rows = append(rows, statsRow("Total", summary.Totals()))
	fmt.Fprint(w, textutil.RenderTable(
		[]string{"Kind", "Processed", "OK", "Stopped", "Failed", "Skipped"},
		rows,
		[]textutil.Align{textutil.AlignLeft, textutil.AlignRight, textutil.AlignRight, textutil.AlignRight, textutil.AlignRight, textutil.AlignRight},
	))

	elapsed := summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(w, "State: %s (%s, started %s)\n", summary.State, elapsed, humanize.Time(summary.StartedAt))
	for _, warning := range summary.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	for _, f := range summary.Failures {
		fmt.Fprintf(w, "  failed %s in %s: %s\n", f.Task, f.Module, f.Error)
	}
	if summary.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", summary.Error)
	}
}

func statsRow(label string, s workflow.KindStats) []string {
	return []string{
		label,
		humanize.Comma(int64(s.Processed)),
		humanize.Comma(int64(s.Succeeded)),
		humanize.Comma(int64(s.Stopped)),
		humanize.Comma(int64(s.Failed)),
		humanize.Comma(int64(s.Skipped)),
	}
}
