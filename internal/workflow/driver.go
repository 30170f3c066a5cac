package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

// ErrNoPipelines is returned when neither the file analysis nor the reporting
// pipeline could be built.
var ErrNoPipelines = errors.New("no usable pipelines")

// ErrCarvePrep marks a carve preparation failure. The run continues without
// carving.
var ErrCarvePrep = errors.New("carve preparation failed")

// PipelineFactory builds the pipeline for a task kind.
type PipelineFactory interface {
	CreatePipeline(kind queue.Kind) (*pipeline.Pipeline, error)
}

// Driver runs the scheduler state machine over one queue.
type Driver struct {
	queue     queue.Queue
	factory   PipelineFactory
	logger    *slog.Logger
	metrics   *metrics.Metrics
	runID     string
	now       func() time.Time
	state     State
	loaded    bool
	pipelines map[queue.Kind]*pipeline.Pipeline
	summary   Summary
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records task outcomes and transitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithRunID tags the summary.
func WithRunID(id string) Option {
	return func(d *Driver) {
		d.runID = id
	}
}

// NewDriver creates a driver in the Idle state.
func NewDriver(q queue.Queue, factory PipelineFactory, opts ...Option) *Driver {
	d := &Driver{
		queue:     q,
		factory:   factory,
		logger:    logging.NewNop(),
		now:       time.Now,
		state:     StateIdle,
		pipelines: make(map[queue.Kind]*pipeline.Pipeline),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "scheduler")
	d.summary = newSummary(d.runID)
	return d
}

// State returns the current scheduler state.
func (d *Driver) State() State {
	return d.state
}

// Pipeline returns the pipeline bound to kind, or nil.
func (d *Driver) Pipeline(kind queue.Kind) *pipeline.Pipeline {
	return d.pipelines[kind]
}

// LoadPipelines builds the file analysis, carve and reporting pipelines. A
// kind that fails to build is logged and left unbound. The error is non-nil
// only when neither file analysis nor reporting is available.
func (d *Driver) LoadPipelines() error {
	if d.loaded {
		return d.checkPipelines()
	}
	d.loaded = true
	for _, kind := range []queue.Kind{queue.KindFileAnalysis, queue.KindCarve, queue.KindReport} {
		p, err := d.factory.CreatePipeline(kind)
		if err != nil {
			logging.WarnWithContext(d.logger, "pipeline unavailable",
				"pipeline_unavailable",
				logging.String(logging.FieldTaskKind, string(kind)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the pipeline config for this kind"),
				logging.String(logging.FieldImpact, "tasks of this kind will be skipped"),
			)
			continue
		}
		d.pipelines[kind] = p
		d.logger.Info("pipeline ready",
			logging.String(logging.FieldTaskKind, string(kind)),
			logging.Any("modules", p.ModuleNames()),
		)
	}
	return d.checkPipelines()
}

func (d *Driver) checkPipelines() error {
	if d.pipelines[queue.KindFileAnalysis] == nil && d.pipelines[queue.KindReport] == nil {
		return services.Wrap(services.ErrConfiguration, "scheduler", "load pipelines",
			"neither the file analysis nor the reporting pipeline could be built", ErrNoPipelines)
	}
	return nil
}

// Run drains the queue and runs the reporting pipeline. Individual task
// failures are recorded in the summary and do not fail the run.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	if d.state != StateIdle {
		return d.summary, fmt.Errorf("scheduler already ran (state %s)", d.state)
	}
	d.summary.StartedAt = d.now()
	if err := d.LoadPipelines(); err != nil {
		return d.finish(err)
	}

	if d.hasTaskPipeline() {
		if err := d.transition(StateDraining); err != nil {
			return d.finish(err)
		}
		if err := d.drain(ctx); err != nil {
			return d.finish(err)
		}
	} else {
		d.logger.Info("no task pipeline configured; skipping drain")
	}

	if err := d.transition(StateReporting); err != nil {
		return d.finish(err)
	}
	if err := d.report(ctx); err != nil {
		return d.finish(err)
	}
	if err := d.transition(StateDone); err != nil {
		return d.finish(err)
	}
	return d.finish(nil)
}

func (d *Driver) hasTaskPipeline() bool {
	for _, kind := range []queue.Kind{queue.KindFileAnalysis, queue.KindCarve} {
		if p := d.pipelines[kind]; p != nil && !p.IsEmpty() {
			return true
		}
	}
	return false
}

func (d *Driver) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, ok, err := d.queue.Next(ctx)
		if err != nil {
			return fmt.Errorf("next task: %w", err)
		}
		if !ok {
			d.logger.Info("queue drained", logging.Int("tasks", d.summary.Totals().Processed))
			return nil
		}
		d.dispatch(ctx, task)
	}
}

func (d *Driver) dispatch(ctx context.Context, task queue.Task) {
	stats := d.summary.stats(task.Kind)
	stats.Processed++

	p := d.pipelines[task.Kind]
	if task.Kind == queue.KindReport {
		// reporting runs once over the case, never per task
		p = nil
	}
	switch {
	case p == nil:
		stats.Skipped++
		d.metrics.TaskProcessed(string(task.Kind), metrics.OutcomeSkipped)
		logging.WarnWithContext(d.logger, "skipping task",
			"task_skipped",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldTaskKind, string(task.Kind)),
			logging.String("reason", "no pipeline for task kind"),
			logging.String(logging.FieldImpact, "task dropped"),
		)
		return
	case p.IsEmpty():
		stats.Skipped++
		d.metrics.TaskProcessed(string(task.Kind), metrics.OutcomeSkipped)
		d.logger.Debug("empty pipeline; task not run",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.String(logging.FieldTaskKind, string(task.Kind)),
		)
		return
	}

	outcome := p.RunTask(ctx, task.ID)
	switch outcome.Status {
	case pipeline.StatusFail:
		stats.Failed++
		d.metrics.TaskProcessed(string(task.Kind), metrics.OutcomeFailed)
		d.summary.Failures = append(d.summary.Failures, TaskFailure{
			Task:   task.String(),
			Module: outcome.Module,
			Reason: services.FailureReason(outcome.Err),
			Error:  errorString(outcome.Err),
		})
	case pipeline.StatusStop:
		stats.Stopped++
		d.metrics.TaskProcessed(string(task.Kind), metrics.OutcomeStopped)
	default:
		stats.Succeeded++
		d.metrics.TaskProcessed(string(task.Kind), metrics.OutcomeOK)
	}
}

func (d *Driver) report(ctx context.Context) error {
	p := d.pipelines[queue.KindReport]
	if p.IsEmpty() {
		d.logger.Info("no reporting modules configured")
		return nil
	}
	start := d.now()
	err := p.Run(ctx)
	d.metrics.ReportingDuration(d.now().Sub(start))
	if err != nil {
		return fmt.Errorf("reporting pipeline: %w", err)
	}
	d.logger.Info("reporting complete", logging.Duration("elapsed", d.now().Sub(start)))
	return nil
}

func (d *Driver) transition(to State) error {
	from := d.state
	if err := checkTransition(from, to); err != nil {
		return err
	}
	d.state = to
	d.summary.State = to
	d.metrics.Transition(string(from), string(to))
	d.logger.Info("scheduler state",
		logging.String(logging.FieldEventType, "state_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
	)
	return nil
}

// AddWarning records a non-fatal problem in the summary.
func (d *Driver) AddWarning(msg string) {
	d.summary.Warnings = append(d.summary.Warnings, msg)
}

func (d *Driver) finish(err error) (Summary, error) {
	if err != nil && !d.state.IsTerminal() {
		if terr := d.transition(StateFailed); terr != nil {
			err = errors.Join(err, terr)
		}
		d.summary.Error = err.Error()
		logging.ErrorWithContext(d.logger, "run failed",
			"run_failed",
			logging.String("reason", services.FailureReason(err)),
			logging.Error(err),
		)
	}
	d.summary.FinishedAt = d.now()
	return d.summary, err
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
