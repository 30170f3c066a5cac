package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/queue"
	"triage/internal/services"
)

// Outcome is the result of one task's pass through a pipeline.
type Outcome struct {
	Status Status
	// Module is the module that stopped or failed the chain.
	Module  string
	Err     error
	Elapsed time.Duration
}

// Failed reports whether the task failed.
func (o Outcome) Failed() bool {
	return o.Status == StatusFail
}

// Pipeline is an ordered module chain bound to one task kind.
type Pipeline struct {
	kind    queue.Kind
	modules []Module
	timeout time.Duration
	grace   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// DefaultCancelGrace is how long a timed-out task's chain may take to honour
// cancellation before it is abandoned.
const DefaultCancelGrace = 5 * time.Second

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTaskTimeout bounds each RunTask call. Zero disables the bound.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithCancelGrace overrides DefaultCancelGrace.
func WithCancelGrace(grace time.Duration) Option {
	return func(p *Pipeline) {
		if grace >= 0 {
			p.grace = grace
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records module outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New builds a pipeline. An empty module list is legal.
func New(kind queue.Kind, modules []Module, opts ...Option) *Pipeline {
	p := &Pipeline{
		kind:    kind,
		modules: append([]Module(nil), modules...),
		grace:   DefaultCancelGrace,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p
}

// Kind returns the task kind the pipeline serves.
func (p *Pipeline) Kind() queue.Kind {
	return p.kind
}

// IsEmpty reports whether the chain has no modules.
func (p *Pipeline) IsEmpty() bool {
	return p == nil || len(p.modules) == 0
}

// ModuleNames lists the chain in execution order.
func (p *Pipeline) ModuleNames() []string {
	if p == nil {
		return nil
	}
	names := make([]string, len(p.modules))
	for i, m := range p.modules {
		names[i] = m.Name()
	}
	return names
}

// RunTask runs every module in order for task id. The first failure ends the
// chain for this task only and is returned in the Outcome; it never escapes as
// a panic or a run-level error.
func (p *Pipeline) RunTask(ctx context.Context, id int64) Outcome {
	task := queue.Task{Kind: p.kind, ID: id}
	ctx = services.WithTaskID(ctx, id)
	ctx = services.WithTaskKind(ctx, string(p.kind))
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()

	var outcome Outcome
	if p.timeout > 0 {
		outcome = p.runWithTimeout(ctx, task, logger)
	} else {
		outcome = p.runChain(ctx, task, logger, nil)
	}
	outcome.Elapsed = time.Since(start)

	switch outcome.Status {
	case StatusFail:
		logging.WarnWithContext(logger, "task failed",
			"task_failure",
			logging.String(logging.FieldModule, outcome.Module),
			logging.String("reason", services.FailureReason(outcome.Err)),
			logging.Error(outcome.Err),
			logging.Duration("elapsed", outcome.Elapsed),
			logging.String(logging.FieldErrorHint, "inspect the module output for this task; remaining modules were skipped"),
			logging.String(logging.FieldImpact, "task skipped, drain continues"),
		)
	default:
		logger.Debug("task complete",
			logging.String(logging.FieldEventType, "task_complete"),
			logging.String("status", outcome.Status.String()),
			logging.Duration("elapsed", outcome.Elapsed),
		)
	}
	return outcome
}

// runWithTimeout bounds the chain. After the deadline the chain gets the
// cancel grace period to return so the next task does not overlap with it; a
// chain still running after that is abandoned.
func (p *Pipeline) runWithTimeout(ctx context.Context, task queue.Task, logger *slog.Logger) Outcome {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var current atomic.Value
	current.Store("")
	done := make(chan Outcome, 1)
	go func() {
		done <- p.runChain(ctx, task, logger, &current)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-ctx.Done():
	}

	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		err = services.Wrap(services.ErrTimeout, "pipeline", "run task",
			fmt.Sprintf("%s exceeded %s", task, p.timeout), err)
	}
	outcome := Outcome{Status: StatusFail, Err: err}

	grace := time.NewTimer(p.grace)
	defer grace.Stop()
	select {
	case <-done:
		outcome.Module = current.Load().(string)
		return outcome
	case <-grace.C:
	}

	outcome.Module = current.Load().(string)
	logging.WarnWithContext(logger, "abandoning task",
		"task_abandoned",
		logging.String(logging.FieldModule, outcome.Module),
		logging.Duration("timeout", p.timeout),
		logging.Duration("grace", p.grace),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "a module ignored cancellation; raise scheduler.task_timeout or fix the module"),
	)
	return outcome
}

func (p *Pipeline) runChain(ctx context.Context, task queue.Task, logger *slog.Logger, current *atomic.Value) Outcome {
	for _, m := range p.modules {
		if err := ctx.Err(); err != nil {
			return Outcome{Status: StatusFail, Module: m.Name(), Err: err}
		}
		if current != nil {
			current.Store(m.Name())
		}
		status, err := p.runModule(ctx, m, task, logger)
		switch {
		case err != nil || status == StatusFail:
			if err == nil {
				err = ErrModuleFailed
			}
			return Outcome{Status: StatusFail, Module: m.Name(), Err: err}
		case status == StatusStop:
			return Outcome{Status: StatusStop, Module: m.Name()}
		}
	}
	return Outcome{Status: StatusOK}
}

// runModule invokes one module, converting a panic into ErrModuleFault.
func (p *Pipeline) runModule(ctx context.Context, m Module, task queue.Task, logger *slog.Logger) (status Status, err error) {
	name := m.Name()
	ctx = services.WithModule(ctx, name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			status = StatusFail
			err = services.Wrap(services.ErrModuleFault, name, "run", fmt.Sprintf("panic: %v", r), nil)
			logger.Debug("module panic stack",
				logging.String(logging.FieldModule, name),
				logging.String("stack", string(debug.Stack())),
			)
		}
		if err != nil && status != StatusFail {
			status = StatusFail
		}
		p.metrics.ModuleRun(string(task.Kind), name, status.String(), time.Since(start))
	}()
	return m.Run(ctx, task)
}

// Run executes the chain once over the whole case. Modules receive a task of
// kind queue.KindReport. Any failure is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.IsEmpty() {
		return nil
	}
	task := queue.Task{Kind: queue.KindReport}
	ctx = services.WithTaskKind(ctx, string(queue.KindReport))
	logger := logging.WithContext(ctx, p.logger)

	for _, m := range p.modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("reporting module start",
			logging.String(logging.FieldEventType, "module_start"),
			logging.String(logging.FieldModule, m.Name()),
		)
		status, err := p.runModule(ctx, m, task, logger)
		if err != nil || status == StatusFail {
			if err == nil {
				err = ErrModuleFailed
			}
			return fmt.Errorf("reporting module %s: %w", m.Name(), err)
		}
		if status == StatusStop {
			logger.Info("reporting chain stopped",
				logging.String(logging.FieldModule, m.Name()),
			)
			return nil
		}
	}
	return nil
}
