package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/config"
	"triage/internal/image"
	"triage/internal/metrics"
	"triage/internal/queue"
)

// Status is a module's verdict for one task.
type Status int

const (
	// StatusOK continues the chain.
	StatusOK Status = iota
	// StatusStop ends the chain for this task without error.
	StatusStop
	// StatusFail ends the chain for this task and records a failure.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStop:
		return "stop"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// ErrModuleFailed is reported when a module returns StatusFail without an error.
var ErrModuleFailed = errors.New("module reported failure")

// Module is one analysis step. A pipeline reuses one instance for every task,
// and a task that times out may still be inside Run when the next task starts,
// so Run must not keep unsynchronized per-call state on the receiver.
type Module interface {
	Name() string
	// Run processes task. In whole-case mode task.Kind is queue.KindReport.
	Run(ctx context.Context, task queue.Task) (Status, error)
}

// Deps is the dependency bundle handed to module constructors.
type Deps struct {
	Config    *config.Config
	Store     *casedb.Store
	Queue     queue.Queue
	Image     image.Image
	FS        afero.Fs
	OutputDir string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Constructor builds a module from its configured arguments.
type Constructor func(deps Deps, args Args) (Module, error)
