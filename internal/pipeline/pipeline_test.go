package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type stubModule struct {
	name string
	rec  *recorder
	run  func(ctx context.Context, task queue.Task) (pipeline.Status, error)
}

func (m *stubModule) Name() string { return m.name }

func (m *stubModule) Run(ctx context.Context, task queue.Task) (pipeline.Status, error) {
	if m.rec != nil {
		m.rec.add(m.name + ":" + task.String())
	}
	if m.run == nil {
		return pipeline.StatusOK, nil
	}
	return m.run(ctx, task)
}

func okModule(name string, rec *recorder) *stubModule {
	return &stubModule{name: name, rec: rec}
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestRunTaskRunsModulesInOrder(t *testing.T) {
	rec := &recorder{}
	p := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{okModule("a", rec), okModule("b", rec)})

	outcome := p.RunTask(context.Background(), 3)
	if outcome.Status != pipeline.StatusOK || outcome.Err != nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	equalCalls(t, rec.snapshot(), []string{"a:file_analysis(3)", "b:file_analysis(3)"})
}

func TestRunTaskFailureIsIsolated(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	failing := &stubModule{name: "a", rec: rec, run: func(_ context.Context, task queue.Task) (pipeline.Status, error) {
		if task.ID == 1 {
			return pipeline.StatusFail, boom
		}
		return pipeline.StatusOK, nil
	}}
	p := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{failing, okModule("b", rec)})

	first := p.RunTask(context.Background(), 1)
	if !first.Failed() || first.Module != "a" || !errors.Is(first.Err, boom) {
		t.Fatalf("unexpected first outcome %+v", first)
	}
	second := p.RunTask(context.Background(), 2)
	if second.Status != pipeline.StatusOK {
		t.Fatalf("second task should succeed, got %+v", second)
	}
	equalCalls(t, rec.snapshot(), []string{"a:file_analysis(1)", "a:file_analysis(2)", "b:file_analysis(2)"})
}

func TestRunTaskFailWithoutError(t *testing.T) {
	mod := &stubModule{name: "quiet", run: func(context.Context, queue.Task) (pipeline.Status, error) {
		return pipeline.StatusFail, nil
	}}
	outcome := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{mod}).RunTask(context.Background(), 1)
	if !errors.Is(outcome.Err, pipeline.ErrModuleFailed) {
		t.Fatalf("expected ErrModuleFailed, got %v", outcome.Err)
	}
}

func TestRunTaskErrorWithOKStatusFails(t *testing.T) {
	mod := &stubModule{name: "sloppy", run: func(context.Context, queue.Task) (pipeline.Status, error) {
		return pipeline.StatusOK, errors.New("oops")
	}}
	outcome := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{mod}).RunTask(context.Background(), 1)
	if !outcome.Failed() || outcome.Module != "sloppy" {
		t.Fatalf("expected failure from sloppy, got %+v", outcome)
	}
}

func TestRunTaskStopEndsChainWithoutFailure(t *testing.T) {
	rec := &recorder{}
	stop := &stubModule{name: "stop", rec: rec, run: func(context.Context, queue.Task) (pipeline.Status, error) {
		return pipeline.StatusStop, nil
	}}
	p := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{okModule("a", rec), stop, okModule("c", rec)})

	outcome := p.RunTask(context.Background(), 5)
	if outcome.Status != pipeline.StatusStop || outcome.Failed() || outcome.Module != "stop" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	equalCalls(t, rec.snapshot(), []string{"a:file_analysis(5)", "stop:file_analysis(5)"})
}

func TestRunTaskRecoversPanic(t *testing.T) {
	mod := &stubModule{name: "crashy", run: func(context.Context, queue.Task) (pipeline.Status, error) {
		panic("nil map")
	}}
	outcome := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{mod}).RunTask(context.Background(), 1)
	if !outcome.Failed() {
		t.Fatalf("expected failure, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, services.ErrModuleFault) {
		t.Fatalf("expected ErrModuleFault, got %v", outcome.Err)
	}
}

func TestRunTaskCarriesTaskContext(t *testing.T) {
	var gotID int64
	var gotKind, gotModule string
	var hasRequest bool
	mod := &stubModule{name: "ctx", run: func(ctx context.Context, _ queue.Task) (pipeline.Status, error) {
		gotID, _ = services.TaskIDFromContext(ctx)
		gotKind, _ = services.TaskKindFromContext(ctx)
		gotModule, _ = services.ModuleFromContext(ctx)
		_, hasRequest = services.RequestIDFromContext(ctx)
		return pipeline.StatusOK, nil
	}}
	pipeline.New(queue.KindCarve, []pipeline.Module{mod}).RunTask(context.Background(), 9)
	if gotID != 9 || gotKind != "carve" || gotModule != "ctx" || !hasRequest {
		t.Fatalf("context fields id=%d kind=%q module=%q request=%v", gotID, gotKind, gotModule, hasRequest)
	}
}

func TestRunTaskTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := &stubModule{name: "stuck", run: func(context.Context, queue.Task) (pipeline.Status, error) {
		<-release
		return pipeline.StatusOK, nil
	}}
	p := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{okModule("a", nil), stuck},
		pipeline.WithTaskTimeout(20*time.Millisecond),
		pipeline.WithCancelGrace(10*time.Millisecond),
	)

	outcome := p.RunTask(context.Background(), 1)
	if !outcome.Failed() || !errors.Is(outcome.Err, services.ErrTimeout) {
		t.Fatalf("expected timeout failure, got %+v", outcome)
	}
	if services.FailureReason(outcome.Err) != "timeout" {
		t.Fatalf("reason = %q", services.FailureReason(outcome.Err))
	}
	if outcome.Module != "stuck" {
		t.Fatalf("expected the hung module to be reported, got %q", outcome.Module)
	}
}

func TestRunTaskTimeoutWaitsForCancelledChain(t *testing.T) {
	var finished atomic.Bool
	slow := &stubModule{name: "slow", run: func(ctx context.Context, _ queue.Task) (pipeline.Status, error) {
		<-ctx.Done()
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return pipeline.StatusFail, ctx.Err()
	}}
	p := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{slow},
		pipeline.WithTaskTimeout(10*time.Millisecond),
		pipeline.WithCancelGrace(time.Second),
	)

	outcome := p.RunTask(context.Background(), 1)
	if !finished.Load() {
		t.Fatal("RunTask returned while the module was still running")
	}
	if !errors.Is(outcome.Err, services.ErrTimeout) || outcome.Module != "slow" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestRunTaskTimeoutNotHitForFastModules(t *testing.T) {
	p := pipeline.New(queue.KindFileAnalysis, []pipeline.Module{okModule("a", nil)}, pipeline.WithTaskTimeout(time.Second))
	if outcome := p.RunTask(context.Background(), 1); outcome.Status != pipeline.StatusOK {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestEmptyPipeline(t *testing.T) {
	p := pipeline.New(queue.KindCarve, nil)
	if !p.IsEmpty() {
		t.Fatal("expected empty pipeline")
	}
	if outcome := p.RunTask(context.Background(), 1); outcome.Status != pipeline.StatusOK {
		t.Fatalf("empty pipeline outcome %+v", outcome)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("empty run: %v", err)
	}
	var nilPipeline *pipeline.Pipeline
	if !nilPipeline.IsEmpty() {
		t.Fatal("nil pipeline should be empty")
	}
}

func TestRunWholeCase(t *testing.T) {
	rec := &recorder{}
	p := pipeline.New(queue.KindReport, []pipeline.Module{okModule("summary", rec), okModule("export", rec)})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	equalCalls(t, rec.snapshot(), []string{"summary:report(0)", "export:report(0)"})
	if got := p.ModuleNames(); len(got) != 2 || got[0] != "summary" || got[1] != "export" {
		t.Fatalf("ModuleNames = %v", got)
	}
}

func TestRunWholeCaseReturnsFailures(t *testing.T) {
	boom := errors.New("disk full")
	failing := &stubModule{name: "summary", run: func(context.Context, queue.Task) (pipeline.Status, error) {
		return pipeline.StatusFail, boom
	}}
	if err := pipeline.New(queue.KindReport, []pipeline.Module{failing}).Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected reporting error, got %v", err)
	}

	crashy := &stubModule{name: "crashy", run: func(context.Context, queue.Task) (pipeline.Status, error) {
		panic("bad")
	}}
	if err := pipeline.New(queue.KindReport, []pipeline.Module{crashy}).Run(context.Background()); !errors.Is(err, services.ErrModuleFault) {
		t.Fatalf("expected module fault, got %v", err)
	}
}
