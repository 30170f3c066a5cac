package modules_test

import (
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/modules"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

func shellModule(t *testing.T, f *fixture, script string, extra pipeline.Args) pipeline.Module {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exec tests need a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	args := pipeline.Args{"command": []any{sh, "-c", script}}
	for k, v := range extra {
		args[k] = v
	}
	return f.module(t, modules.ExecName, args)
}

func TestExecModuleMergesAttributes(t *testing.T) {
	f := newFixture(t)
	id := f.addFile(t, "hello.txt", []byte("hello world"))
	mod := shellModule(t, f, `printf '{"status":"ok","attributes":{"input":'; cat; printf '}}'`, pipeline.Args{
		"name": "echo",
		"args": map[string]any{"mode": "fast"},
	})
	assert.Equal(t, "echo", mod.Name())

	status, err := mod.Run(f.ctx, fileTask(id))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	attr, err := f.store.Attribute(f.ctx, id, "echo.input")
	require.NoError(t, err)
	assert.Equal(t, "file_analysis", attr.Get("kind").String())
	assert.Equal(t, "hello.txt", attr.Get("file.name").String())
	assert.Equal(t, "/evidence/hello.txt", attr.Get("file.content_path").String())
	assert.Equal(t, "fast", attr.Get("args.mode").String())
}

func TestExecModuleStatuses(t *testing.T) {
	f := newFixture(t)
	id := f.addFile(t, "hello.txt", []byte("hello world"))

	stop := shellModule(t, f, `cat >/dev/null; echo '{"status":"stop","attributes":{"score":7}}'`, nil)
	status, err := stop.Run(f.ctx, fileTask(id))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusStop, status)
	score, err := f.store.Attribute(f.ctx, id, "exec.score")
	require.NoError(t, err)
	assert.Equal(t, int64(7), score.Result().Int())

	reported := shellModule(t, f, `cat >/dev/null; echo '{"status":"fail","error":"parser crashed"}'`, nil)
	status, err = reported.Run(f.ctx, fileTask(id))
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrExternalTool)
	assert.Contains(t, err.Error(), "parser crashed")
}

func TestExecModuleFailures(t *testing.T) {
	f := newFixture(t)
	id := f.addFile(t, "hello.txt", []byte("hello world"))

	exitCode := shellModule(t, f, `cat >/dev/null; echo broken >&2; exit 3`, nil)
	status, err := exitCode.Run(f.ctx, fileTask(id))
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrExternalTool)
	assert.Contains(t, err.Error(), "exited with code 3")

	badJSON := shellModule(t, f, `cat >/dev/null; echo not-json`, nil)
	status, err = badJSON.Run(f.ctx, fileTask(id))
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrExternalTool)

	slow := shellModule(t, f, `exec sleep 5`, pipeline.Args{"timeout": "100ms"})
	status, err = slow.Run(f.ctx, fileTask(id))
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrTimeout)
}

func TestExecModuleCaseLevelTask(t *testing.T) {
	f := newFixture(t)
	mod := shellModule(t, f, `cat >/dev/null; echo '{"attributes":{"done":true}}'`, nil)

	status, err := mod.Run(f.ctx, queue.Task{Kind: queue.KindReport})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	attr, err := f.store.Attribute(f.ctx, 0, "exec.done")
	require.NoError(t, err)
	assert.True(t, attr.Result().Bool())
}

func TestExecModuleRequiresCommand(t *testing.T) {
	f := newFixture(t)
	reg, ok := f.reg.Lookup(modules.ExecName)
	require.True(t, ok)
	_, err := reg.New(f.deps(), pipeline.Args{})
	assert.Error(t, err)
}
