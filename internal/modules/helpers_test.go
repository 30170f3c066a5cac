package modules_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"triage/internal/casedb"
	"triage/internal/modules"
	"triage/internal/pipeline"
	"triage/internal/queue"
)

type fixture struct {
	ctx   context.Context
	store *casedb.Store
	fs    afero.Fs
	queue *queue.MemoryQueue
	out   string
	reg   *pipeline.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := casedb.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	reg, err := modules.NewRegistry()
	require.NoError(t, err)
	return &fixture{
		ctx:   context.Background(),
		store: store,
		fs:    afero.NewMemMapFs(),
		queue: queue.NewMemoryQueue(),
		out:   "/case/out",
		reg:   reg,
	}
}

func (f *fixture) deps() pipeline.Deps {
	return pipeline.Deps{Store: f.store, Queue: f.queue, FS: f.fs, OutputDir: f.out}
}

func (f *fixture) module(t *testing.T, name string, args pipeline.Args) pipeline.Module {
	t.Helper()
	reg, ok := f.reg.Lookup(name)
	require.True(t, ok, "module %s not registered", name)
	mod, err := reg.New(f.deps(), args)
	require.NoError(t, err)
	return mod
}

// addFile writes content to the memory filesystem and records the file.
func (f *fixture) addFile(t *testing.T, name string, content []byte) int64 {
	t.Helper()
	contentPath := "/evidence/" + name
	require.NoError(t, afero.WriteFile(f.fs, contentPath, content, 0o644))
	id, err := f.store.AddFile(f.ctx, casedb.File{
		Name:        name,
		ParentPath:  "evidence",
		Size:        int64(len(content)),
		ContentPath: contentPath,
	})
	require.NoError(t, err)
	return id
}

func fileTask(id int64) queue.Task {
	return queue.Task{Kind: queue.KindFileAnalysis, ID: id}
}
