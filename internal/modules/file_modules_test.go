package modules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/casedb"
	"triage/internal/modules"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

const helloMD5 = "5eb63bbbe01eeed093cb22bb8f5acdc3"

func TestRegistryListsBuiltins(t *testing.T) {
	reg, err := modules.NewRegistry()
	require.NoError(t, err)

	names := make([]string, 0)
	for _, r := range reg.Modules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"carve_extract", "exec", "filetype", "hash", "skip_known", "summary"}, names)

	carve, ok := reg.Lookup(modules.CarveExtractName)
	require.True(t, ok)
	assert.True(t, carve.Supports(queue.KindCarve))
	assert.False(t, carve.Supports(queue.KindFileAnalysis))

	execReg, ok := reg.Lookup(modules.ExecName)
	require.True(t, ok)
	assert.True(t, execReg.Supports(queue.KindReport))
}

func TestHashModule(t *testing.T) {
	f := newFixture(t)
	id := f.addFile(t, "hello.txt", []byte("hello world"))
	mod := f.module(t, modules.HashName, pipeline.Args{"algorithms": []any{"md5", "sha256"}})

	status, err := mod.Run(f.ctx, fileTask(id))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	file, err := f.store.File(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, helloMD5, file.MD5)

	sha, err := f.store.Attribute(f.ctx, id, "hash.sha256")
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sha.String())
}

func TestHashModuleMissingContentFails(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.AddFile(f.ctx, casedb.File{Name: "ghost.bin"})
	require.NoError(t, err)
	mod := f.module(t, modules.HashName, nil)

	status, err := mod.Run(f.ctx, fileTask(id))
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrNotFound)

	status, err = mod.Run(f.ctx, fileTask(999))
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestHashModuleRejectsUnknownAlgorithm(t *testing.T) {
	f := newFixture(t)
	reg, ok := f.reg.Lookup(modules.HashName)
	require.True(t, ok)
	_, err := reg.New(f.deps(), pipeline.Args{"algorithms": []any{"crc32"}})
	assert.Error(t, err)
}

func TestSkipKnownModule(t *testing.T) {
	f := newFixture(t)
	hash := f.module(t, modules.HashName, nil)
	skip := f.module(t, modules.SkipKnownName, pipeline.Args{
		"known_md5":     []any{"5EB63BBBE01EEED093CB22BB8F5ACDC3"},
		"known_bad_md5": "0cc175b9c0f1b6a831c399e269772661",
	})

	good := f.addFile(t, "hello.txt", []byte("hello world"))
	bad := f.addFile(t, "a.txt", []byte("a"))
	other := f.addFile(t, "b.txt", []byte("b"))
	unhashed, err := f.store.AddFile(f.ctx, casedb.File{Name: "raw.bin"})
	require.NoError(t, err)

	for _, id := range []int64{good, bad, other} {
		_, err := hash.Run(f.ctx, fileTask(id))
		require.NoError(t, err)
	}

	status, err := skip.Run(f.ctx, fileTask(good))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusStop, status)

	status, err = skip.Run(f.ctx, fileTask(bad))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	status, err = skip.Run(f.ctx, fileTask(other))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	status, err = skip.Run(f.ctx, fileTask(unhashed))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	for id, want := range map[int64]casedb.KnownStatus{good: casedb.KnownGood, bad: casedb.KnownBad, other: casedb.KnownUnknown} {
		file, err := f.store.File(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, file.Known, "file %d", id)
	}
}

func TestFileTypeModule(t *testing.T) {
	f := newFixture(t)
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 32)...)
	pngID := f.addFile(t, "picture.dat", png)
	txtID := f.addFile(t, "notes", []byte("plain text notes\n"))
	mod := f.module(t, modules.FileTypeName, nil)

	for _, id := range []int64{pngID, txtID} {
		status, err := mod.Run(f.ctx, fileTask(id))
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusOK, status)
	}

	mime, err := f.store.Attribute(f.ctx, pngID, modules.AttrMIME)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime.String())
	ext, err := f.store.Attribute(f.ctx, pngID, modules.AttrExtension)
	require.NoError(t, err)
	assert.Equal(t, ".png", ext.String())

	mime, err = f.store.Attribute(f.ctx, txtID, modules.AttrMIME)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime.String())
}
