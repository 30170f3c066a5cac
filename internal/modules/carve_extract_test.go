package modules_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/casedb"
	"triage/internal/modules"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
)

var (
	jpegFile = append(append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x11}, 60)...), 0xFF, 0xD9)
	pngFile  = append(append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x22}, 40)...),
		'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82)
	// header without a footer
	brokenGIF = append([]byte("GIF89a"), bytes.Repeat([]byte{0x33}, 20)...)
)

func writeArtifact(t *testing.T, f *fixture, parts ...[]byte) (string, int64) {
	t.Helper()
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	path := "/case/out/carve/unalloc.bin"
	require.NoError(t, afero.WriteFile(f.fs, path, buf.Bytes(), 0o644))
	return path, int64(buf.Len())
}

func TestCarveExtractRecoversFiles(t *testing.T) {
	f := newFixture(t)
	junk := bytes.Repeat([]byte{0x00}, 100)
	path, size := writeArtifact(t, f, junk, jpegFile, junk, brokenGIF, junk, pngFile, junk)

	// two image ranges concatenated into the artifact
	batchID, err := f.store.AddCarveBatch(f.ctx, casedb.CarveBatch{
		ArtifactPath: path,
		Size:         size,
		Ceiling:      1 << 20,
		Ranges: []casedb.CarveRange{
			{ArtifactOffset: 0, ImageOffset: 4096, Length: 200},
			{ArtifactOffset: 200, ImageOffset: 65536, Length: size - 200},
		},
	})
	require.NoError(t, err)

	mod := f.module(t, modules.CarveExtractName, pipeline.Args{"max_file_size": "1KB"})
	status, err := mod.Run(f.ctx, queue.Task{Kind: queue.KindCarve, ID: batchID})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	files, err := f.store.Files(f.ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)

	jpeg := files[0]
	assert.Equal(t, casedb.SourceCarved, jpeg.Source)
	assert.Equal(t, modules.CarvedParentPath, jpeg.ParentPath)
	assert.Equal(t, batchID, jpeg.CarveBatchID)
	assert.Equal(t, int64(4096+100), jpeg.CarveOffset)
	assert.Equal(t, int64(len(jpegFile)), jpeg.Size)
	assert.NotEmpty(t, jpeg.MD5)
	content, err := afero.ReadFile(f.fs, jpeg.ContentPath)
	require.NoError(t, err)
	assert.Equal(t, jpegFile, content)

	png := files[1]
	pngArtifactOffset := int64(100 + len(jpegFile) + 100 + len(brokenGIF) + 100)
	assert.Equal(t, int64(65536)+pngArtifactOffset-200, png.CarveOffset)
	content, err = afero.ReadFile(f.fs, png.ContentPath)
	require.NoError(t, err)
	assert.Equal(t, pngFile, content)

	sig, err := f.store.Attribute(f.ctx, png.ID, modules.AttrCarveSignature)
	require.NoError(t, err)
	assert.Equal(t, "png", sig.String())

	for _, want := range files {
		task, ok, err := f.queue.Next(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, queue.Task{Kind: queue.KindFileAnalysis, ID: want.ID}, task)
	}
	_, ok, err := f.queue.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCarveExtractRespectsMaxFileSize(t *testing.T) {
	f := newFixture(t)
	path, size := writeArtifact(t, f, jpegFile)
	batchID, err := f.store.AddCarveBatch(f.ctx, casedb.CarveBatch{
		ArtifactPath: path,
		Size:         size,
		Ranges:       []casedb.CarveRange{{ArtifactOffset: 0, ImageOffset: 0, Length: size}},
	})
	require.NoError(t, err)

	mod := f.module(t, modules.CarveExtractName, pipeline.Args{"max_file_size": 10})
	status, err := mod.Run(f.ctx, queue.Task{Kind: queue.KindCarve, ID: batchID})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)

	files, err := f.store.Files(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestCarveExtractEmptyBatch(t *testing.T) {
	f := newFixture(t)
	batchID, err := f.store.AddCarveBatch(f.ctx, casedb.CarveBatch{ArtifactPath: "/case/out/carve/unalloc.bin"})
	require.NoError(t, err)

	mod := f.module(t, modules.CarveExtractName, nil)
	status, err := mod.Run(f.ctx, queue.Task{Kind: queue.KindCarve, ID: batchID})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusOK, status)
}

func TestCarveExtractUnknownBatchFails(t *testing.T) {
	f := newFixture(t)
	mod := f.module(t, modules.CarveExtractName, nil)
	status, err := mod.Run(f.ctx, queue.Task{Kind: queue.KindCarve, ID: 77})
	assert.Equal(t, pipeline.StatusFail, status)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestCarveExtractTypesFilter(t *testing.T) {
	f := newFixture(t)
	path, size := writeArtifact(t, f, jpegFile, pngFile)
	batchID, err := f.store.AddCarveBatch(f.ctx, casedb.CarveBatch{
		ArtifactPath: path,
		Size:         size,
		Ranges:       []casedb.CarveRange{{ArtifactOffset: 0, ImageOffset: 0, Length: size}},
	})
	require.NoError(t, err)

	mod := f.module(t, modules.CarveExtractName, pipeline.Args{"types": []any{"PNG"}})
	_, err = mod.Run(f.ctx, queue.Task{Kind: queue.KindCarve, ID: batchID})
	require.NoError(t, err)

	files, err := f.store.Files(f.ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, int64(len(jpegFile)), files[0].CarveOffset)

	reg, ok := f.reg.Lookup(modules.CarveExtractName)
	require.True(t, ok)
	_, err = reg.New(f.deps(), pipeline.Args{"types": "tiff"})
	assert.Error(t, err)
}
