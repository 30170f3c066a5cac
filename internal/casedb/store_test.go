package casedb_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/casedb"
)

func openStore(t *testing.T) *casedb.Store {
	t.Helper()
	store, err := casedb.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFilesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	id, err := store.AddFile(ctx, casedb.File{
		Name:        "report.pdf",
		ParentPath:  "Users/alice/Documents",
		MetaAddr:    42,
		Size:        1024,
		Mtime:       1700000000,
		ContentPath: "/evidence/Users/alice/Documents/report.pdf",
	})
	require.NoError(t, err)

	f, err := store.File(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, "/Users/alice/Documents/report.pdf", f.FullPath())
	assert.Equal(t, casedb.SourceFilesystem, f.Source)
	assert.Equal(t, casedb.KnownUnknown, f.Known)
	assert.Equal(t, int64(1024), f.Size)
	assert.Empty(t, f.MD5)

	require.NoError(t, store.UpdateFileHash(ctx, id, "d41d8cd98f00b204e9800998ecf8427e"))
	require.NoError(t, store.SetKnown(ctx, id, casedb.KnownGood))
	f, err = store.File(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", f.MD5)
	assert.Equal(t, casedb.KnownGood, f.Known)
}

func TestFileNotFound(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.File(ctx, 404)
	assert.ErrorIs(t, err, casedb.ErrNotFound)
	assert.ErrorIs(t, store.UpdateFileHash(ctx, 404, "x"), casedb.ErrNotFound)
}

func TestUnallocRangesAscending(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, err := store.AddUnallocRange(ctx, 8192, 512)
	require.NoError(t, err)
	_, err = store.AddUnallocRange(ctx, 0, 1024)
	require.NoError(t, err)
	_, err = store.AddUnallocRange(ctx, 4096, 2048)
	require.NoError(t, err)
	_, err = store.AddUnallocRange(ctx, 10, 0)
	assert.Error(t, err)

	ranges, err := store.UnallocRanges(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, []int64{0, 4096, 8192}, []int64{ranges[0].Offset, ranges[1].Offset, ranges[2].Offset})
	assert.Equal(t, int64(6144), ranges[1].End())
}

func TestCarveBatchAndCarvedFiles(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	batchID, err := store.AddCarveBatch(ctx, casedb.CarveBatch{
		ArtifactPath: "/case/carve/unalloc.bin",
		Size:         3072,
		Ceiling:      4096,
		Ranges: []casedb.CarveRange{
			{ArtifactOffset: 0, ImageOffset: 0, Length: 1024},
			{ArtifactOffset: 1024, ImageOffset: 4096, Length: 2048},
		},
	})
	require.NoError(t, err)

	batch, err := store.CarveBatch(ctx, batchID)
	require.NoError(t, err)
	assert.False(t, batch.Truncated)
	require.Len(t, batch.Ranges, 2)
	assert.WithinDuration(t, time.Now(), batch.CreatedAt, time.Minute)

	offset, ok := batch.ImageOffset(1500)
	require.True(t, ok)
	assert.Equal(t, int64(4096+476), offset)
	_, ok = batch.ImageOffset(5000)
	assert.False(t, ok)

	batches, err := store.CarveBatches(ctx, "/case/carve/unalloc.bin")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, batchID, batches[0].ID)
	none, err := store.CarveBatches(ctx, "/elsewhere/unalloc.bin")
	require.NoError(t, err)
	assert.Empty(t, none)

	fileID, err := store.AddFile(ctx, casedb.File{
		Name:         "carved_000001.jpg",
		Source:       casedb.SourceCarved,
		CarveBatchID: batchID,
		CarveOffset:  4572,
		Size:         200,
	})
	require.NoError(t, err)
	f, err := store.File(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, casedb.SourceCarved, f.Source)
	assert.Equal(t, batchID, f.CarveBatchID)
	assert.Equal(t, int64(4572), f.CarveOffset)

	_, err = store.CarveBatch(ctx, batchID+1)
	assert.ErrorIs(t, err, casedb.ErrNotFound)
}

func TestBlackboard(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	require.NoError(t, store.PutAttribute(ctx, 2, "hash.sha256", "abc"))
	require.NoError(t, store.PutAttribute(ctx, 1, "filetype.mime", "image/jpeg"))
	require.NoError(t, store.PutAttribute(ctx, 1, "exec.yara", map[string]any{"matches": []string{"rule_a", "rule_b"}}))
	require.NoError(t, store.PutAttribute(ctx, 1, "filetype.mime", "image/png"))
	assert.Error(t, store.PutAttribute(ctx, 1, "raw", json.RawMessage(`{broken`)))
	assert.Error(t, store.PutAttribute(ctx, 1, " ", "x"))

	mime, err := store.Attribute(ctx, 1, "filetype.mime")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime.String())

	attrs, err := store.Attributes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "exec.yara", attrs[0].Name)
	assert.Equal(t, "rule_b", attrs[0].Get("matches.1").String())
	assert.Equal(t, int64(2), attrs[0].Get("matches.#").Int())

	all, err := store.AllAttributes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[2].FileID)

	_, err = store.Attribute(ctx, 3, "hash.md5")
	assert.ErrorIs(t, err, casedb.ErrNotFound)
}

func TestRecordRunUpserts(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	started := time.Now().Add(-time.Minute)

	require.NoError(t, store.RecordRun(ctx, casedb.Run{ID: "run-1", ImagePath: "/img.dd", State: "draining", StartedAt: started}))
	require.NoError(t, store.RecordRun(ctx, casedb.Run{
		ID:         "run-1",
		ImagePath:  "/img.dd",
		State:      "done",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Summary:    json.RawMessage(`{"processed":3}`),
	}))

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "done", runs[0].State)
	assert.False(t, runs[0].FinishedAt.IsZero())
	assert.JSONEq(t, `{"processed":3}`, string(runs[0].Summary))
}
