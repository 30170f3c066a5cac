package carving

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/queue"
	"triage/internal/services"
)

// DirName is the carving working directory inside the output directory.
const DirName = "carve"

const copyBufferSize = 1 << 20

// Store is the slice of the case database carve preparation needs.
type Store interface {
	UnallocRanges(ctx context.Context) ([]casedb.UnallocRange, error)
	AddCarveBatch(ctx context.Context, batch casedb.CarveBatch) (int64, error)
	CarveBatches(ctx context.Context, artifactPath string) ([]casedb.CarveBatch, error)
}

// SectorConcat concatenates unallocated sectors into one artifact.
type SectorConcat struct {
	Image    io.ReaderAt
	Store    Store
	Queue    queue.Queue
	FS       afero.Fs
	Dir      string
	Name     string
	MaxBytes int64
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// ArtifactPath returns where the artifact is written.
func (c *SectorConcat) ArtifactPath() string {
	return filepath.Join(c.Dir, c.Name)
}

// ProcessSectors captures unallocated space and enqueues one Carve task for it.
// With appendTo set the existing artifact is extended and the ceiling applies
// to its total size; image spans mapped by earlier batches of the artifact are
// skipped, so the new batch maps only bytes added by this call.
// Reaching the ceiling is not an error.
func (c *SectorConcat) ProcessSectors(ctx context.Context, appendTo bool) (casedb.CarveBatch, error) {
	if err := c.validate(); err != nil {
		return casedb.CarveBatch{}, err
	}
	logger := logging.NewComponentLogger(c.Logger, "carving")

	ranges, err := c.Store.UnallocRanges(ctx)
	if err != nil {
		return casedb.CarveBatch{}, fmt.Errorf("load unallocated ranges: %w", err)
	}
	var captured []casedb.CarveRange
	if appendTo {
		prior, err := c.Store.CarveBatches(ctx, c.ArtifactPath())
		if err != nil {
			return casedb.CarveBatch{}, fmt.Errorf("load previous carve batches: %w", err)
		}
		for _, b := range prior {
			captured = append(captured, b.Ranges...)
		}
	}

	if err := c.FS.MkdirAll(c.Dir, 0o755); err != nil {
		return casedb.CarveBatch{}, fmt.Errorf("create carve directory: %w", err)
	}
	artifact, written, err := c.openArtifact(appendTo)
	if err != nil {
		return casedb.CarveBatch{}, err
	}
	defer artifact.Close()

	batch := casedb.CarveBatch{
		ArtifactPath: c.ArtifactPath(),
		Ceiling:      c.MaxBytes,
		Ranges:       []casedb.CarveRange{},
	}
	buf := make([]byte, copyBufferSize)
capture:
	for _, r := range ranges {
		for _, sp := range uncaptured(r, captured) {
			remaining := c.MaxBytes - written
			if remaining <= 0 {
				batch.Truncated = true
				break capture
			}
			length := sp.length
			if length > remaining {
				length = remaining
				batch.Truncated = true
			}
			n, err := copyRange(ctx, artifact, c.Image, sp.offset, length, buf)
			if n > 0 {
				batch.Ranges = append(batch.Ranges, casedb.CarveRange{
					ArtifactOffset: written,
					ImageOffset:    sp.offset,
					Length:         n,
				})
				written += n
			}
			if err != nil {
				return casedb.CarveBatch{}, fmt.Errorf("copy range at offset %d: %w", sp.offset, err)
			}
			if batch.Truncated {
				break capture
			}
		}
	}
	if err := artifact.Sync(); err != nil {
		return casedb.CarveBatch{}, fmt.Errorf("sync carve artifact: %w", err)
	}
	batch.Size = written

	id, err := c.Store.AddCarveBatch(ctx, batch)
	if err != nil {
		return casedb.CarveBatch{}, err
	}
	batch.ID = id
	if err := c.Queue.Enqueue(ctx, queue.Task{Kind: queue.KindCarve, ID: id}); err != nil {
		return casedb.CarveBatch{}, fmt.Errorf("enqueue carve task: %w", err)
	}

	c.Metrics.CarveCaptured(written, batch.Truncated)
	logger.Info("carve preparation complete",
		logging.String("artifact", batch.ArtifactPath),
		logging.Int64("batch_id", id),
		logging.Int64("captured_bytes", written),
		logging.Int64("ceiling_bytes", c.MaxBytes),
		logging.Int("ranges", len(batch.Ranges)),
		logging.Bool("truncated", batch.Truncated),
	)
	return batch, nil
}

func (c *SectorConcat) validate() error {
	switch {
	case c.Image == nil:
		return services.Wrap(services.ErrConfiguration, "carving", "process sectors", "image is required", nil)
	case c.Store == nil:
		return services.Wrap(services.ErrConfiguration, "carving", "process sectors", "case store is required", nil)
	case c.Queue == nil:
		return services.Wrap(services.ErrConfiguration, "carving", "process sectors", "task queue is required", nil)
	case c.FS == nil:
		return services.Wrap(services.ErrConfiguration, "carving", "process sectors", "filesystem is required", nil)
	case c.Name == "":
		return services.Wrap(services.ErrConfiguration, "carving", "process sectors", "artifact name is required", nil)
	case c.MaxBytes <= 0:
		return services.Wrap(services.ErrConfiguration, "carving", "process sectors", "size ceiling must be positive", nil)
	}
	return nil
}

func (c *SectorConcat) openArtifact(appendTo bool) (afero.File, int64, error) {
	path := c.ArtifactPath()
	if !appendTo {
		file, err := c.FS.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, 0, fmt.Errorf("create carve artifact: %w", err)
		}
		return file, 0, nil
	}
	file, err := c.FS.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("open carve artifact for append: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, fmt.Errorf("stat carve artifact: %w", err)
	}
	return file, info.Size(), nil
}

type span struct {
	offset, length int64
}

// uncaptured returns the parts of r not covered by the image side of captured,
// in ascending order.
func uncaptured(r casedb.UnallocRange, captured []casedb.CarveRange) []span {
	spans := []span{{offset: r.Offset, length: r.Length}}
	for _, cr := range captured {
		start, end := cr.ImageOffset, cr.ImageOffset+cr.Length
		next := spans[:0:0]
		for _, sp := range spans {
			spEnd := sp.offset + sp.length
			if end <= sp.offset || start >= spEnd {
				next = append(next, sp)
				continue
			}
			if start > sp.offset {
				next = append(next, span{offset: sp.offset, length: start - sp.offset})
			}
			if end < spEnd {
				next = append(next, span{offset: end, length: spEnd - end})
			}
		}
		spans = next
	}
	return spans
}

// copyRange copies length bytes starting at offset, checking ctx between chunks.
// A short image yields a short copy and io.ErrUnexpectedEOF.
func copyRange(ctx context.Context, dst io.Writer, src io.ReaderAt, offset, length int64, buf []byte) (int64, error) {
	var copied int64
	for copied < length {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		chunk := int64(len(buf))
		if left := length - copied; left < chunk {
			chunk = left
		}
		n, err := src.ReadAt(buf[:chunk], offset+copied)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			copied += int64(w)
			if werr != nil {
				return copied, werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if int64(n) == chunk {
					continue
				}
				return copied, io.ErrUnexpectedEOF
			}
			return copied, err
		}
	}
	return copied, nil
}
