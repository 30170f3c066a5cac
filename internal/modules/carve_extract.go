package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"triage/internal/carving"
	"triage/internal/casedb"
	"triage/internal/fileutil"
	"triage/internal/image"
	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/pipeline"
	"triage/internal/queue"
	"triage/internal/services"
	"triage/internal/textutil"
)

// CarveExtractName is the registry name of the carve_extract module.
const CarveExtractName = "carve_extract"

// CarvedParentPath is the parent path given to carved file records.
const CarvedParentPath = "$CarvedFiles"

// AttrCarveSignature names the signature a carved file matched.
const AttrCarveSignature = "carve.signature"

const (
	defaultMaxCarveSize = 20 * 1000 * 1000
	scanChunkSize       = 1 << 20
)

type signature struct {
	name    string
	ext     string
	headers [][]byte
	footer  []byte
	// trailer is the number of bytes that follow the footer.
	trailer int
}

var signatures = []signature{
	{name: "jpeg", ext: "jpg", headers: [][]byte{{0xFF, 0xD8, 0xFF}}, footer: []byte{0xFF, 0xD9}},
	{name: "png", ext: "png", headers: [][]byte{{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}}, footer: []byte{'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}},
	{name: "gif", ext: "gif", headers: [][]byte{[]byte("GIF87a"), []byte("GIF89a")}, footer: []byte{0x00, 0x3B}},
	{name: "pdf", ext: "pdf", headers: [][]byte{[]byte("%PDF-")}, footer: []byte("%%EOF")},
	// end of central directory record without a trailing comment
	{name: "zip", ext: "zip", headers: [][]byte{{'P', 'K', 0x03, 0x04}}, footer: []byte{'P', 'K', 0x05, 0x06}, trailer: 18},
}

type carveMatch struct {
	sig    *signature
	offset int64
	length int64
}

type carveExtract struct {
	store     *casedb.Store
	queue     queue.Queue
	fs        afero.Fs
	outDir    string
	maxSize   int64
	sigs      []signature
	maxHeader int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func newCarveExtract(deps pipeline.Deps, args pipeline.Args) (pipeline.Module, error) {
	if err := requireStore(CarveExtractName, deps); err != nil {
		return nil, err
	}
	if deps.Queue == nil {
		return nil, services.Wrap(services.ErrConfiguration, CarveExtractName, "init", "task queue is required", nil)
	}
	if deps.OutputDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, CarveExtractName, "init", "output directory is required", nil)
	}
	maxSize, err := args.Bytes("max_file_size", defaultMaxCarveSize)
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("argument max_file_size must be positive")
	}
	types, err := args.Strings("types")
	if err != nil {
		return nil, err
	}
	sigs, err := selectSignatures(types)
	if err != nil {
		return nil, err
	}
	m := &carveExtract{
		store:   deps.Store,
		queue:   deps.Queue,
		fs:      fsOrDefault(deps.FS),
		outDir:  deps.OutputDir,
		maxSize: maxSize,
		sigs:    sigs,
		logger:  logging.NewComponentLogger(deps.Logger, CarveExtractName),
		metrics: deps.Metrics,
	}
	for _, sig := range sigs {
		for _, h := range sig.headers {
			m.maxHeader = max(m.maxHeader, len(h))
		}
	}
	return m, nil
}

func selectSignatures(types []string) ([]signature, error) {
	if len(types) == 0 {
		return signatures, nil
	}
	out := make([]signature, 0, len(types))
	for _, t := range types {
		idx := slices.IndexFunc(signatures, func(s signature) bool { return s.name == textutil.SanitizeToken(t) })
		if idx < 0 {
			return nil, fmt.Errorf("argument types: unsupported type %q", t)
		}
		out = append(out, signatures[idx])
	}
	return out, nil
}

func (m *carveExtract) Name() string { return CarveExtractName }

func (m *carveExtract) Run(ctx context.Context, task queue.Task) (pipeline.Status, error) {
	batch, err := m.store.CarveBatch(ctx, task.ID)
	if err != nil {
		if errors.Is(err, casedb.ErrNotFound) {
			return pipeline.StatusFail, services.Wrap(services.ErrNotFound, CarveExtractName, "load batch", "", err)
		}
		return pipeline.StatusFail, err
	}
	if batch.Size == 0 || len(batch.Ranges) == 0 {
		m.logger.Info("carve batch is empty", logging.Int64("batch_id", batch.ID))
		return pipeline.StatusOK, nil
	}

	artifact, err := m.fs.Open(batch.ArtifactPath)
	if err != nil {
		return pipeline.StatusFail, services.Wrap(services.ErrNotFound, CarveExtractName, "open artifact", batch.ArtifactPath, err)
	}
	defer artifact.Close()

	first := batch.Ranges[0]
	last := batch.Ranges[len(batch.Ranges)-1]
	matches, err := m.scan(ctx, artifact, first.ArtifactOffset, last.ArtifactOffset+last.Length)
	if err != nil {
		return pipeline.StatusFail, err
	}

	dir := filepath.Join(m.outDir, carving.DirName, "files")
	for _, match := range matches {
		if err := m.register(ctx, artifact, batch, match, dir); err != nil {
			return pipeline.StatusFail, err
		}
	}
	m.metrics.FilesCarved(len(matches))
	m.logger.Info("carving complete",
		logging.String(logging.FieldEventType, "carve_complete"),
		logging.Int64("batch_id", batch.ID),
		logging.Int("files", len(matches)),
	)
	return pipeline.StatusOK, nil
}

func (m *carveExtract) register(ctx context.Context, artifact io.ReaderAt, batch casedb.CarveBatch, match carveMatch, dir string) error {
	name := fmt.Sprintf("b%d_%d.%s", batch.ID, match.offset, match.sig.ext)
	contentPath := filepath.Join(dir, name)
	md5sum, err := fileutil.WriteFile(m.fs, contentPath, io.NewSectionReader(artifact, match.offset, match.length), match.length)
	if err != nil {
		return fmt.Errorf("write carved file %s: %w", name, err)
	}
	imageOffset, _ := batch.ImageOffset(match.offset)
	id, err := m.store.AddFile(ctx, casedb.File{
		Name:         name,
		ParentPath:   CarvedParentPath,
		MetaType:     image.MetaTypeRegular,
		Size:         match.length,
		MD5:          md5sum,
		Source:       casedb.SourceCarved,
		ContentPath:  contentPath,
		CarveBatchID: batch.ID,
		CarveOffset:  imageOffset,
	})
	if err != nil {
		return err
	}
	if err := m.store.PutAttribute(ctx, id, AttrCarveSignature, match.sig.name); err != nil {
		return err
	}
	return m.queue.Enqueue(ctx, queue.Task{Kind: queue.KindFileAnalysis, ID: id})
}

// scan finds non-overlapping header/footer pairs in [start, end).
func (m *carveExtract) scan(ctx context.Context, r io.ReaderAt, start, end int64) ([]carveMatch, error) {
	var matches []carveMatch
	chunk := make([]byte, scanChunkSize)
	var window []byte
	pos := start
	for pos < end {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := int(min(int64(len(chunk)), end-pos))
		if err := readFull(r, chunk[:n], pos); err != nil {
			return nil, err
		}
		hit, sig := m.earliestHeader(chunk[:n])
		if hit < 0 {
			if pos+int64(n) >= end {
				break
			}
			pos += int64(n - (m.maxHeader - 1))
			continue
		}
		offset := pos + int64(hit)
		length, ok, err := m.footer(r, sig, offset, end, &window)
		if err != nil {
			return nil, err
		}
		if !ok {
			pos = offset + 1
			continue
		}
		matches = append(matches, carveMatch{sig: sig, offset: offset, length: length})
		pos = offset + length
	}
	return matches, nil
}

func (m *carveExtract) earliestHeader(buf []byte) (int, *signature) {
	best := -1
	var found *signature
	for i := range m.sigs {
		for _, h := range m.sigs[i].headers {
			idx := bytes.Index(buf, h)
			if idx >= 0 && (best < 0 || idx < best) {
				best = idx
				found = &m.sigs[i]
			}
		}
	}
	return best, found
}

// footer returns the carved length for a header at offset, or false when no
// footer fits within the size limit. scratch is reused across calls of one scan.
func (m *carveExtract) footer(r io.ReaderAt, sig *signature, offset, end int64, scratch *[]byte) (int64, bool, error) {
	limit := min(end, offset+m.maxSize)
	need := int(limit - offset)
	if cap(*scratch) < need {
		*scratch = make([]byte, need)
	}
	window := (*scratch)[:need]
	if err := readFull(r, window, offset); err != nil {
		return 0, false, err
	}
	headerLen := len(sig.headers[0])
	if len(window) <= headerLen {
		return 0, false, nil
	}
	idx := bytes.Index(window[headerLen:], sig.footer)
	if idx < 0 {
		return 0, false, nil
	}
	length := int64(headerLen + idx + len(sig.footer) + sig.trailer)
	if offset+length > limit {
		return 0, false, nil
	}
	return length, true, nil
}

func readFull(r io.ReaderAt, buf []byte, offset int64) error {
	n, err := r.ReadAt(buf, offset)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("read artifact at %d: %w", offset, err)
}
