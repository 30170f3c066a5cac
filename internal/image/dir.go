package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/config"
)

// Meta types stored on extracted records.
const (
	MetaTypeRegular = 1
	MetaTypeDir     = 2
)

type dirImage struct {
	fs         afero.Fs
	root       string
	sectorSize int
	include    []string
}

func (d *dirImage) Path() string    { return d.root }
func (d *dirImage) Format() string  { return config.ImageFormatDir }
func (d *dirImage) Size() int64     { return 0 }
func (d *dirImage) SectorSize() int { return d.sectorSize }
func (d *dirImage) Close() error    { return nil }

func (d *dirImage) ReadAt([]byte, int64) (int, error) {
	return 0, ErrNoVolumeData
}

// ExtractFiles walks the tree in lexical order and records every regular file
// that matches the include patterns.
func (d *dirImage) ExtractFiles(ctx context.Context, sink Sink) error {
	var metaAddr int64
	return afero.Walk(d.fs, d.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", p, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		metaAddr++
		if !info.Mode().IsRegular() || !matchesInclude(d.include, info.Name()) {
			return nil
		}
		rel, err := filepath.Rel(d.root, filepath.Dir(p))
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		}
		record := casedb.File{
			Name:        info.Name(),
			ParentPath:  filepath.ToSlash(rel),
			MetaAddr:    metaAddr,
			MetaType:    MetaTypeRegular,
			DirType:     MetaTypeRegular,
			Size:        info.Size(),
			Mtime:       info.ModTime().Unix(),
			Mode:        int(info.Mode().Perm()),
			Source:      casedb.SourceFilesystem,
			ContentPath: p,
		}
		if _, err := sink.AddFile(ctx, record); err != nil {
			return fmt.Errorf("record %s: %w", p, err)
		}
		return nil
	})
}
