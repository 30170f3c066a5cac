package image

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/config"
	"triage/internal/services"
)

// ErrNoVolumeData is returned by ReadAt on images without a raw volume.
var ErrNoVolumeData = errors.New("image has no raw volume data")

// Sink receives extraction results.
type Sink interface {
	// AddFile stores a file record and schedules it for analysis.
	AddFile(ctx context.Context, file casedb.File) (int64, error)
	AddUnallocRange(ctx context.Context, offset, length int64) error
}

// Image is an opened piece of evidence.
type Image interface {
	Path() string
	Format() string
	// Size is the raw volume size in bytes; zero for logical images.
	Size() int64
	SectorSize() int
	ReadAt(p []byte, off int64) (int, error)
	// ExtractFiles walks the evidence and reports files and unallocated ranges to sink.
	ExtractFiles(ctx context.Context, sink Sink) error
	Close() error
}

// Options control how Open interprets the path.
type Options struct {
	Format     string
	SectorSize int
	Include    []string
	// FS defaults to the operating system.
	FS afero.Fs
}

// OptionsFromConfig maps the [image] config section.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Format:     cfg.Image.Format,
		SectorSize: cfg.Image.SectorSize,
		Include:    append([]string(nil), cfg.Image.Include...),
	}
}

// Open opens path with the requested backend.
func Open(imagePath string, opts Options) (Image, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if opts.SectorSize <= 0 {
		opts.SectorSize = 512
	}
	imagePath = strings.TrimSpace(imagePath)
	if imagePath == "" {
		return nil, services.Wrap(services.ErrValidation, "image", "open", "image path is empty", nil)
	}

	info, err := fsys.Stat(imagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "image", "open", imagePath, err)
		}
		return nil, services.Wrap(services.ErrValidation, "image", "open", imagePath, err)
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" || format == config.ImageFormatAuto {
		format = config.ImageFormatRaw
		if info.IsDir() {
			format = config.ImageFormatDir
		}
	}

	switch format {
	case config.ImageFormatDir:
		if !info.IsDir() {
			return nil, services.Wrap(services.ErrValidation, "image", "open", fmt.Sprintf("%s is not a directory", imagePath), nil)
		}
		return &dirImage{fs: fsys, root: imagePath, sectorSize: opts.SectorSize, include: opts.Include}, nil
	case config.ImageFormatRaw:
		if info.IsDir() {
			return nil, services.Wrap(services.ErrValidation, "image", "open", fmt.Sprintf("%s is a directory, not a raw image", imagePath), nil)
		}
		return openRaw(fsys, imagePath, info.Size(), opts.SectorSize)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "image", "open", fmt.Sprintf("unsupported image format %q", opts.Format), nil)
	}
}

func matchesInclude(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
