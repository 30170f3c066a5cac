package image

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"triage/internal/config"
	"triage/internal/services"
)

type rawImage struct {
	file       afero.File
	path       string
	size       int64
	sectorSize int
}

func openRaw(fsys afero.Fs, imagePath string, size int64, sectorSize int) (*rawImage, error) {
	file, err := fsys.Open(imagePath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "image", "open raw", imagePath, err)
	}
	return &rawImage{file: file, path: imagePath, size: size, sectorSize: sectorSize}, nil
}

func (r *rawImage) Path() string    { return r.path }
func (r *rawImage) Format() string  { return config.ImageFormatRaw }
func (r *rawImage) Size() int64     { return r.size }
func (r *rawImage) SectorSize() int { return r.sectorSize }
func (r *rawImage) Close() error    { return r.file.Close() }

func (r *rawImage) ReadAt(p []byte, off int64) (int, error) {
	return r.file.ReadAt(p, off)
}

// ExtractFiles reports the whole volume as one unallocated range. Trailing
// bytes that do not fill a sector are left out.
func (r *rawImage) ExtractFiles(ctx context.Context, sink Sink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	length := r.size - r.size%int64(r.sectorSize)
	if length <= 0 {
		return nil
	}
	if err := sink.AddUnallocRange(ctx, 0, length); err != nil {
		return fmt.Errorf("record unallocated volume: %w", err)
	}
	return nil
}
