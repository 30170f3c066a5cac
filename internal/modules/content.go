package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/pipeline"
	"triage/internal/services"
)

func requireStore(name string, deps pipeline.Deps) error {
	if deps.Store == nil {
		return services.Wrap(services.ErrConfiguration, name, "init", "case store is required", nil)
	}
	return nil
}

func fsOrDefault(fsys afero.Fs) afero.Fs {
	if fsys == nil {
		return afero.NewOsFs()
	}
	return fsys
}

// loadFile fetches the file record for a FileAnalysis task.
func loadFile(ctx context.Context, module string, store *casedb.Store, id int64) (casedb.File, error) {
	file, err := store.File(ctx, id)
	if errors.Is(err, casedb.ErrNotFound) {
		return casedb.File{}, services.Wrap(services.ErrNotFound, module, "load file", fmt.Sprintf("file %d", id), err)
	}
	return file, err
}

// openContent opens a file's bytes on fsys.
func openContent(fsys afero.Fs, module string, file casedb.File) (afero.File, error) {
	if file.ContentPath == "" {
		return nil, services.Wrap(services.ErrNotFound, module, "open content",
			fmt.Sprintf("file %d (%s) has no content", file.ID, file.FullPath()), nil)
	}
	f, err := fsys.Open(file.ContentPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, module, "open content", file.ContentPath, err)
	}
	return f, nil
}
