package modules

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/pipeline"
	"triage/internal/queue"
)

// FileTypeName is the registry name of the filetype module.
const FileTypeName = "filetype"

// Blackboard attributes written by the filetype module.
const (
	AttrMIME      = "filetype.mime"
	AttrExtension = "filetype.extension"
)

type fileType struct {
	store *casedb.Store
	fs    afero.Fs
}

func newFileType(deps pipeline.Deps, _ pipeline.Args) (pipeline.Module, error) {
	if err := requireStore(FileTypeName, deps); err != nil {
		return nil, err
	}
	return &fileType{store: deps.Store, fs: fsOrDefault(deps.FS)}, nil
}

func (m *fileType) Name() string { return FileTypeName }

func (m *fileType) Run(ctx context.Context, task queue.Task) (pipeline.Status, error) {
	file, err := loadFile(ctx, FileTypeName, m.store, task.ID)
	if err != nil {
		return pipeline.StatusFail, err
	}
	content, err := openContent(m.fs, FileTypeName, file)
	if err != nil {
		return pipeline.StatusFail, err
	}
	defer content.Close()

	mtype, err := mimetype.DetectReader(content)
	if err != nil {
		return pipeline.StatusFail, err
	}
	// parameters such as charset are dropped
	mime, _, _ := strings.Cut(mtype.String(), ";")
	if err := m.store.PutAttribute(ctx, file.ID, AttrMIME, strings.TrimSpace(mime)); err != nil {
		return pipeline.StatusFail, err
	}
	if err := m.store.PutAttribute(ctx, file.ID, AttrExtension, mtype.Extension()); err != nil {
		return pipeline.StatusFail, err
	}
	return pipeline.StatusOK, nil
}
