package modules

import (
	"context"
	"log/slog"

	"github.com/spf13/afero"

	"triage/internal/casedb"
	"triage/internal/fileutil"
	"triage/internal/logging"
	"triage/internal/pipeline"
	"triage/internal/queue"
)

// HashName is the registry name of the hash module.
const HashName = "hash"

// AttrHashPrefix prefixes digest attributes, e.g. "hash.sha256".
const AttrHashPrefix = "hash."

type hashModule struct {
	store      *casedb.Store
	fs         afero.Fs
	algorithms []string
	logger     *slog.Logger
}

func newHash(deps pipeline.Deps, args pipeline.Args) (pipeline.Module, error) {
	if err := requireStore(HashName, deps); err != nil {
		return nil, err
	}
	names, err := args.Strings("algorithms")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = []string{fileutil.MD5}
	}
	algorithms, err := fileutil.ValidateAlgorithms(names)
	if err != nil {
		return nil, err
	}
	return &hashModule{
		store:      deps.Store,
		fs:         fsOrDefault(deps.FS),
		algorithms: algorithms,
		logger:     logging.NewComponentLogger(deps.Logger, HashName),
	}, nil
}

func (m *hashModule) Name() string { return HashName }

func (m *hashModule) Run(ctx context.Context, task queue.Task) (pipeline.Status, error) {
	file, err := loadFile(ctx, HashName, m.store, task.ID)
	if err != nil {
		return pipeline.StatusFail, err
	}
	content, err := openContent(m.fs, HashName, file)
	if err != nil {
		return pipeline.StatusFail, err
	}
	defer content.Close()

	digests, size, err := fileutil.HashReader(content, m.algorithms)
	if err != nil {
		return pipeline.StatusFail, err
	}
	for _, name := range m.algorithms {
		if err := m.store.PutAttribute(ctx, file.ID, AttrHashPrefix+name, digests[name]); err != nil {
			return pipeline.StatusFail, err
		}
	}
	if md5sum, ok := digests[fileutil.MD5]; ok {
		if err := m.store.UpdateFileHash(ctx, file.ID, md5sum); err != nil {
			return pipeline.StatusFail, err
		}
	}
	m.logger.Debug("hashed file",
		logging.Int64("file_id", file.ID),
		logging.Int64("bytes", size),
	)
	return pipeline.StatusOK, nil
}
