package modules

import (
	"context"
	"strings"

	"triage/internal/casedb"
	"triage/internal/pipeline"
	"triage/internal/queue"
)

// SkipKnownName is the registry name of the skip_known module.
const SkipKnownName = "skip_known"

// skipKnown stops the chain for files whose md5 is in the known-good set and
// flags files in the known-bad set. It needs a preceding hash module.
type skipKnown struct {
	store *casedb.Store
	good  map[string]bool
	bad   map[string]bool
}

func newSkipKnown(deps pipeline.Deps, args pipeline.Args) (pipeline.Module, error) {
	if err := requireStore(SkipKnownName, deps); err != nil {
		return nil, err
	}
	good, err := args.Strings("known_md5")
	if err != nil {
		return nil, err
	}
	bad, err := args.Strings("known_bad_md5")
	if err != nil {
		return nil, err
	}
	return &skipKnown{store: deps.Store, good: hashSet(good), bad: hashSet(bad)}, nil
}

func hashSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}

func (m *skipKnown) Name() string { return SkipKnownName }

func (m *skipKnown) Run(ctx context.Context, task queue.Task) (pipeline.Status, error) {
	file, err := loadFile(ctx, SkipKnownName, m.store, task.ID)
	if err != nil {
		return pipeline.StatusFail, err
	}
	md5sum := strings.ToLower(file.MD5)
	switch {
	case md5sum == "":
		return pipeline.StatusOK, nil
	case m.bad[md5sum]:
		return pipeline.StatusOK, m.store.SetKnown(ctx, file.ID, casedb.KnownBad)
	case m.good[md5sum]:
		if err := m.store.SetKnown(ctx, file.ID, casedb.KnownGood); err != nil {
			return pipeline.StatusFail, err
		}
		return pipeline.StatusStop, nil
	default:
		return pipeline.StatusOK, nil
	}
}
