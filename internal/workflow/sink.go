package workflow

import (
	"context"
	"fmt"

	"triage/internal/casedb"
	"triage/internal/metrics"
	"triage/internal/queue"
)

// extractionSink stores extracted records and schedules one file analysis
// task per file.
type extractionSink struct {
	store   *casedb.Store
	queue   queue.Queue
	metrics *metrics.Metrics
	files   int
	ranges  int
}

func (s *extractionSink) AddFile(ctx context.Context, file casedb.File) (int64, error) {
	id, err := s.store.AddFile(ctx, file)
	if err != nil {
		return 0, err
	}
	if err := s.queue.Enqueue(ctx, queue.Task{Kind: queue.KindFileAnalysis, ID: id}); err != nil {
		return 0, fmt.Errorf("enqueue file %d: %w", id, err)
	}
	s.files++
	s.metrics.FileExtracted()
	return id, nil
}

func (s *extractionSink) AddUnallocRange(ctx context.Context, offset, length int64) error {
	if _, err := s.store.AddUnallocRange(ctx, offset, length); err != nil {
		return err
	}
	s.ranges++
	return nil
}
