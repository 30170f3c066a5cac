package casedb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CarveRange maps a span of the carve artifact back to the image.
type CarveRange struct {
	ArtifactOffset int64 `json:"artifact_offset"`
	ImageOffset    int64 `json:"image_offset"`
	Length         int64 `json:"length"`
}

// CarveBatch describes one captured unallocated-space artifact.
type CarveBatch struct {
	ID           int64
	ArtifactPath string
	Size         int64
	Ceiling      int64
	// Truncated is set when capture stopped at the ceiling.
	Truncated bool
	Ranges    []CarveRange
	CreatedAt time.Time
}

// ImageOffset translates an artifact offset into the image offset it was copied from.
func (b CarveBatch) ImageOffset(artifactOffset int64) (int64, bool) {
	for _, r := range b.Ranges {
		if artifactOffset >= r.ArtifactOffset && artifactOffset < r.ArtifactOffset+r.Length {
			return r.ImageOffset + (artifactOffset - r.ArtifactOffset), true
		}
	}
	return 0, false
}

// AddCarveBatch records a batch and returns its id.
func (s *Store) AddCarveBatch(ctx context.Context, b CarveBatch) (int64, error) {
	if b.ArtifactPath == "" {
		return 0, errors.New("carve batch artifact path is required")
	}
	ranges := b.Ranges
	if ranges == nil {
		ranges = []CarveRange{}
	}
	rangesJSON, err := json.Marshal(ranges)
	if err != nil {
		return 0, fmt.Errorf("marshal carve ranges: %w", err)
	}
	res, err := s.exec(ctx,
		`INSERT INTO carve_batches (artifact_path, size, ceiling, truncated, ranges_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		b.ArtifactPath, b.Size, b.Ceiling, boolToInt(b.Truncated), string(rangesJSON), now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert carve batch: %w", err)
	}
	return res.LastInsertId()
}

// CarveBatch fetches a batch by id. Missing batches return ErrNotFound.
func (s *Store) CarveBatch(ctx context.Context, id int64) (CarveBatch, error) {
	var (
		b          CarveBatch
		truncated  int
		rangesJSON string
		createdRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, artifact_path, size, ceiling, truncated, ranges_json, created_at FROM carve_batches WHERE id = ?`, id,
	).Scan(&b.ID, &b.ArtifactPath, &b.Size, &b.Ceiling, &truncated, &rangesJSON, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return CarveBatch{}, fmt.Errorf("carve batch %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return CarveBatch{}, fmt.Errorf("get carve batch %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rangesJSON), &b.Ranges); err != nil {
		return CarveBatch{}, fmt.Errorf("decode carve batch %d ranges: %w", id, err)
	}
	b.Truncated = truncated != 0
	b.CreatedAt = parseTime(createdRaw)
	return b, nil
}

// CarveBatches returns every batch recorded for artifactPath, oldest first.
// Append-mode capture uses it to skip image spans already in the artifact.
func (s *Store) CarveBatches(ctx context.Context, artifactPath string) ([]CarveBatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM carve_batches WHERE artifact_path = ? ORDER BY id`, artifactPath)
	if err != nil {
		return nil, fmt.Errorf("list carve batches: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan carve batch id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("list carve batches: %w", err)
	}
	_ = rows.Close()

	batches := make([]CarveBatch, 0, len(ids))
	for _, id := range ids {
		b, err := s.CarveBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
