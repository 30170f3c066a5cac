package casedb

import (
	"context"
	"errors"
	"fmt"
)

// UnallocRange is a run of unallocated bytes in the image.
type UnallocRange struct {
	ID     int64
	Offset int64
	Length int64
}

// End returns the first byte past the range.
func (r UnallocRange) End() int64 {
	return r.Offset + r.Length
}

// AddUnallocRange records an unallocated range.
func (s *Store) AddUnallocRange(ctx context.Context, offset, length int64) (int64, error) {
	if offset < 0 || length <= 0 {
		return 0, errors.New("unallocated range must have a non-negative offset and positive length")
	}
	res, err := s.exec(ctx, `INSERT INTO unalloc_ranges (start_offset, byte_length) VALUES (?, ?)`, offset, length)
	if err != nil {
		return 0, fmt.Errorf("insert unallocated range: %w", err)
	}
	return res.LastInsertId()
}

// UnallocRanges returns all unallocated ranges in ascending offset order.
func (s *Store) UnallocRanges(ctx context.Context) ([]UnallocRange, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, start_offset, byte_length FROM unalloc_ranges ORDER BY start_offset, id`)
	if err != nil {
		return nil, fmt.Errorf("list unallocated ranges: %w", err)
	}
	defer rows.Close()

	var ranges []UnallocRange
	for rows.Next() {
		var r UnallocRange
		if err := rows.Scan(&r.ID, &r.Offset, &r.Length); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}
