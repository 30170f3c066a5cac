package casedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
)

// Source records how a file entered the case.
type Source string

const (
	SourceFilesystem Source = "filesystem"
	SourceCarved     Source = "carved"
)

// KnownStatus classifies a file against hash sets.
type KnownStatus string

const (
	KnownUnknown KnownStatus = "unknown"
	KnownGood    KnownStatus = "known"
	KnownBad     KnownStatus = "known_bad"
)

// File is one extracted or carved file.
type File struct {
	ID         int64
	FsObjID    int64
	Name       string
	ParentPath string
	MetaAddr   int64
	DirType    int
	MetaType   int
	DirFlags   int
	MetaFlags  int
	Size       int64
	// Timestamps are Unix seconds.
	Ctime  int64
	Crtime int64
	Atime  int64
	Mtime  int64
	Mode   int
	UID    int
	GID    int
	MD5    string
	Known  KnownStatus
	Source Source
	// ContentPath locates the file's bytes on the run filesystem.
	ContentPath string
	// Carved files only.
	CarveBatchID int64
	CarveOffset  int64
}

// FullPath joins the parent path and name.
func (f File) FullPath() string {
	if f.ParentPath == "" {
		return "/" + f.Name
	}
	return path.Join("/", f.ParentPath, f.Name)
}

const fileColumns = `id, fs_obj_id, name, parent_path, meta_addr, dir_type, meta_type, dir_flags, meta_flags,
size, ctime, crtime, atime, mtime, mode, uid, gid, md5, known, source, content_path, carve_batch_id, carve_offset`

// AddFile inserts a file record and returns its id.
func (s *Store) AddFile(ctx context.Context, f File) (int64, error) {
	if f.Name == "" {
		return 0, errors.New("file name is required")
	}
	if f.Known == "" {
		f.Known = KnownUnknown
	}
	if f.Source == "" {
		f.Source = SourceFilesystem
	}
	carved := f.Source == SourceCarved
	res, err := s.exec(ctx,
		`INSERT INTO files (fs_obj_id, name, parent_path, meta_addr, dir_type, meta_type, dir_flags, meta_flags,
            size, ctime, crtime, atime, mtime, mode, uid, gid, md5, known, source, content_path, carve_batch_id, carve_offset)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FsObjID, f.Name, f.ParentPath, f.MetaAddr, f.DirType, f.MetaType, f.DirFlags, f.MetaFlags,
		f.Size, f.Ctime, f.Crtime, f.Atime, f.Mtime, f.Mode, f.UID, f.GID,
		nullableString(f.MD5), string(f.Known), string(f.Source), nullableString(f.ContentPath),
		nullableInt(f.CarveBatchID, carved), nullableInt(f.CarveOffset, carved),
	)
	if err != nil {
		return 0, fmt.Errorf("insert file %s: %w", f.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// File fetches a file by id. Missing files return ErrNotFound.
func (s *Store) File(ctx context.Context, id int64) (File, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return File{}, fmt.Errorf("get file %d: %w", id, err)
	}
	return f, nil
}

// Files returns every file ordered by id.
func (s *Store) Files(ctx context.Context) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpdateFileHash stores the md5 digest on a file record.
func (s *Store) UpdateFileHash(ctx context.Context, id int64, md5 string) error {
	return s.updateFile(ctx, id, `UPDATE files SET md5 = ? WHERE id = ?`, nullableString(md5), id)
}

// SetKnown records a file's hash-set classification.
func (s *Store) SetKnown(ctx context.Context, id int64, status KnownStatus) error {
	return s.updateFile(ctx, id, `UPDATE files SET known = ? WHERE id = ?`, string(status), id)
}

func (s *Store) updateFile(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update file %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanFile(scanner interface{ Scan(dest ...any) error }) (File, error) {
	var (
		f           File
		md5         sql.NullString
		known       string
		source      string
		contentPath sql.NullString
		batchID     sql.NullInt64
		offset      sql.NullInt64
	)
	if err := scanner.Scan(
		&f.ID, &f.FsObjID, &f.Name, &f.ParentPath, &f.MetaAddr, &f.DirType, &f.MetaType, &f.DirFlags, &f.MetaFlags,
		&f.Size, &f.Ctime, &f.Crtime, &f.Atime, &f.Mtime, &f.Mode, &f.UID, &f.GID,
		&md5, &known, &source, &contentPath, &batchID, &offset,
	); err != nil {
		return File{}, err
	}
	f.MD5 = md5.String
	f.Known = KnownStatus(known)
	f.Source = Source(source)
	f.ContentPath = contentPath.String
	f.CarveBatchID = batchID.Int64
	f.CarveOffset = offset.Int64
	return f, nil
}
