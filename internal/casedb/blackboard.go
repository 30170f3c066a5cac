package casedb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Attribute is one blackboard entry for a file.
type Attribute struct {
	FileID int64
	Name   string
	Value  json.RawMessage
}

// Result parses the value for gjson queries.
func (a Attribute) Result() gjson.Result {
	return gjson.ParseBytes(a.Value)
}

// Get reads a gjson path inside the value.
func (a Attribute) Get(path string) gjson.Result {
	return gjson.GetBytes(a.Value, path)
}

// String returns the value as text. JSON strings are unquoted.
func (a Attribute) String() string {
	return a.Result().String()
}

// PutAttribute writes value (marshalled to JSON) under name for fileID,
// replacing any previous value.
func (s *Store) PutAttribute(ctx context.Context, fileID int64, name string, value any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("attribute name is required")
	}
	var payload []byte
	switch v := value.(type) {
	case json.RawMessage:
		if !gjson.ValidBytes(v) {
			return fmt.Errorf("attribute %s: invalid JSON value", name)
		}
		payload = v
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal attribute %s: %w", name, err)
		}
		payload = encoded
	}
	_, err := s.exec(ctx,
		`INSERT INTO blackboard (file_id, name, value_json, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(file_id, name) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`,
		fileID, name, string(payload), now(),
	)
	if err != nil {
		return fmt.Errorf("put attribute %s on file %d: %w", name, fileID, err)
	}
	return nil
}

// Attribute returns one named attribute. Missing attributes return ErrNotFound.
func (s *Store) Attribute(ctx context.Context, fileID int64, name string) (Attribute, error) {
	attrs, err := s.queryAttributes(ctx, `WHERE file_id = ? AND name = ?`, fileID, name)
	if err != nil {
		return Attribute{}, err
	}
	if len(attrs) == 0 {
		return Attribute{}, fmt.Errorf("attribute %s on file %d: %w", name, fileID, ErrNotFound)
	}
	return attrs[0], nil
}

// Attributes returns a file's attributes ordered by name.
func (s *Store) Attributes(ctx context.Context, fileID int64) ([]Attribute, error) {
	return s.queryAttributes(ctx, `WHERE file_id = ?`, fileID)
}

// AllAttributes returns every attribute ordered by file id and name.
func (s *Store) AllAttributes(ctx context.Context) ([]Attribute, error) {
	return s.queryAttributes(ctx, ``)
}

func (s *Store) queryAttributes(ctx context.Context, where string, args ...any) ([]Attribute, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, name, value_json FROM blackboard `+where+` ORDER BY file_id, name`, args...)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	var attrs []Attribute
	for rows.Next() {
		var (
			a   Attribute
			raw string
		)
		if err := rows.Scan(&a.FileID, &a.Name, &raw); err != nil {
			return nil, err
		}
		a.Value = json.RawMessage(raw)
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}
