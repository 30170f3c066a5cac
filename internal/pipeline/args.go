package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Args holds a module's [*.args] table from the pipeline configuration.
type Args map[string]any

// String returns a string argument or def.
func (a Args) String(key, def string) (string, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return def, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("argument %s: expected string, got %T", key, raw)
	}
	return strings.TrimSpace(value), nil
}

// Strings returns a string list argument. A single string is accepted as a
// one-element list.
func (a Args) Strings(key string) ([]string, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case string:
		return []string{strings.TrimSpace(v)}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argument %s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %s: expected list of strings, got %T", key, raw)
	}
}

// Int returns an integer argument or def.
func (a Args) Int(key string, def int64) (int64, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("argument %s: expected integer, got %v", key, v)
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("argument %s: expected integer, got %T", key, raw)
	}
}

// Bool returns a boolean argument or def.
func (a Args) Bool(key string, def bool) (bool, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return def, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("argument %s: expected bool, got %T", key, raw)
	}
	return value, nil
}

// Bytes returns a size argument given as an integer or a human-readable
// string such as "20MB".
func (a Args) Bytes(key string, def int64) (int64, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return def, nil
	}
	if s, ok := raw.(string); ok {
		size, err := humanize.ParseBytes(s)
		if err != nil {
			return 0, fmt.Errorf("argument %s: %w", key, err)
		}
		return int64(size), nil
	}
	return a.Int(key, def)
}

// Duration returns a duration argument given as seconds or a Go duration string.
func (a Args) Duration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return def, nil
	}
	if s, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return 0, fmt.Errorf("argument %s: %w", key, err)
		}
		return d, nil
	}
	seconds, err := a.Int(key, 0)
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// Map returns a nested table argument.
func (a Args) Map(key string) (map[string]any, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, nil
	}
	value, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %s: expected table, got %T", key, raw)
	}
	return value, nil
}
