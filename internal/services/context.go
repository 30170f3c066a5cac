package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	taskKindKey  contextKey = "task_kind"
	moduleKey    contextKey = "module"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with the task identifier being processed.
func WithTaskID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the task identifier if present.
func TaskIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(taskIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithTaskKind annotates context with the task kind label.
func WithTaskKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKindKey, kind)
}

// TaskKindFromContext returns the task kind if present.
func TaskKindFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(taskKindKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithModule annotates context with the analysis module name.
func WithModule(ctx context.Context, module string) context.Context {
	if module == "" {
		return ctx
	}
	return context.WithValue(ctx, moduleKey, module)
}

// ModuleFromContext returns the module name if present.
func ModuleFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(moduleKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
