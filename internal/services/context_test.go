package services_test

import (
	"context"
	"testing"

	"triage/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTaskID(ctx, 42)
	ctx = services.WithTaskKind(ctx, "file_analysis")
	ctx = services.WithModule(ctx, "hash")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.TaskIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected task id: %v %v", id, ok)
	}
	if kind, ok := services.TaskKindFromContext(ctx); !ok || kind != "file_analysis" {
		t.Fatalf("unexpected task kind: %v %v", kind, ok)
	}
	if module, ok := services.ModuleFromContext(ctx); !ok || module != "hash" {
		t.Fatalf("unexpected module: %v %v", module, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithModule(ctx, "")
	ctx = services.WithTaskKind(ctx, "")
	if _, ok := services.ModuleFromContext(ctx); ok {
		t.Fatal("expected no module value")
	}
	if _, ok := services.TaskKindFromContext(ctx); ok {
		t.Fatal("expected no task kind value")
	}
	if _, ok := services.TaskIDFromContext(ctx); ok {
		t.Fatal("expected no task id value")
	}
}
