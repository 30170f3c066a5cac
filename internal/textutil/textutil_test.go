package textutil

import (
	"strings"
	"testing"
)

func TestLabel(t *testing.T) {
	cases := map[string]string{
		"file_analysis":      "File Analysis",
		"carve":              "Carve",
		"  ":                 "",
		"reporting-pipeline": "Reporting Pipeline",
	}
	for in, want := range cases {
		if got := Label(in); got != want {
			t.Fatalf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("JPEG Image"); got != "jpeg_image" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeToken("***"); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderTablePadsRows(t *testing.T) {
	out := RenderTable([]string{"ID", "Name"}, [][]string{{"1"}, {"2", "b.txt"}}, []Align{AlignRight})
	if !strings.Contains(out, "ID") || !strings.Contains(out, "b.txt") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if got := strings.Count(out, "\n"); got < 4 {
		t.Fatalf("expected header and two rows, got:\n%s", out)
	}
	if RenderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}
