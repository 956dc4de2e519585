package utils

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{
			name:     "empty existing",
			existing: Label{},
			incoming: Label{Value: "hybrid", Source: "rank"},
			want:     Label{Value: "hybrid", Source: "rank"},
		},
		{
			name:     "empty incoming",
			existing: Label{Value: "hybrid", Source: "rank"},
			incoming: Label{},
			want:     Label{Value: "hybrid", Source: "rank"},
		},
		{
			name:     "accumulate",
			existing: Label{Value: "fallback", Source: "rank"},
			incoming: Label{Value: "context", Source: "rerank"},
			want:     Label{Value: "fallback|context", Source: "rank,rerank"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeLabel(tt.existing, tt.incoming)
			if got != tt.want {
				t.Errorf("MergeLabel() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFirstValue(t *testing.T) {
	if got := FirstValue(Label{Value: "a|b|c"}); got != "a" {
		t.Errorf("FirstValue = %q, want a", got)
	}
	if got := FirstValue(Label{Value: "single"}); got != "single" {
		t.Errorf("FirstValue = %q, want single", got)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "artifact.json")
	if err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "ok")
		return err
	}); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "ok" {
		t.Fatalf("read back %q, %v", data, err)
	}

	boom := errors.New("boom")
	if err := WriteFileAtomic(path, func(io.Writer) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "ok" {
		t.Fatalf("failed write must keep previous content, got %q", data)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil || len(entries) != 1 {
		t.Fatalf("temp files left behind: %v, %v", entries, err)
	}
}
