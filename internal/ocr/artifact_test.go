package ocr

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func writeArtifactFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestNormalize_PreservesOrderAndCount(t *testing.T) {
	lines := []string{"COMPLETE BLOOD COUNT", "Hemoglobin 9.3 g/dL", "", "Platelet Count 520"}
	path := filepath.Join(t.TempDir(), "artifact.json")
	if err := WriteArtifact(path, lines); err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}

	n := &Normalizer{Log: zerolog.Nop()}
	report, err := n.Normalize(path)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if report.LineCount != len(lines) || len(report.Lines) != len(lines) {
		t.Fatalf("line count mismatch: %d", report.LineCount)
	}
	if report.Text() != strings.Join(lines, "\n") {
		t.Fatalf("order not preserved: %q", report.Text())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("artifact should be removed after success, stat err=%v", err)
	}
}

func TestNormalize_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"missing field", `{"line_count": 0}`, ErrNoTextExtracted},
		{"null field", `{"extracted_text": null}`, ErrNoTextExtracted},
		{"empty list", `{"extracted_text": [], "line_count": 0}`, ErrNoTextExtracted},
		{"invalid json", `{"extracted_text": [`, ErrMalformedOutput},
		{"not an object", `["a", "b"]`, ErrMalformedOutput},
		{"json null", `null`, ErrMalformedOutput},
		{"wrong element type", `{"extracted_text": [1, 2]}`, ErrMalformedOutput},
		{"wrong field type", `{"extracted_text": "Hemoglobin"}`, ErrMalformedOutput},
		{"bad line_count", `{"extracted_text": ["a"], "line_count": "one"}`, ErrMalformedOutput},
	}
	n := &Normalizer{Log: zerolog.Nop()}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(writeArtifactFile(t, tt.content))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want == ErrNoTextExtracted && errors.Is(err, ErrMalformedOutput) {
				t.Fatalf("no-text must stay distinct from malformed: %v", err)
			}
		})
	}
}

func TestNormalize_MissingArtifact(t *testing.T) {
	n := &Normalizer{Log: zerolog.Nop()}
	_, err := n.Normalize(filepath.Join(t.TempDir(), "never-written.json"))
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestNormalize_LineCountMismatchIsNotFatal(t *testing.T) {
	n := &Normalizer{Log: zerolog.Nop()}
	report, err := n.Normalize(writeArtifactFile(t, `{"extracted_text": ["a", "b"], "line_count": 7}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.LineCount != 2 {
		t.Fatalf("expected 2 lines, got %d", report.LineCount)
	}
}

func TestAllocateArtifact_UniqueUnderConcurrency(t *testing.T) {
	dir := t.TempDir()
	const workers = 50

	var (
		mu    sync.Mutex
		seen  = make(map[string]struct{})
		wg    sync.WaitGroup
		dupes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := AllocateArtifact(dir)
			if err != nil {
				t.Errorf("AllocateArtifact: %v", err)
				return
			}
			mu.Lock()
			if _, ok := seen[path]; ok {
				dupes++
			}
			seen[path] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if dupes != 0 || len(seen) != workers {
		t.Fatalf("expected %d unique paths, got %d (dupes=%d)", workers, len(seen), dupes)
	}
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("  Hemoglobin 9.3 \r\n\r\n\tRBC 4.1\n   \n")
	if len(got) != 2 || got[0] != "Hemoglobin 9.3" || got[1] != "RBC 4.1" {
		t.Fatalf("unexpected lines: %q", got)
	}
	if SplitLines("") != nil {
		t.Fatal("expected nil for empty text")
	}
}
