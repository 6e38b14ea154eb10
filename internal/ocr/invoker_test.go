package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ocr.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandInvoker_Success(t *testing.T) {
	script := writeScript(t, `printf '{"extracted_text":["Hemoglobin 9.3"],"line_count":1}' > "$2"
echo "warning: low dpi" >&2`)
	artifact := filepath.Join(t.TempDir(), "out.json")

	inv := NewCommandInvoker(script, nil, 5*time.Second, zerolog.Nop())
	if err := inv.Invoke(context.Background(), "/tmp/input.png", artifact); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	data, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(data), "Hemoglobin") {
		t.Fatalf("unexpected artifact: %s", data)
	}
}

func TestCommandInvoker_PassesPathsInOrder(t *testing.T) {
	script := writeScript(t, `echo "$1|$2" > "$2"`)
	artifact := filepath.Join(t.TempDir(), "out.json")

	inv := NewCommandInvoker(script, nil, 5*time.Second, zerolog.Nop())
	if err := inv.Invoke(context.Background(), "/images/a.png", artifact); err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	data, _ := os.ReadFile(artifact)
	if got := strings.TrimSpace(string(data)); got != "/images/a.png|"+artifact {
		t.Fatalf("unexpected args: %s", got)
	}
}

func TestCommandInvoker_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "tesseract: cannot open image" >&2
exit 3`)
	inv := NewCommandInvoker(script, nil, 5*time.Second, zerolog.Nop())

	err := inv.Invoke(context.Background(), "in.png", filepath.Join(t.TempDir(), "out.json"))
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	var ocrErr *Error
	if !errors.As(err, &ocrErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !strings.Contains(ocrErr.Details, "cannot open image") {
		t.Fatalf("stderr not captured: %q", ocrErr.Details)
	}
}

func TestCommandInvoker_MissingBinary(t *testing.T) {
	inv := NewCommandInvoker("/nonexistent/ocr-tool", nil, time.Second, zerolog.Nop())
	err := inv.Invoke(context.Background(), "in.png", "out.json")
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("expected ErrExecutionFailed, got %v", err)
	}
	if inv.EnsureBinary() == nil {
		t.Fatal("expected EnsureBinary to fail")
	}
}

func TestCommandInvoker_Timeout(t *testing.T) {
	script := writeScript(t, `exec sleep 10`)
	inv := NewCommandInvoker(script, nil, 200*time.Millisecond, zerolog.Nop())

	start := time.Now()
	err := inv.Invoke(context.Background(), "in.png", filepath.Join(t.TempDir(), "out.json"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process not killed promptly: %v", elapsed)
	}
}

func TestCommandInvoker_ParentCanceled(t *testing.T) {
	script := writeScript(t, `exec sleep 10`)
	inv := NewCommandInvoker(script, nil, 10*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	err := inv.Invoke(ctx, "in.png", filepath.Join(t.TempDir(), "out.json"))
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("cancellation must not be reported as timeout: %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewCommandInvoker_SplitsCommand(t *testing.T) {
	inv := NewCommandInvoker("python3 tools/ocr.py", []string{"--lang", "eng"}, 0, zerolog.Nop())
	if inv.Binary != "python3" {
		t.Fatalf("unexpected binary %q", inv.Binary)
	}
	want := []string{"tools/ocr.py", "--lang", "eng"}
	if strings.Join(inv.Args, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected args %v", inv.Args)
	}

	def := NewCommandInvoker("", nil, 0, zerolog.Nop())
	if def.Binary != "ocr-extract" {
		t.Fatalf("expected default binary, got %q", def.Binary)
	}
}
