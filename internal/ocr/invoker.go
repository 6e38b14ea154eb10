package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBinary  = "ocr-extract"
	defaultTimeout = 30 * time.Second
	waitDelay      = 2 * time.Second
	maxStderrBytes = 8 << 10
)

// Invoker runs text extraction for one image and writes the artifact to artifactPath.
type Invoker interface {
	Invoke(ctx context.Context, imagePath, artifactPath string) error
}

// CommandInvoker runs an external OCR tool as
// `<binary> [args...] <input_image_path> <output_json_path>`.
type CommandInvoker struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewCommandInvoker splits command on whitespace so wrappers like
// "python3 tools/ocr.py" can be configured as a single string.
func NewCommandInvoker(command string, args []string, timeout time.Duration, log zerolog.Logger) *CommandInvoker {
	fields := strings.Fields(command)
	binary := defaultBinary
	if len(fields) > 0 {
		binary = fields[0]
		args = append(append([]string{}, fields[1:]...), args...)
	}
	return &CommandInvoker{
		Binary:  binary,
		Args:    args,
		Timeout: timeout,
		Log:     log,
	}
}

// Invoke blocks until the process exits, the deadline passes, or ctx is canceled.
func (p *CommandInvoker) Invoke(ctx context.Context, imagePath, artifactPath string) error {
	const op = "invoke"
	if imagePath == "" || artifactPath == "" {
		return newError(op, ErrExecutionFailed, "image and artifact paths are required")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, p.Args...), imagePath, artifactPath)
	cmd := exec.CommandContext(cmdCtx, p.Binary, args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	diag := truncate(strings.TrimSpace(stderr.String()), maxStderrBytes)
	elapsed := time.Since(start)

	if err == nil {
		if diag != "" {
			p.Log.Warn().Str("binary", p.Binary).Str("stderr", diag).Msg("ocr process wrote to stderr")
		}
		p.Log.Debug().Dur("elapsed", elapsed).Msg("ocr process finished")
		return nil
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return newError(op, fmt.Errorf("%w: %w", ErrExecutionFailed, ctx.Err()), diag)
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		p.Log.Warn().Dur("timeout", timeout).Str("stderr", diag).Msg("ocr process killed after deadline")
		return newError(op, ErrTimeout, diag)
	default:
		p.Log.Error().Err(err).Str("binary", p.Binary).Str("stderr", diag).Msg("ocr process failed")
		return newError(op, fmt.Errorf("%w: %w", ErrExecutionFailed, err), diag)
	}
}

// EnsureBinary checks whether the OCR binary is available on PATH.
func (p *CommandInvoker) EnsureBinary() error {
	if _, err := exec.LookPath(p.Binary); err != nil {
		return fmt.Errorf("ocr binary not found (%s): %w", p.Binary, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
