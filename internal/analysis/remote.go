package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"labreader/internal/config"
	"labreader/internal/models"
)

const (
	defaultMaxInputChars = 3000
	defaultCallTimeout   = 60 * time.Second

	systemInstruction = "You are an assistant that explains blood test reports in plain language. " +
		"You do not diagnose conditions or prescribe medication, and you always recommend " +
		"confirming results with a qualified doctor."

	promptTemplate = `Here is the text extracted from a medical lab report:
---
%s
---

Please analyze this report. Your task is to:
1. List all tests that are outside the normal value range.
2. For each abnormal test, specify if it's 'Low' or 'High' and give the normal range.
3. Provide a brief, simple summary of the findings.
4. Suggest simple dietary and lifestyle advice related to the abnormal values.`
)

// completer issues a single text completion.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// Remote asks an external text-generation service to analyze the report.
type Remote struct {
	name          string
	backend       completer
	maxInputChars int
	maxAttempts   int
	backoff       time.Duration
	timeout       time.Duration
	log           zerolog.Logger
}

func NewRemote(name string, backend completer, cfg config.AnalysisConfig, log zerolog.Logger) *Remote {
	r := &Remote{
		name:          name,
		backend:       backend,
		maxInputChars: cfg.MaxInputChars,
		maxAttempts:   cfg.MaxAttempts,
		backoff:       time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		timeout:       secondsOr(cfg.TimeoutSeconds, defaultCallTimeout),
		log:           log.With().Str("provider", name).Logger(),
	}
	if r.maxInputChars <= 0 {
		r.maxInputChars = defaultMaxInputChars
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 1
	}
	return r
}

func (r *Remote) Name() string {
	return r.name
}

func (r *Remote) Analyze(ctx context.Context, report *models.ExtractedReport) (result *models.AnalysisResult, err error) {
	defer recoverUnavailable(r.name, &err)

	text := truncateRunes(report.Text(), r.maxInputChars)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s: empty report text", ErrUnavailable, r.name)
	}
	prompt := BuildPrompt(text)

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, r.backoff*time.Duration(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		out, err := r.call(ctx, prompt)
		if err == nil {
			return &models.AnalysisResult{
				Summary:    out,
				Successful: true,
				Provider:   r.name,
			}, nil
		}
		lastErr = err
		r.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", r.maxAttempts).Msg("remote analysis failed")
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, r.name, lastErr)
}

func (r *Remote) call(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.backend.complete(callCtx, systemInstruction, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}

// Close releases the backend client when it holds one.
func (r *Remote) Close() error {
	if c, ok := r.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// BuildPrompt embeds report text in the fixed analysis instruction.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
