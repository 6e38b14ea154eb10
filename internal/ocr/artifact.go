package ocr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"labreader/internal/models"
)

// Artifact is the JSON document an OCR process leaves behind.
type Artifact struct {
	ExtractedText []string `json:"extracted_text"`
	LineCount     int      `json:"line_count"`
}

// AllocateArtifact returns a fresh artifact path inside dir. The file itself is not created.
func AllocateArtifact(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	return filepath.Join(dir, "ocr-"+uuid.NewString()+".json"), nil
}

// SplitLines trims every line and drops the empty ones.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// WriteArtifact writes lines in the artifact format.
func WriteArtifact(path string, lines []string) error {
	if lines == nil {
		lines = []string{}
	}
	data, err := json.MarshalIndent(Artifact{ExtractedText: lines, LineCount: len(lines)}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Normalizer turns an artifact into an ExtractedReport.
type Normalizer struct {
	Log zerolog.Logger
}

// Normalize reads and validates the artifact at path. The artifact is removed on success.
func (n *Normalizer) Normalize(path string) (*models.ExtractedReport, error) {
	const op = "normalize"
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(op, ErrMalformedOutput, "artifact was not written")
		}
		return nil, newError(op, fmt.Errorf("%w: %w", ErrMalformedOutput, err), "")
	}

	lines, declared, err := parseArtifact(data)
	if err != nil {
		return nil, newError(op, err, "")
	}
	if declared != nil && *declared != len(lines) {
		n.Log.Warn().Int("line_count", *declared).Int("lines", len(lines)).Msg("artifact line_count does not match extracted_text")
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		n.Log.Warn().Err(err).Str("path", path).Msg("remove ocr artifact failed")
	}
	return models.NewExtractedReport(lines), nil
}

func parseArtifact(data []byte) ([]string, *int, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: artifact is not an object", ErrMalformedOutput)
	}

	raw, ok := doc["extracted_text"]
	if !ok || isNull(raw) {
		return nil, nil, ErrNoTextExtracted
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, nil, fmt.Errorf("%w: extracted_text: %v", ErrMalformedOutput, err)
	}
	if len(lines) == 0 {
		return nil, nil, ErrNoTextExtracted
	}

	var declared *int
	if rawCount, ok := doc["line_count"]; ok && !isNull(rawCount) {
		var n int
		if err := json.Unmarshal(rawCount, &n); err != nil {
			return nil, nil, fmt.Errorf("%w: line_count: %v", ErrMalformedOutput, err)
		}
		declared = &n
	}
	return lines, declared, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
