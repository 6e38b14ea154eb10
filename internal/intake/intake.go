package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"labreader/internal/models"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrPayloadTooLarge      = errors.New("payload too large")
)

// AllowedTypes is the image set accepted for OCR.
var AllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
}

const maxBaseNameLen = 64

// Intake validates uploads and stores them under unique names.
type Intake struct {
	dir      string
	maxBytes int64
	allowed  map[string]struct{}
	now      func() time.Time
}

// New returns an Intake writing into dir and rejecting files larger than maxBytes.
func New(dir string, maxBytes int64) *Intake {
	allowed := make(map[string]struct{}, len(AllowedTypes))
	for _, t := range AllowedTypes {
		allowed[t] = struct{}{}
	}
	return &Intake{
		dir:      dir,
		maxBytes: maxBytes,
		allowed:  allowed,
		now:      time.Now,
	}
}

// MaxBytes reports the configured size limit.
func (in *Intake) MaxBytes() int64 {
	return in.maxBytes
}

// Store validates the declared type and size, then copies body to a fresh file.
// Nothing is left on disk when an error is returned.
func (in *Intake) Store(ctx context.Context, body io.Reader, name, mimeType string, size int64) (*models.UploadedFile, error) {
	mediaType := normalizeMediaType(mimeType)
	if _, ok := in.allowed[mediaType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mimeType)
	}
	if size > in.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, size, in.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	id := uuid.NewString()
	now := in.now()
	fileName := fmt.Sprintf("%d-%s-%s", now.UnixMilli(), id, SanitizeName(name))
	destPath := filepath.Join(in.dir, fileName)

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	written, copyErr := io.Copy(f, io.LimitReader(body, in.maxBytes+1))
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("write upload file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("close upload file: %w", closeErr)
	case written > in.maxBytes:
		_ = os.Remove(destPath)
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrPayloadTooLarge, in.maxBytes)
	}

	return &models.UploadedFile{
		ID:           id,
		FileName:     fileName,
		OriginalName: name,
		StoredPath:   destPath,
		MimeType:     mediaType,
		Size:         written,
		CreatedAt:    now,
	}, nil
}

func normalizeMediaType(v string) string {
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mediaType
}

// SanitizeName reduces a client-supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if len(out) > maxBaseNameLen {
		out = out[len(out)-maxBaseNameLen:]
	}
	if out == "" {
		return "upload"
	}
	return out
}
