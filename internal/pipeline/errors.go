package pipeline

import (
	"context"
	"errors"

	"labreader/internal/intake"
	"labreader/internal/ocr"
)

// Error kinds stored in the run ledger and used to pick user-facing messages.
const (
	KindUnsupportedMediaType = "unsupported_media_type"
	KindPayloadTooLarge      = "payload_too_large"
	KindOCRTimeout           = "ocr_timeout"
	KindOCRExecutionFailed   = "ocr_execution_failed"
	KindMalformedOCROutput   = "malformed_ocr_output"
	KindNoTextExtracted      = "no_text_extracted"
	KindCanceled             = "canceled"
	KindPanic                = "panic"
	KindInternal             = "internal"
)

// Kind classifies a pipeline error.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, intake.ErrUnsupportedMediaType):
		return KindUnsupportedMediaType
	case errors.Is(err, intake.ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ocr.ErrTimeout):
		return KindOCRTimeout
	case errors.Is(err, ocr.ErrNoTextExtracted):
		return KindNoTextExtracted
	case errors.Is(err, ocr.ErrMalformedOutput):
		return KindMalformedOCROutput
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ocr.ErrExecutionFailed):
		return KindOCRExecutionFailed
	default:
		return KindInternal
	}
}
