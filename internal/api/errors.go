package api

import (
	"fmt"
	"net/http"

	"labreader/internal/pipeline"
)

// userError is what the client sees. It never carries raw error text.
type userError struct {
	status  int
	message string
	details string
}

func classify(err error, maxUploadBytes int64) userError {
	switch pipeline.Kind(err) {
	case pipeline.KindUnsupportedMediaType:
		return userError{http.StatusBadRequest, "Unsupported file type",
			"Please upload a JPEG, PNG, GIF, BMP or TIFF image of your report."}
	case pipeline.KindPayloadTooLarge:
		return userError{http.StatusBadRequest, "File too large",
			fmt.Sprintf("Images must be %s or smaller.", formatBytes(maxUploadBytes))}
	case pipeline.KindNoTextExtracted:
		return userError{http.StatusBadRequest, "No text found in the image",
			"Make sure the whole report is visible, in focus and well lit, then try again."}
	case pipeline.KindOCRTimeout:
		return userError{http.StatusInternalServerError, "Reading the report took too long",
			"Please try again with a clearer or smaller image."}
	case pipeline.KindOCRExecutionFailed:
		return userError{http.StatusInternalServerError, "Text extraction failed",
			"We could not read text from this image. Please try again later."}
	case pipeline.KindMalformedOCROutput:
		return userError{http.StatusInternalServerError, "Text extraction failed",
			"The text reader returned an unexpected result. Please try again with a clearer image."}
	default:
		return internalError
	}
}

var internalError = userError{http.StatusInternalServerError, "Something went wrong",
	"An unexpected error occurred while processing your report. Please try again later."}

func formatBytes(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	if n >= 1<<10 {
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}
