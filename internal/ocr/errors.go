package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when extraction exceeds its deadline.
	ErrTimeout = errors.New("ocr timed out")

	// ErrExecutionFailed covers launch failures, non-zero exits and backend API errors.
	ErrExecutionFailed = errors.New("ocr execution failed")

	// ErrMalformedOutput is returned when the artifact cannot be parsed.
	ErrMalformedOutput = errors.New("malformed ocr output")

	// ErrNoTextExtracted means extraction ran but produced no lines.
	ErrNoTextExtracted = errors.New("no text extracted")
)

// Error wraps an extraction failure with the operation and diagnostic output.
// Details may contain process stderr and is meant for logs only.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s: %v: %s", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("ocr: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
