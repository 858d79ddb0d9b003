package ocr

import (
	"errors"
	"fmt"
	"strings"

	"docscan/internal/pixel"
	"docscan/pkg/models"
)

// Common pipeline errors
var (
	// ErrLowQuality is matched by every *QualityError.
	ErrLowQuality = errors.New("image quality below the acceptance gate")

	// ErrAllBackendsExhausted is returned when no backend in the chain produced
	// an acceptable result. It is terminal for the invocation.
	ErrAllBackendsExhausted = errors.New("all recognition backends exhausted")

	// ErrNoBackends is returned when the chain is empty after skipping
	// unavailable backends.
	ErrNoBackends = errors.New("no recognition backend is available")

	// ErrContextCanceled is returned when the context is canceled between
	// pipeline stages.
	ErrContextCanceled = errors.New("OCR processing was canceled")
)

// UserMessageExhausted is what the caller shows when every backend failed.
const UserMessageExhausted = "We couldn't read this document. Please try again with a clearer photo or enter the details manually."

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "PerformOCR", "assess").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}

// QualityError rejects an image at the quality gate. It carries the full
// assessment so callers can show the issues.
type QualityError struct {
	Assessment models.QualityAssessment
	Gate       int
}

func (e *QualityError) Error() string {
	msg := fmt.Sprintf("image quality too low (score %d < %d)", e.Assessment.Score, e.Gate)
	if len(e.Assessment.Issues) > 0 {
		msg += ": " + strings.Join(e.Assessment.Issues, ", ")
	}
	return msg
}

// Is makes errors.Is(err, ErrLowQuality) true.
func (e *QualityError) Is(target error) bool {
	return target == ErrLowQuality
}

// UserMessage turns a pipeline error into a sentence suitable for end users.
func UserMessage(err error) string {
	var qe *QualityError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &qe):
		if len(qe.Assessment.Issues) > 0 {
			return fmt.Sprintf("The photo isn't clear enough (%s). Please retake it on a flat surface in good light.",
				strings.Join(qe.Assessment.Issues, ", "))
		}
		return "The photo isn't clear enough. Please retake it on a flat surface in good light."
	case errors.Is(err, ErrAllBackendsExhausted), errors.Is(err, ErrNoBackends):
		return UserMessageExhausted
	case errors.Is(err, pixel.ErrUnsupportedFormat):
		return "This file type isn't supported. Please upload a JPEG, PNG, HEIC or PDF."
	case errors.Is(err, pixel.ErrEmptyImage):
		return "The uploaded image is empty."
	case errors.Is(err, pixel.ErrImageTooLarge):
		return "The uploaded file is too large. The maximum size is 20MB."
	case errors.Is(err, ErrContextCanceled):
		return "The scan was canceled."
	}
	return UserMessageExhausted
}
