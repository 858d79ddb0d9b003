// Package recognizer defines the contract every text recognition backend
// implements and the tagged error type the retry policy and the orchestrator
// act on.
package recognizer

import (
	"context"
	"image"

	"docscan/pkg/models"
)

// Kind is the class of a backend. It decides the acceptance threshold the
// orchestrator applies to the backend's confidence.
type Kind int

const (
	// KindIdentity backends are specialized in identity documents and return
	// structured fields.
	KindIdentity Kind = iota
	// KindVision backends are generic cloud text recognizers.
	KindVision
	// KindOffline backends run locally and are the last resort.
	KindOffline
)

func (k Kind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindVision:
		return "vision"
	case KindOffline:
		return "offline"
	}
	return "unknown"
}

// Request is the input of a single recognition call.
type Request struct {
	Image        *image.NRGBA
	Language     string
	DocumentType models.DocumentType
}

// Response is what a backend recognized. Structured backends fill Fields;
// text-first backends leave it empty and the orchestrator extracts fields from
// Text. HasConfidence is false when the backend supplies no overall score.
type Response struct {
	Text                 string
	Confidence           int
	HasConfidence        bool
	Language             string
	Fields               models.FieldMap
	DetectedDocumentType *models.DetectedType
}

// Backend is a text recognition engine.
type Backend interface {
	Name() models.Service
	Kind() Kind
	// Available reports whether the backend is configured. It does no I/O.
	Available() bool
	Recognize(ctx context.Context, req Request) (*Response, error)
}
