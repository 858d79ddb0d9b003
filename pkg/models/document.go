package models

import (
	"math"
	"time"
)

// DocumentType is the declared or detected class of a scanned document.
type DocumentType string

const (
	DocumentTypeUnknown         DocumentType = ""
	DocumentTypePassport        DocumentType = "passport"
	DocumentTypeDriversLicense  DocumentType = "drivers_license"
	DocumentTypeNationalID      DocumentType = "national_id"
	DocumentTypeResidencePermit DocumentType = "residence_permit"
	DocumentTypeVisa            DocumentType = "visa"
	DocumentTypeInsuranceCard   DocumentType = "insurance_card"
	DocumentTypeOther           DocumentType = "other"
)

// IsIdentity reports whether the type belongs to the identity class that the
// ID-specialized recognizers handle best.
func (t DocumentType) IsIdentity() bool {
	switch t {
	case DocumentTypePassport, DocumentTypeDriversLicense, DocumentTypeNationalID:
		return true
	}
	return false
}

// ParseDocumentType maps user input onto a DocumentType. Unknown values map to
// DocumentTypeOther, empty input to DocumentTypeUnknown.
func ParseDocumentType(s string) DocumentType {
	switch s {
	case "":
		return DocumentTypeUnknown
	case "passport":
		return DocumentTypePassport
	case "drivers_license", "license", "driver_license", "dl":
		return DocumentTypeDriversLicense
	case "national_id", "id", "id_card":
		return DocumentTypeNationalID
	case "residence_permit":
		return DocumentTypeResidencePermit
	case "visa":
		return DocumentTypeVisa
	case "insurance_card", "insurance":
		return DocumentTypeInsuranceCard
	default:
		return DocumentTypeOther
	}
}

// Service identifies a recognition backend, or "auto" when the caller leaves
// the choice to the orchestrator.
type Service string

const (
	ServiceAuto       Service = "auto"
	ServiceMicroblink Service = "microblink"
	ServiceDocumentAI Service = "documentai"
	ServiceGoogle     Service = "google"
	ServiceTesseract  Service = "tesseract"
)

// ParseService returns the Service named by s and whether it is known.
// Empty input is ServiceAuto.
func ParseService(s string) (Service, bool) {
	switch Service(s) {
	case "", ServiceAuto:
		return ServiceAuto, true
	case ServiceMicroblink, ServiceDocumentAI, ServiceGoogle, ServiceTesseract:
		return Service(s), true
	}
	return "", false
}

// Field names used as FieldMap keys.
const (
	FieldDocumentNumber = "documentNumber"
	FieldFirstName      = "firstName"
	FieldLastName       = "lastName"
	FieldFullName       = "fullName"
	FieldDateOfBirth    = "dateOfBirth"
	FieldExpirationDate = "expirationDate"
	FieldIssueDate      = "issueDate"
	FieldNationality    = "nationality"
)

// Field is a single extracted value with its confidence (0-100).
type Field struct {
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
}

// FieldMap maps field names to extracted values. A missing key means the field
// was not found; keys are never filled with placeholders.
type FieldMap map[string]Field

// Set stores a field, clamping its confidence into [0,100].
func (m FieldMap) Set(name, value string, confidence int) {
	m[name] = Field{Value: value, Confidence: ClampConfidence(confidence)}
}

// Has reports whether name was extracted.
func (m FieldMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// MeanConfidence is the rounded arithmetic mean of the field confidences, or 0
// for an empty map.
func (m FieldMap) MeanConfidence() int {
	if len(m) == 0 {
		return 0
	}
	sum := 0
	for _, f := range m {
		sum += f.Confidence
	}
	return ClampConfidence(int(math.Round(float64(sum) / float64(len(m)))))
}

// ClampConfidence bounds c to [0,100].
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// DetectedType is a document classification with confidence.
type DetectedType struct {
	Type       DocumentType `json:"type"`
	Confidence int          `json:"confidence"`
}

// QualityTier buckets a quality score.
type QualityTier string

const (
	QualityPoor QualityTier = "poor"
	QualityFair QualityTier = "fair"
	QualityGood QualityTier = "good"
)

// QualityAssessment is the pre-flight verdict on an input image. It is derived
// per scan attempt and never persisted.
type QualityAssessment struct {
	Score  int         `json:"score"`
	Tier   QualityTier `json:"quality_tier"`
	Issues []string    `json:"issues"`
}

// AttemptOutcome describes what happened to one backend in the fallback chain.
type AttemptOutcome string

const (
	AttemptAccepted AttemptOutcome = "accepted"
	AttemptRejected AttemptOutcome = "rejected"
	AttemptFailed   AttemptOutcome = "failed"
	AttemptSkipped  AttemptOutcome = "skipped"
)

// Attempt records one backend's part in producing (or not) the result.
type Attempt struct {
	Source     Service        `json:"source"`
	Outcome    AttemptOutcome `json:"outcome"`
	Confidence int            `json:"confidence,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// RecognitionResult is the unified output of one OCR invocation. Fields always
// come from the single backend named by Source.
type RecognitionResult struct {
	Text                 string            `json:"text"`
	Confidence           int               `json:"confidence"`
	Source               Service           `json:"source"`
	Language             string            `json:"language"`
	Fields               FieldMap          `json:"fields"`
	DetectedDocumentType *DetectedType     `json:"detected_document_type,omitempty"`
	Quality              QualityAssessment `json:"quality"`
	Attempts             []Attempt         `json:"attempts,omitempty"`
	ProcessedAt          time.Time         `json:"processed_at"`
	ProcessingDuration   time.Duration     `json:"processing_duration"`
}
