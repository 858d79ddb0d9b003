// Package microblink implements the identity-document backend on top of the
// BlinkID cloud REST API.
package microblink

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/fields"
	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/recognizer"
	"docscan/pkg/models"
)

const (
	// DefaultBaseURL is the BlinkID cloud endpoint root.
	DefaultBaseURL = "https://api.microblink.com/v1"

	recognizePath = "/recognizers/blinkid"

	// BlinkID reports no per-field score; values it returns are taken at
	// this confidence, raised when the MRZ checksums verify.
	fieldConfidence       = 90
	verifiedMRZConfidence = 98

	maxResponseBytes = 4 << 20
)

// Config holds the BlinkID credentials.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// Backend calls BlinkID. It is safe for concurrent use.
type Backend struct {
	config     Config
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates the backend. A nil httpClient uses http.DefaultClient.
func New(config Config, httpClient *http.Client) *Backend {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Backend{
		config:     config,
		httpClient: httpClient,
		log:        logger.WithComponent("microblink"),
	}
}

func (b *Backend) Name() models.Service { return models.ServiceMicroblink }

func (b *Backend) Kind() recognizer.Kind { return recognizer.KindIdentity }

func (b *Backend) Available() bool {
	return b.config.APIKey != "" && b.config.APISecret != ""
}

type recognizeRequest struct {
	ImageSource             string `json:"imageSource"`
	ReturnFullDocumentImage bool   `json:"returnFullDocumentImage"`
	ReturnFaceImage         bool   `json:"returnFaceImage"`
}

type recognizeResponse struct {
	Code    string         `json:"code"`
	Summary string         `json:"summary"`
	Result  *blinkIDResult `json:"result"`
}

type blinkIDResult struct {
	RecognitionStatus string     `json:"recognitionStatus"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	FullName          string     `json:"fullName"`
	DocumentNumber    string     `json:"documentNumber"`
	Nationality       string     `json:"nationality"`
	DateOfBirth       *blinkDate `json:"dateOfBirth"`
	DateOfExpiry      *blinkDate `json:"dateOfExpiry"`
	DateOfIssue       *blinkDate `json:"dateOfIssue"`
	ClassInfo         struct {
		Country      string `json:"country"`
		DocumentType string `json:"documentType"`
	} `json:"classInfo"`
	MRZ *struct {
		RawMRZString string `json:"rawMRZString"`
		Verified     bool   `json:"verified"`
	} `json:"mrzData"`
}

type blinkDate struct {
	Day            int    `json:"day"`
	Month          int    `json:"month"`
	Year           int    `json:"year"`
	OriginalString string `json:"originalString"`
}

// Recognize uploads the image as a base64 JPEG data URI and maps the BlinkID
// result onto document fields.
func (b *Backend) Recognize(ctx context.Context, req recognizer.Request) (*recognizer.Response, error) {
	if !b.Available() {
		return nil, recognizer.NewError(b.Name(), recognizer.Unavailable, errors.New("MICROBLINK_API_KEY and MICROBLINK_API_SECRET are required"))
	}
	if req.Image == nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, pixel.ErrEmptyImage)
	}

	jpeg, err := pixel.EncodeBytes(req.Image, pixel.FormatJPEG)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, fmt.Errorf("encode image: %w", err))
	}
	body, err := json.Marshal(recognizeRequest{
		ImageSource: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
	})
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, b.config.BaseURL+recognizePath, bytes.NewReader(body))
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.token())

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.NetworkFailure, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.NetworkFailure, fmt.Errorf("read response: %w", err))
	}

	b.log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(payload)).
		Msg("BlinkID response received")

	if e := recognizer.FromHTTP(b.Name(), resp.StatusCode, resp.Header.Get("Retry-After"), apiMessage(payload)); e != nil {
		return nil, e
	}

	var decoded recognizeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ServerError, fmt.Errorf("decode response: %w", err))
	}
	if decoded.Result == nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, recognizer.ErrEmptyText)
	}

	out := b.toResponse(decoded.Result, req.Language)
	if len(out.Fields) == 0 {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, recognizer.ErrEmptyText)
	}
	return out, nil
}

// token is the BlinkID bearer credential: base64 of "key:secret".
func (b *Backend) token() string {
	return base64.StdEncoding.EncodeToString([]byte(b.config.APIKey + ":" + b.config.APISecret))
}

func (b *Backend) toResponse(r *blinkIDResult, language string) *recognizer.Response {
	conf := fieldConfidence
	if r.MRZ != nil && r.MRZ.Verified {
		conf = verifiedMRZConfidence
	}

	fm := models.FieldMap{}
	setIf := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fm.Set(name, value, conf)
		}
	}
	setIf(models.FieldDocumentNumber, r.DocumentNumber)
	setIf(models.FieldFirstName, r.FirstName)
	setIf(models.FieldLastName, r.LastName)
	fullName := r.FullName
	if fullName == "" && r.FirstName != "" && r.LastName != "" {
		fullName = r.FirstName + " " + r.LastName
	}
	setIf(models.FieldFullName, fullName)
	setIf(models.FieldNationality, r.Nationality)
	setIf(models.FieldDateOfBirth, r.DateOfBirth.normalized())
	setIf(models.FieldExpirationDate, r.DateOfExpiry.normalized())
	setIf(models.FieldIssueDate, r.DateOfIssue.normalized())

	var text string
	if r.MRZ != nil && r.MRZ.RawMRZString != "" {
		text = r.MRZ.RawMRZString
	} else {
		text = fieldsText(fm)
	}

	out := &recognizer.Response{
		Text:     text,
		Language: language,
		Fields:   fm,
	}
	if t := MapDocumentType(r.ClassInfo.DocumentType); t != models.DocumentTypeUnknown {
		out.DetectedDocumentType = &models.DetectedType{Type: t, Confidence: conf}
	}
	return out
}

func (d *blinkDate) normalized() string {
	if d == nil {
		return ""
	}
	if d.Year > 0 && d.Month > 0 && d.Day > 0 {
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	return fields.NormalizeDate(strings.TrimSpace(d.OriginalString))
}

func fieldsText(fm models.FieldMap) string {
	var lines []string
	for _, name := range []string{
		models.FieldFullName,
		models.FieldDocumentNumber,
		models.FieldNationality,
		models.FieldDateOfBirth,
		models.FieldIssueDate,
		models.FieldExpirationDate,
	} {
		if f, ok := fm[name]; ok {
			lines = append(lines, name+": "+f.Value)
		}
	}
	return strings.Join(lines, "\n")
}

// MapDocumentType translates the BlinkID class taxonomy.
func MapDocumentType(blinkType string) models.DocumentType {
	switch strings.ToUpper(strings.TrimSpace(blinkType)) {
	case "", "NONE":
		return models.DocumentTypeUnknown
	case "PASSPORT", "PASSPORT_CARD":
		return models.DocumentTypePassport
	case "DL", "DL_PUBLIC_SERVICES_CARD", "DRIVER_LICENSE":
		return models.DocumentTypeDriversLicense
	case "ID", "IDENTITY_CARD", "NATIONAL_ID", "VOTER_ID":
		return models.DocumentTypeNationalID
	case "RESIDENCE_PERMIT", "PERMANENT_RESIDENT_CARD", "RESIDENT_ID":
		return models.DocumentTypeResidencePermit
	case "VISA":
		return models.DocumentTypeVisa
	case "MEDICAL_INSURANCE_CARD", "HEALTH_INSURANCE_CARD":
		return models.DocumentTypeInsuranceCard
	}
	return models.DocumentTypeOther
}

// apiMessage pulls the error summary out of a BlinkID error body.
func apiMessage(payload []byte) error {
	var decoded recognizeResponse
	if err := json.Unmarshal(payload, &decoded); err == nil && decoded.Summary != "" {
		return fmt.Errorf("%s: %s", decoded.Code, decoded.Summary)
	}
	return nil
}
