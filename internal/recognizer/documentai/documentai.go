// Package documentai implements an identity-document backend on top of a
// Google Document AI identity processor.
package documentai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	documentaiapi "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"docscan/internal/fields"
	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/recognizer"
	"docscan/pkg/models"
)

// ErrInvalidConfiguration is returned when the project or processor is not set.
var ErrInvalidConfiguration = errors.New("GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_ID_PROCESSOR_ID are required")

// DocumentProcessor is the part of *documentaiapi.DocumentProcessorClient the
// backend uses.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// Config identifies the processor and the credentials.
type Config struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	CredentialsFile  string
	CredentialsJSON  string
	Timeout          time.Duration
}

// entityFields maps identity processor entity types, normalized to lower
// snake case, onto field names.
var entityFields = map[string]string{
	"document_id":     models.FieldDocumentNumber,
	"document_number": models.FieldDocumentNumber,
	"given_names":     models.FieldFirstName,
	"given_name":      models.FieldFirstName,
	"family_name":     models.FieldLastName,
	"full_name":       models.FieldFullName,
	"date_of_birth":   models.FieldDateOfBirth,
	"expiration_date": models.FieldExpirationDate,
	"issue_date":      models.FieldIssueDate,
	"nationality":     models.FieldNationality,
}

var dateFields = map[string]bool{
	models.FieldDateOfBirth:    true,
	models.FieldExpirationDate: true,
	models.FieldIssueDate:      true,
}

// Backend calls the identity processor. The client is created on first use.
type Backend struct {
	config Config
	log    zerolog.Logger

	mu     sync.Mutex
	client DocumentProcessor
}

// New creates the backend without dialing.
func New(config Config) *Backend {
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Backend{config: config, log: logger.WithComponent("document-ai")}
}

// NewWithClient creates the backend with an explicit client (for testing).
func NewWithClient(config Config, client DocumentProcessor) *Backend {
	b := New(config)
	b.client = client
	return b
}

func (b *Backend) Name() models.Service { return models.ServiceDocumentAI }

func (b *Backend) Kind() recognizer.Kind { return recognizer.KindIdentity }

func (b *Backend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.config.ProjectID == "" || b.config.ProcessorID == "" {
		return false
	}
	return b.client != nil || b.config.CredentialsFile != "" || b.config.CredentialsJSON != ""
}

func (b *Backend) processor(ctx context.Context) (DocumentProcessor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.config.ProjectID == "" || b.config.ProcessorID == "" {
		return nil, ErrInvalidConfiguration
	}
	if b.client != nil {
		return b.client, nil
	}

	var clientOptions []option.ClientOption
	// Regional processors live behind regional endpoints
	if b.config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", b.config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}
	if b.config.CredentialsJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(b.config.CredentialsJSON)))
	} else if b.config.CredentialsFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(b.config.CredentialsFile))
	}

	client, err := documentaiapi.NewDocumentProcessorClient(context.WithoutCancel(ctx), clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("create Document AI client for location %s: %w", b.config.Location, err)
	}
	b.client = client
	return client, nil
}

// ProcessorName is the full resource name of the configured processor.
func (b *Backend) ProcessorName() string {
	if b.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			b.config.ProjectID, b.config.Location, b.config.ProcessorID, b.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		b.config.ProjectID, b.config.Location, b.config.ProcessorID)
}

// Recognize sends the image as a raw PNG document and maps the returned
// entities onto fields with their own confidences.
func (b *Backend) Recognize(ctx context.Context, req recognizer.Request) (*recognizer.Response, error) {
	if req.Image == nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, pixel.ErrEmptyImage)
	}
	client, err := b.processor(ctx)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.Unavailable, err)
	}

	content, err := pixel.EncodeBytes(req.Image, pixel.FormatPNG)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, fmt.Errorf("encode image: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resp, err := client.ProcessDocument(callCtx, &documentaipb.ProcessRequest{
		Name: b.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: "image/png",
			},
		},
	})
	if err != nil {
		return nil, recognizer.FromGRPC(b.Name(), err)
	}
	if resp.GetDocument() == nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ServerError, errors.New("no document in response"))
	}

	out := b.extractFields(resp.GetDocument(), req.Language)
	if len(out.Fields) == 0 && strings.TrimSpace(out.Text) == "" {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, recognizer.ErrEmptyText)
	}
	return out, nil
}

func (b *Backend) extractFields(doc *documentaipb.Document, language string) *recognizer.Response {
	fm := models.FieldMap{}
	for _, entity := range doc.GetEntities() {
		entityType := normalizeEntityType(entity.GetType())
		name, ok := entityFields[entityType]
		if !ok {
			continue
		}
		value := strings.TrimSpace(entity.GetMentionText())
		if dateFields[name] {
			value = entityDate(entity)
		}
		if value == "" {
			continue
		}
		conf := int(math.Round(float64(entity.GetConfidence()) * 100))

		b.log.Debug().
			Str("entity_type", entityType).
			Float32("confidence", entity.GetConfidence()).
			Msg("Processing Document AI entity")

		// Keep the most confident mention of a field
		if existing, ok := fm[name]; ok && existing.Confidence >= conf {
			continue
		}
		fm.Set(name, value, conf)
	}

	if !fm.Has(models.FieldFullName) && fm.Has(models.FieldFirstName) && fm.Has(models.FieldLastName) {
		first, last := fm[models.FieldFirstName], fm[models.FieldLastName]
		fm.Set(models.FieldFullName, first.Value+" "+last.Value, min(first.Confidence, last.Confidence))
	}

	return &recognizer.Response{
		Text:     doc.GetText(),
		Language: language,
		Fields:   fm,
	}
}

func normalizeEntityType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, " ", "_")
	return strings.ReplaceAll(t, "-", "_")
}

// entityDate prefers the normalized date value and falls back to the mention
// text.
func entityDate(entity *documentaipb.Document_Entity) string {
	if d := entity.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 && d.GetMonth() > 0 && d.GetDay() > 0 {
		return fmt.Sprintf("%04d-%02d-%02d", d.GetYear(), d.GetMonth(), d.GetDay())
	}
	return fields.NormalizeDate(strings.TrimSpace(entity.GetMentionText()))
}

// Close closes the underlying client if one was created.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
