// Package vision implements the generic cloud backend on top of Google Cloud
// Vision DOCUMENT_TEXT_DETECTION.
package vision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"

	"docscan/internal/fields"
	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/recognizer"
	"docscan/pkg/models"
)

// ErrMissingCredentials is returned when no Google credentials or API key are
// configured.
var ErrMissingCredentials = errors.New("missing Google credentials: set GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_CREDENTIALS or GOOGLE_VISION_API_KEY")

// ImageAnnotator is the part of *visionapi.ImageAnnotatorClient the backend uses.
type ImageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Config selects the credentials. The first non-empty of CredentialsJSON,
// CredentialsFile and APIKey wins.
type Config struct {
	CredentialsFile string
	CredentialsJSON string
	APIKey          string
	Timeout         time.Duration
}

func (c Config) clientOptions() []option.ClientOption {
	switch {
	case c.CredentialsJSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.CredentialsJSON))}
	case c.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
	case c.APIKey != "":
		return []option.ClientOption{option.WithAPIKey(c.APIKey)}
	}
	return nil
}

// Backend calls Cloud Vision. The client is created on first use.
type Backend struct {
	config Config
	log    zerolog.Logger

	mu     sync.Mutex
	client ImageAnnotator
}

// New creates the backend without dialing.
func New(config Config) *Backend {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Backend{config: config, log: logger.WithComponent("google-vision")}
}

// NewWithClient creates the backend around an explicit client (for testing).
func NewWithClient(client ImageAnnotator) *Backend {
	b := New(Config{})
	b.client = client
	return b
}

func (b *Backend) Name() models.Service { return models.ServiceGoogle }

func (b *Backend) Kind() recognizer.Kind { return recognizer.KindVision }

func (b *Backend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client != nil || len(b.config.clientOptions()) > 0
}

func (b *Backend) annotator(ctx context.Context) (ImageAnnotator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	opts := b.config.clientOptions()
	if len(opts) == 0 {
		return nil, ErrMissingCredentials
	}
	client, err := visionapi.NewImageAnnotatorClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("create Vision client: %w", err)
	}
	b.client = client
	return client, nil
}

// Recognize runs DOCUMENT_TEXT_DETECTION with the caller's language as a hint.
func (b *Backend) Recognize(ctx context.Context, req recognizer.Request) (*recognizer.Response, error) {
	if req.Image == nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, pixel.ErrEmptyImage)
	}
	client, err := b.annotator(ctx)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.Unavailable, err)
	}

	content, err := pixel.EncodeBytes(req.Image, pixel.FormatPNG)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, fmt.Errorf("encode image: %w", err))
	}

	annotateReq := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: []string{fields.BaseLanguage(req.Language)},
				},
			},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.BatchAnnotateImages(callCtx, annotateReq)
	if err != nil {
		return nil, recognizer.FromGRPC(b.Name(), err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, recognizer.NewError(b.Name(), recognizer.ServerError, errors.New("no response from Vision API"))
	}

	imageResp := resp.GetResponses()[0]
	if e := imageResp.GetError(); e != nil && e.GetCode() != 0 {
		return nil, recognizer.FromGRPC(b.Name(), status.ErrorProto(e))
	}

	out := processAnnotation(imageResp.GetFullTextAnnotation(), req.Language)
	if strings.TrimSpace(out.Text) == "" {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, recognizer.ErrEmptyText)
	}

	b.log.Debug().
		Dur("duration", time.Since(start)).
		Int("confidence", out.Confidence).
		Str("language", out.Language).
		Int("text_length", len(out.Text)).
		Msg("Vision annotation completed")

	return out, nil
}

// processAnnotation averages block confidences and picks the language
// detected on most pages.
func processAnnotation(annotation *visionpb.TextAnnotation, requested string) *recognizer.Response {
	out := &recognizer.Response{Language: requested}
	if annotation == nil {
		return out
	}
	out.Text = annotation.GetText()

	var confidenceSum float64
	var confidenceCount int
	languageVotes := make(map[string]float32)
	for _, page := range annotation.GetPages() {
		for _, lang := range page.GetProperty().GetDetectedLanguages() {
			if lang.GetLanguageCode() != "" {
				languageVotes[lang.GetLanguageCode()] += lang.GetConfidence()
			}
		}
		for _, block := range page.GetBlocks() {
			if block.GetConfidence() > 0 {
				confidenceSum += float64(block.GetConfidence())
				confidenceCount++
			}
		}
	}

	if confidenceCount > 0 {
		out.Confidence = models.ClampConfidence(int(math.Round(confidenceSum / float64(confidenceCount) * 100)))
		out.HasConfidence = true
	}

	var best string
	var bestVotes float32
	for code, votes := range languageVotes {
		if votes > bestVotes || (votes == bestVotes && code < best) {
			best, bestVotes = code, votes
		}
	}
	if best != "" {
		out.Language = best
	}
	return out
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
