// Package tesseract implements the offline backend with a local Tesseract
// engine through gosseract.
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/recognizer"
	"docscan/pkg/models"
)

// DefaultLanguage is the traineddata used when a tag cannot be mapped.
const DefaultLanguage = "eng"

// Tesseract names a few traineddata files differently from ISO 639-3.
var traineddataOverrides = map[string]string{
	"zho": "chi_sim",
}

// Config controls the local engine.
type Config struct {
	Enabled bool
	// DataPath overrides TESSDATA_PREFIX when set.
	DataPath string
}

// Backend recognizes text with a lazily created gosseract client. Calls are
// serialized because a client holds a single image at a time.
type Backend struct {
	config Config
	log    zerolog.Logger

	mu      sync.Mutex
	client  *gosseract.Client
	initErr error
}

// New creates the backend. The engine is not started until first use.
func New(config Config) *Backend {
	return &Backend{config: config, log: logger.WithComponent("tesseract")}
}

func (b *Backend) Name() models.Service { return models.ServiceTesseract }

func (b *Backend) Kind() recognizer.Kind { return recognizer.KindOffline }

func (b *Backend) Available() bool { return b.config.Enabled }

// engine returns the shared client; callers hold b.mu.
func (b *Backend) engine() (*gosseract.Client, error) {
	if b.client != nil || b.initErr != nil {
		return b.client, b.initErr
	}
	client := gosseract.NewClient()
	if b.config.DataPath != "" {
		if err := client.SetTessdataPrefix(b.config.DataPath); err != nil {
			client.Close()
			b.initErr = fmt.Errorf("set tessdata prefix: %w", err)
			return nil, b.initErr
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		b.initErr = fmt.Errorf("set page segmentation mode: %w", err)
		return nil, b.initErr
	}
	b.client = client
	b.log.Debug().Str("version", client.Version()).Msg("Tesseract engine started")
	return client, nil
}

// Recognize runs the engine in the calling goroutine. The context is only
// checked before the call; the engine itself cannot be interrupted.
func (b *Backend) Recognize(ctx context.Context, req recognizer.Request) (*recognizer.Response, error) {
	if !b.Available() {
		return nil, recognizer.NewError(b.Name(), recognizer.Unavailable, errors.New("tesseract is disabled"))
	}
	if req.Image == nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, pixel.ErrEmptyImage)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := pixel.EncodeBytes(req.Image, pixel.FormatPNG)
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, fmt.Errorf("encode image: %w", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	client, err := b.engine()
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.Unavailable, err)
	}

	lang := TraineddataLanguage(req.Language)
	if err := client.SetLanguage(lang); err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, fmt.Errorf("set language %q: %w", lang, err))
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ClientError, fmt.Errorf("set image: %w", err))
	}

	text, err := client.Text()
	if err != nil {
		return nil, recognizer.NewError(b.Name(), recognizer.ServerError, fmt.Errorf("recognize text: %w", err))
	}
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))

	out := &recognizer.Response{Text: text, Language: req.Language}
	if conf, ok := meanWordConfidence(client); ok {
		out.Confidence = conf
		out.HasConfidence = true
	}

	b.log.Debug().
		Str("traineddata", lang).
		Int("confidence", out.Confidence).
		Int("text_length", len(text)).
		Msg("Tesseract recognition completed")

	return out, nil
}

func meanWordConfidence(client *gosseract.Client) (int, bool) {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0, false
	}
	var sum float64
	for _, box := range boxes {
		sum += box.Confidence
	}
	return models.ClampConfidence(int(math.Round(sum / float64(len(boxes))))), true
}

// TraineddataLanguage maps a BCP 47 tag onto the ISO 639-3 name of a
// Tesseract traineddata file, e.g. "pt-BR" to "por".
func TraineddataLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return DefaultLanguage
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return DefaultLanguage
	}
	base, _ := parsed.Base()
	iso3 := base.ISO3()
	if iso3 == "" || iso3 == "und" {
		return DefaultLanguage
	}
	if name, ok := traineddataOverrides[iso3]; ok {
		return name
	}
	return iso3
}

// Close releases the engine.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		err := b.client.Close()
		b.client = nil
		return err
	}
	return nil
}
