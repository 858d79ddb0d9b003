// Package ocr runs the document recognition pipeline: a quality gate,
// deterministic preprocessing, an ordered chain of recognition backends under
// a retry policy, and field extraction for backends that only return text.
//
// Backend chain:
//   - identity documents with ServiceAuto: identity backends, then the generic
//     cloud backend, then the offline backend
//   - any other document with ServiceAuto: the generic cloud backend, then the
//     offline backend
//   - an explicit PreferredService goes first, followed by the rest of the
//     automatic chain
//
// A backend result is accepted when its confidence clears the threshold of the
// backend's kind: above 80 for identity backends, above 70 for generic cloud
// backends, and unconditionally for the offline backend. Fields are never
// merged across backends.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/fields"
	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/internal/preprocess"
	"docscan/internal/quality"
	"docscan/internal/recognizer"
	"docscan/internal/retry"
	"docscan/pkg/models"
)

const (
	// DefaultQualityGate is the minimum quality score for an image to reach
	// the backends.
	DefaultQualityGate = 50

	// Acceptance thresholds; a result must be strictly above them.
	IdentityAcceptance = 80
	VisionAcceptance   = 70

	progressAssessed     = 10
	progressPreprocessed = 20
	progressDone         = 100
)

// Options tune a single PerformOCR invocation.
type Options struct {
	// Language is a BCP 47 tag; empty means "en".
	Language         string
	DocumentType     models.DocumentType
	PreferredService models.Service
	// Progress receives a monotonically non-decreasing percentage. It is
	// called synchronously from the pipeline goroutine.
	Progress func(int)
	// Preprocess overrides the default preprocessing stages when set.
	Preprocess *preprocess.Options
}

// Config holds the orchestrator's read-only tuning.
type Config struct {
	QualityGate int
	Retry       retry.Policy
}

// DefaultConfig is the gate of 50 and the default retry policy.
func DefaultConfig() Config {
	return Config{QualityGate: DefaultQualityGate, Retry: retry.DefaultPolicy()}
}

// Orchestrator runs the pipeline over a fixed set of backends. It holds no
// per-scan state and is safe for concurrent use.
type Orchestrator struct {
	config       Config
	backends     []recognizer.Backend
	assessor     *quality.Assessor
	preprocessor *preprocess.Preprocessor
	extractor    *fields.Extractor
	log          zerolog.Logger
}

// NewOrchestrator creates an orchestrator. Backends keep their given order
// within their kind.
func NewOrchestrator(config Config, backends ...recognizer.Backend) *Orchestrator {
	return &Orchestrator{
		config:       config,
		backends:     backends,
		assessor:     quality.New(),
		preprocessor: preprocess.New(),
		extractor:    fields.New(),
		log:          logger.WithComponent("ocr"),
	}
}

// Chain returns the backends PerformOCR would try for opts, in order,
// including unavailable ones.
func (o *Orchestrator) Chain(opts Options) []recognizer.Backend {
	ofKind := func(k recognizer.Kind) []recognizer.Backend {
		var out []recognizer.Backend
		for _, b := range o.backends {
			if b.Kind() == k {
				out = append(out, b)
			}
		}
		return out
	}

	var auto []recognizer.Backend
	if opts.DocumentType.IsIdentity() {
		auto = append(auto, ofKind(recognizer.KindIdentity)...)
	}
	auto = append(auto, ofKind(recognizer.KindVision)...)
	auto = append(auto, ofKind(recognizer.KindOffline)...)

	if opts.PreferredService == "" || opts.PreferredService == models.ServiceAuto {
		return auto
	}

	var chain []recognizer.Backend
	for _, b := range o.backends {
		if b.Name() == opts.PreferredService {
			chain = append(chain, b)
			break
		}
	}
	for _, b := range auto {
		if b.Name() != opts.PreferredService {
			chain = append(chain, b)
		}
	}
	return chain
}

// Accepts reports whether a result of confidence from a backend of kind k
// ends the chain.
func Accepts(k recognizer.Kind, confidence int) bool {
	switch k {
	case recognizer.KindIdentity:
		return confidence > IdentityAcceptance
	case recognizer.KindVision:
		return confidence > VisionAcceptance
	}
	return true
}

// progress forwards monotonically increasing values to the caller.
type progress struct {
	fn      func(int)
	last    int
	started bool
}

func (p *progress) report(v int) {
	v = min(max(v, 0), progressDone)
	if p.fn == nil || (p.started && v <= p.last) {
		return
	}
	p.started = true
	p.last = v
	p.fn(v)
}

// PerformOCR runs the full pipeline over img and returns at most one result.
func (o *Orchestrator) PerformOCR(ctx context.Context, img *image.NRGBA, opts Options) (*models.RecognitionResult, error) {
	const op = "PerformOCR"
	start := time.Now()

	if opts.Language == "" {
		opts.Language = fields.DefaultLanguage
	}
	prog := &progress{fn: opts.Progress}
	prog.report(0)

	if img == nil || img.Bounds().Empty() {
		return nil, WrapOCRError(op, pixel.ErrEmptyImage, "no image to scan")
	}

	log := o.log.With().
		Str("language", opts.Language).
		Str("document_type", string(opts.DocumentType)).
		Str("preferred_service", string(opts.PreferredService)).
		Logger()

	// Assessing
	assessment := o.assessor.Assess(img)
	if assessment.Score < o.config.QualityGate {
		log.Info().
			Int("score", assessment.Score).
			Int("gate", o.config.QualityGate).
			Strs("issues", assessment.Issues).
			Msg("Image rejected at quality gate")
		return nil, &QualityError{Assessment: assessment, Gate: o.config.QualityGate}
	}
	prog.report(progressAssessed)

	// Preprocessing
	ppOpts := preprocess.DefaultOptions()
	if opts.Preprocess != nil {
		ppOpts = *opts.Preprocess
	}
	processed := o.preprocessor.Process(img, ppOpts)
	prog.report(progressPreprocessed)

	// Recognizing
	var attempts []models.Attempt
	var available []recognizer.Backend
	for _, b := range o.Chain(opts) {
		if !b.Available() {
			log.Debug().Str("backend", string(b.Name())).Msg("Backend not configured, skipping")
			attempts = append(attempts, models.Attempt{Source: b.Name(), Outcome: models.AttemptSkipped})
			continue
		}
		available = append(available, b)
	}
	if len(available) == 0 {
		return nil, WrapOCRError(op, ErrNoBackends, "configure at least one recognition backend")
	}

	req := recognizer.Request{Image: processed, Language: opts.Language, DocumentType: opts.DocumentType}
	span := float64(progressDone-progressPreprocessed) / float64(len(available))

	for i, b := range available {
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ErrContextCanceled, ctx.Err().Error())
		}
		prog.report(progressPreprocessed + int(span*float64(i)))

		blog := log.With().Str("backend", string(b.Name())).Str("kind", b.Kind().String()).Logger()
		resp, err := retry.Do(ctx, o.config.Retry, func(ctx context.Context) (*recognizer.Response, error) {
			return b.Recognize(ctx, req)
		})
		if err == nil && resp == nil {
			err = recognizer.NewError(b.Name(), recognizer.ServerError, recognizer.ErrNoResponse)
		}
		if err != nil {
			blog.Warn().Err(err).Msg("Backend failed, falling back")
			attempts = append(attempts, models.Attempt{Source: b.Name(), Outcome: models.AttemptFailed, Error: err.Error()})
			prog.report(progressPreprocessed + int(span*float64(i+1)))
			continue
		}

		// Extracting
		result := o.buildResult(resp, b.Name(), opts)
		if !Accepts(b.Kind(), result.Confidence) {
			blog.Info().Int("confidence", result.Confidence).Msg("Result below acceptance threshold, falling back")
			attempts = append(attempts, models.Attempt{Source: b.Name(), Outcome: models.AttemptRejected, Confidence: result.Confidence})
			prog.report(progressPreprocessed + int(span*float64(i+1)))
			continue
		}

		attempts = append(attempts, models.Attempt{Source: b.Name(), Outcome: models.AttemptAccepted, Confidence: result.Confidence})
		result.Quality = assessment
		result.Attempts = attempts
		result.ProcessedAt = time.Now()
		result.ProcessingDuration = result.ProcessedAt.Sub(start)
		prog.report(progressDone)

		blog.Info().
			Int("confidence", result.Confidence).
			Int("fields", len(result.Fields)).
			Dur("duration", result.ProcessingDuration).
			Msg("Document recognized")
		return result, nil
	}

	return nil, WrapOCRError(op, ErrAllBackendsExhausted, summarizeAttempts(attempts))
}

// buildResult extracts fields for text-first backends and settles the overall
// confidence.
func (o *Orchestrator) buildResult(resp *recognizer.Response, source models.Service, opts Options) *models.RecognitionResult {
	fm := resp.Fields
	if len(fm) == 0 {
		fm = o.extractor.Extract(resp.Text, opts.Language)
	}

	confidence := fm.MeanConfidence()
	if resp.HasConfidence {
		confidence = models.ClampConfidence(resp.Confidence)
	}

	language := resp.Language
	if language == "" {
		language = opts.Language
	}

	detected := resp.DetectedDocumentType
	if detected == nil {
		detected = fields.DetectDocumentType(resp.Text)
	}

	return &models.RecognitionResult{
		Text:                 resp.Text,
		Confidence:           confidence,
		Source:               source,
		Language:             language,
		Fields:               fm,
		DetectedDocumentType: detected,
	}
}

func summarizeAttempts(attempts []models.Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		switch a.Outcome {
		case models.AttemptFailed:
			parts = append(parts, fmt.Sprintf("%s %s: %s", a.Source, a.Outcome, a.Error))
		case models.AttemptRejected:
			parts = append(parts, fmt.Sprintf("%s %s at confidence %d", a.Source, a.Outcome, a.Confidence))
		default:
			parts = append(parts, fmt.Sprintf("%s %s", a.Source, a.Outcome))
		}
	}
	return strings.Join(parts, "; ")
}
