// Package session tracks one user's scan: the last submitted image and
// options, live progress and the outcome. Starting or resetting a scan
// supersedes any run still in flight; the superseded run's progress and result
// are dropped.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/logger"
	"docscan/internal/ocr"
	"docscan/pkg/models"
	"docscan/pkg/services"
)

var (
	// ErrSuperseded is returned to the caller of a run that was replaced by a
	// newer Start, Retry or Reset before it finished.
	ErrSuperseded = errors.New("scan superseded by a newer request")

	// ErrNothingToRetry is returned by Retry when no image was submitted yet.
	ErrNothingToRetry = errors.New("no previous scan to retry")
)

// Controller is the state machine of a single scan session. It is safe for
// concurrent use. Progress callbacks must not call Start, Retry, Submit,
// SubmitRetry or Reset on the same controller.
type Controller struct {
	scanner services.Scanner
	log     zerolog.Logger

	// notify is held while a progress callback runs and while the generation
	// changes, so no callback of a superseded run starts after begin or Reset
	// returns. Lock order: notify, then mu.
	notify sync.Mutex

	mu         sync.Mutex
	generation uint64
	status     services.ScanStatus
	progress   int
	lastImage  *image.NRGBA
	lastOpts   ocr.Options
	result     *models.RecognitionResult
	err        error
	updated    time.Time
}

// New creates an idle controller. id only labels log lines.
func New(scanner services.Scanner, id string) *Controller {
	return &Controller{
		scanner: scanner,
		log:     logger.WithSession("session", id),
		status:  services.ScanIdle,
		updated: time.Now(),
	}
}

// Start runs a scan of img synchronously and returns its result. A Start,
// Retry or Reset issued meanwhile makes this call return ErrSuperseded.
func (c *Controller) Start(ctx context.Context, img *image.NRGBA, opts ocr.Options) (*models.RecognitionResult, error) {
	gen, wrapped := c.begin(img, opts)
	return c.run(ctx, gen, img, wrapped)
}

// Submit moves the session to processing before returning and runs the scan
// on its own goroutine. The channel receives the run's error (nil on success)
// and is then closed.
func (c *Controller) Submit(ctx context.Context, img *image.NRGBA, opts ocr.Options) <-chan error {
	gen, wrapped := c.begin(img, opts)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := c.run(ctx, gen, img, wrapped)
		done <- err
	}()
	return done
}

// begin opens a new generation and returns opts with progress routed through
// the session.
func (c *Controller) begin(img *image.NRGBA, opts ocr.Options) (uint64, ocr.Options) {
	c.notify.Lock()
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.status = services.ScanProcessing
	c.progress = 0
	c.result = nil
	c.err = nil
	c.lastImage = img
	c.lastOpts = opts
	c.updated = time.Now()
	c.mu.Unlock()
	c.notify.Unlock()

	c.log.Info().Uint64("generation", gen).Msg("Scan started")

	userProgress := opts.Progress
	opts.Progress = func(p int) {
		c.notify.Lock()
		defer c.notify.Unlock()
		if !c.recordProgress(gen, p) {
			return
		}
		if userProgress != nil {
			userProgress(p)
		}
	}
	return gen, opts
}

func (c *Controller) run(ctx context.Context, gen uint64, img *image.NRGBA, opts ocr.Options) (*models.RecognitionResult, error) {
	result, err := c.scanner.PerformOCR(ctx, img, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.log.Debug().Uint64("generation", gen).Msg("Discarding superseded scan outcome")
		return nil, ErrSuperseded
	}
	c.updated = time.Now()
	if err != nil {
		c.status = services.ScanError
		c.err = err
		c.log.Warn().Err(err).Uint64("generation", gen).Msg("Scan failed")
		return nil, err
	}
	c.status = services.ScanDone
	c.result = result
	c.progress = 100
	c.log.Info().
		Uint64("generation", gen).
		Str("source", string(result.Source)).
		Int("confidence", result.Confidence).
		Msg("Scan completed")
	return result, nil
}

// recordProgress stores p for the current generation and reports whether the
// run is still current.
func (c *Controller) recordProgress(gen uint64, p int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	if p > c.progress {
		c.progress = p
		c.updated = time.Now()
	}
	return true
}

// Retry rescans the last submitted image with the last options.
func (c *Controller) Retry(ctx context.Context) (*models.RecognitionResult, error) {
	img, opts := c.last()
	if img == nil {
		return nil, ErrNothingToRetry
	}
	return c.Start(ctx, img, opts)
}

// SubmitRetry is the asynchronous form of Retry.
func (c *Controller) SubmitRetry(ctx context.Context) (<-chan error, error) {
	img, opts := c.last()
	if img == nil {
		return nil, ErrNothingToRetry
	}
	return c.Submit(ctx, img, opts), nil
}

func (c *Controller) last() (*image.NRGBA, ocr.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastImage, c.lastOpts
}

// Reset returns the session to idle and forgets the last image. A run in
// flight is superseded.
func (c *Controller) Reset() {
	c.notify.Lock()
	defer c.notify.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.status = services.ScanIdle
	c.progress = 0
	c.lastImage = nil
	c.lastOpts = ocr.Options{}
	c.result = nil
	c.err = nil
	c.updated = time.Now()
	c.log.Info().Uint64("generation", c.generation).Msg("Scan session reset")
}

// State returns a snapshot of the session.
func (c *Controller) State() services.ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := services.ScanState{
		Status:   c.status,
		Progress: c.progress,
		Result:   c.result,
		Err:      c.err,
		HasImage: c.lastImage != nil,
		Updated:  c.updated,
	}
	if c.err != nil {
		state.Error = c.err.Error()
		state.Message = ocr.UserMessage(c.err)
	}
	return state
}
