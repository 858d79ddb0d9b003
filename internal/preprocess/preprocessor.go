// Package preprocess prepares document photos for recognition. Stages run in
// a fixed order (deskew, denoise, contrast, binarize) and each one returns a
// new buffer; the input is never modified. A stage that fails or panics is
// skipped with a warning, since preprocessing only improves recognition and
// is never required for it.
package preprocess

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"

	"docscan/internal/logger"
)

const (
	// DefaultContrastFactor is the linear stretch applied around mid-gray.
	DefaultContrastFactor = 1.5

	// DefaultDenoiseKernel is the side of the median filter window.
	DefaultDenoiseKernel = 3
)

// Options selects the stages Process runs.
type Options struct {
	Deskew          bool    `json:"deskew"`
	Denoise         bool    `json:"denoise"`
	EnhanceContrast bool    `json:"enhance_contrast"`
	Binarize        bool    `json:"binarize"`
	ContrastFactor  float64 `json:"contrast_factor,omitempty"`
	DenoiseKernel   int     `json:"denoise_kernel,omitempty"`
}

// DefaultOptions enables deskew, denoise and contrast. Binarization is off
// because it discards detail the field extractor may need.
func DefaultOptions() Options {
	return Options{
		Deskew:          true,
		Denoise:         true,
		EnhanceContrast: true,
		ContrastFactor:  DefaultContrastFactor,
		DenoiseKernel:   DefaultDenoiseKernel,
	}
}

// Preprocessor runs the configured stages and logs stage failures.
type Preprocessor struct {
	log zerolog.Logger
}

// New returns a Preprocessor logging under the "preprocess" component.
func New() *Preprocessor {
	return &Preprocessor{log: logger.WithComponent("preprocess")}
}

// Process applies the enabled stages to img in order.
func (p *Preprocessor) Process(img *image.NRGBA, opts Options) *image.NRGBA {
	if img == nil || img.Rect.Empty() {
		return img
	}

	factor := opts.ContrastFactor
	if factor <= 0 {
		factor = DefaultContrastFactor
	}
	kernel := opts.DenoiseKernel
	if kernel <= 0 {
		kernel = DefaultDenoiseKernel
	}

	out := img
	if opts.Deskew {
		out = p.stage("deskew", out, func(in *image.NRGBA) (*image.NRGBA, error) {
			rotated, angle := Deskew(in)
			p.log.Debug().Float64("skew_degrees", angle).Bool("rotated", rotated != in).Msg("Skew detected")
			return rotated, nil
		})
	}
	if opts.Denoise {
		out = p.stage("denoise", out, func(in *image.NRGBA) (*image.NRGBA, error) {
			return Denoise(in, kernel)
		})
	}
	if opts.EnhanceContrast {
		out = p.stage("contrast", out, func(in *image.NRGBA) (*image.NRGBA, error) {
			return EnhanceContrast(in, factor), nil
		})
	}
	if opts.Binarize {
		out = p.stage("binarize", out, func(in *image.NRGBA) (*image.NRGBA, error) {
			return Binarize(in), nil
		})
	}
	return out
}

// stage runs fn and falls back to the stage input on error or panic.
func (p *Preprocessor) stage(name string, in *image.NRGBA, fn func(*image.NRGBA) (*image.NRGBA, error)) (out *image.NRGBA) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().
				Str("stage", name).
				Str("panic", fmt.Sprint(r)).
				Msg("Preprocessing stage panicked, keeping previous image")
			out = in
		}
	}()

	result, err := fn(in)
	if err != nil || result == nil {
		p.log.Warn().
			Err(err).
			Str("stage", name).
			Msg("Preprocessing stage failed, keeping previous image")
		return in
	}
	return result
}
