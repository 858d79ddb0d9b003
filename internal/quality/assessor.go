// Package quality scores a raw document photo before any recognizer is
// called. The assessment combines three independent checks (blur, brightness
// and resolution) into a 0-100 score; the orchestrator refuses images that
// score below its gate so that unreadable photos never spend backend quota.
package quality

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"docscan/internal/logger"
	"docscan/internal/pixel"
	"docscan/pkg/models"
)

const (
	// MaxAnalysisDimension bounds the image used for the blur convolution.
	MaxAnalysisDimension = 1024

	// BrightnessSampleStep samples every n-th pixel for the luminance mean.
	BrightnessSampleStep = 10

	blurryVariance       = 100
	slightlyBlurVariance = 300

	darkMean        = 50
	overexposedMean = 220

	lowMegapixels  = 0.3
	fairMegapixels = 1.0

	goodTierScore = 75
	fairTierScore = 50
)

// Sub-check scores.
const (
	scorePoor       = 30
	scoreFair       = 60
	scoreGood       = 95
	scoreResolution = 90
)

// Issue strings reported for sub-checks that did not score good.
const (
	IssueBlurry         = "Blur: Image is blurry"
	IssueSlightlyBlurry = "Blur: Image is slightly blurry"
	IssueTooDark        = "Brightness: Too dark"
	IssueOverexposed    = "Brightness: Overexposed"
	IssueResolutionLow  = "Resolution: Too low"
	IssueResolutionFair = "Resolution: Low"
	IssueEmptyImage     = "Image: empty"
)

// Assessor computes QualityAssessments. The zero value is not usable; call New.
type Assessor struct {
	log zerolog.Logger
}

// New returns an Assessor logging under the "quality" component.
func New() *Assessor {
	return &Assessor{log: logger.WithComponent("quality")}
}

// Assess scores img. It never fails: an empty or nil image scores 0.
func (a *Assessor) Assess(img *image.NRGBA) models.QualityAssessment {
	if img == nil || img.Rect.Empty() {
		return models.QualityAssessment{
			Score:  0,
			Tier:   models.QualityPoor,
			Issues: []string{IssueEmptyImage},
		}
	}

	var issues []string

	variance := LaplacianVariance(img)
	blur, issue := blurScore(variance)
	if issue != "" {
		issues = append(issues, issue)
	}

	mean := MeanLuminance(img)
	brightness, issue := brightnessScore(mean)
	if issue != "" {
		issues = append(issues, issue)
	}

	megapixels := float64(img.Rect.Dx()*img.Rect.Dy()) / 1_000_000
	resolution, issue := resolutionScore(megapixels)
	if issue != "" {
		issues = append(issues, issue)
	}

	score := int(math.Round(float64(blur+brightness+resolution) / 3))
	assessment := models.QualityAssessment{
		Score:  score,
		Tier:   Tier(score),
		Issues: issues,
	}

	a.log.Debug().
		Float64("laplacian_variance", variance).
		Float64("mean_luminance", mean).
		Float64("megapixels", megapixels).
		Int("blur_score", blur).
		Int("brightness_score", brightness).
		Int("resolution_score", resolution).
		Int("score", score).
		Str("tier", string(assessment.Tier)).
		Msg("Image quality assessed")

	return assessment
}

// Tier buckets a combined score.
func Tier(score int) models.QualityTier {
	switch {
	case score >= goodTierScore:
		return models.QualityGood
	case score >= fairTierScore:
		return models.QualityFair
	default:
		return models.QualityPoor
	}
}

// LaplacianVariance is the variance of the 4-neighbour Laplacian response over
// the interior pixels of the (downsampled) luminance plane. Sharp edges give
// large values; flat or defocused images give values near zero.
func LaplacianVariance(img *image.NRGBA) float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w > MaxAnalysisDimension || h > MaxAnalysisDimension {
		img = imaging.Fit(img, MaxAnalysisDimension, MaxAnalysisDimension, imaging.Box)
		w, h = img.Rect.Dx(), img.Rect.Dy()
	}
	if w < 3 || h < 3 {
		return 0
	}

	plane := pixel.Grayscale(img)
	n := float64((w - 2) * (h - 2))
	var sum, sumSq float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			v := 4*plane.Values[i] -
				plane.Values[i-1] - plane.Values[i+1] -
				plane.Values[i-w] - plane.Values[i+w]
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	return sumSq/n - mean*mean
}

// MeanLuminance averages the Rec.601 luminance of every BrightnessSampleStep-th
// pixel in row-major order.
func MeanLuminance(img *image.NRGBA) float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var sum float64
	var count int
	for i := 0; i < w*h; i += BrightnessSampleStep {
		x, y := i%w, i/w
		off := y*img.Stride + x*4
		sum += pixel.Luma(img.Pix[off], img.Pix[off+1], img.Pix[off+2])
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func blurScore(variance float64) (int, string) {
	switch {
	case variance < blurryVariance:
		return scorePoor, IssueBlurry
	case variance < slightlyBlurVariance:
		return scoreFair, IssueSlightlyBlurry
	default:
		return scoreGood, ""
	}
}

// brightnessScore scales poor scores by the distance from the acceptable band
// so that a fully black or white frame scores 0.
func brightnessScore(mean float64) (int, string) {
	switch {
	case mean < darkMean:
		return int(math.Round(scorePoor * mean / darkMean)), IssueTooDark
	case mean > overexposedMean:
		return int(math.Round(scorePoor * (255 - mean) / (255 - overexposedMean))), IssueOverexposed
	default:
		return scoreGood, ""
	}
}

func resolutionScore(megapixels float64) (int, string) {
	switch {
	case megapixels < lowMegapixels:
		return scorePoor, IssueResolutionLow
	case megapixels < fairMegapixels:
		return scoreFair, IssueResolutionFair
	default:
		return scoreResolution, ""
	}
}
