package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/disintegration/imaging"

	"docscan/internal/pixel"
)

const (
	maxSkewDegrees = 45

	// MinRotationDegrees is the smallest detected skew that triggers a rotation.
	MinRotationDegrees = 0.5

	darkThreshold = 128
	scanBandStart = 0.2
	scanBandEnd   = 0.8
)

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// DetectSkew estimates the document tilt in degrees with a projection
// profile. For every candidate angle from -45 to 45 it counts dark pixels
// along sheared scanlines y + (x-w/2)·tan(θ) through the middle band of the
// image and scores the angle by the variance of those counts. Lines of text
// line up with the scanlines only at their true angle, where the profile
// splits cleanly into inked rows and blank gaps. Only scanlines that stay
// inside the image for their full width take part, so every sample covers
// the same columns. Ties go to the angle closest to zero; featureless images
// and purely vertical structure report 0.
func DetectSkew(img *image.NRGBA) float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w < 2 || h < 2 {
		return 0
	}
	plane := pixel.Grayscale(img)
	dark := make([]bool, len(plane.Values))
	for i, v := range plane.Values {
		dark[i] = v < darkThreshold
	}

	rowStart := int(float64(h) * scanBandStart)
	rowEnd := int(float64(h) * scanBandEnd)
	center := float64(w-1) / 2

	best, bestScore := 0, -1.0
	for _, deg := range sweepOrder(maxSkewDegrees) {
		slope := math.Tan(float64(deg) * math.Pi / 180)
		var n, sum, sumSq int64
		for y := rowStart; y < rowEnd; y++ {
			top := int(math.Round(float64(y) - center*math.Abs(slope)))
			bottom := int(math.Round(float64(y) + center*math.Abs(slope)))
			if top < 0 || bottom >= h {
				continue
			}
			var count int64
			for x := 0; x < w; x++ {
				sy := int(math.Round(float64(y) + (float64(x)-center)*slope))
				if dark[sy*w+x] {
					count++
				}
			}
			n++
			sum += count
			sumSq += count * count
		}
		if n < 2 {
			continue
		}
		score := float64(n*sumSq-sum*sum) / float64(n*n)
		if score > bestScore {
			best, bestScore = deg, score
		}
	}
	return float64(best)
}

// sweepOrder lists -limit..limit ordered by absolute value: 0, -1, 1, -2, 2...
func sweepOrder(limit int) []int {
	order := make([]int, 0, 2*limit+1)
	order = append(order, 0)
	for d := 1; d <= limit; d++ {
		order = append(order, -d, d)
	}
	return order
}

// Deskew rotates img by the negative of its detected skew. Angles below
// MinRotationDegrees return img itself.
func Deskew(img *image.NRGBA) (*image.NRGBA, float64) {
	angle := DetectSkew(img)
	if math.Abs(angle) < MinRotationDegrees {
		return img, angle
	}
	return Rotate(img, -angle), angle
}

// Rotate turns img by deg degrees clockwise onto a canvas sized to the
// rotated bounding box, filling uncovered corners with white.
func Rotate(img *image.NRGBA, deg float64) *image.NRGBA {
	return imaging.Rotate(img, -deg, white)
}

type lumaSample struct {
	luma   float64
	offset int
}

// Denoise applies a k×k median filter ranked by luminance. Each output pixel
// takes the colour of the neighbour holding the median luminance, keeping its
// own alpha. Windows are clamped at the image edges.
func Denoise(img *image.NRGBA, k int) (*image.NRGBA, error) {
	if k < 1 || k%2 == 0 {
		return nil, fmt.Errorf("denoise kernel must be a positive odd number, got %d", k)
	}
	if k == 1 {
		return imaging.Clone(img), nil
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := pixel.Grayscale(img)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	radius := k / 2
	window := make([]lumaSample, 0, k*k)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for wy := y - radius; wy <= y+radius; wy++ {
				cy := min(max(wy, 0), h-1)
				for wx := x - radius; wx <= x+radius; wx++ {
					cx := min(max(wx, 0), w-1)
					window = append(window, lumaSample{
						luma:   plane.Values[cy*w+cx],
						offset: cy*img.Stride + cx*4,
					})
				}
			}
			slices.SortFunc(window, func(a, b lumaSample) int {
				switch {
				case a.luma < b.luma:
					return -1
				case a.luma > b.luma:
					return 1
				}
				return 0
			})
			median := window[len(window)/2].offset

			d := y*dst.Stride + x*4
			s := y*img.Stride + x*4
			copy(dst.Pix[d:d+3], img.Pix[median:median+3])
			dst.Pix[d+3] = img.Pix[s+3]
		}
	}
	return dst, nil
}

// EnhanceContrast stretches each colour channel around 128 by factor and
// clamps to [0,255]. Alpha is unchanged.
func EnhanceContrast(img *image.NRGBA, factor float64) *image.NRGBA {
	var lut [256]uint8
	for v := range lut {
		lut[v] = clampChannel((float64(v)-128)*factor + 128)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	})
}

// Binarize maps pixels with luminance >= 128 to white and the rest to black.
// Alpha is unchanged.
func Binarize(img *image.NRGBA) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if pixel.Luma(c.R, c.G, c.B) >= 128 {
			return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
		}
		return color.NRGBA{A: c.A}
	})
}

func clampChannel(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
