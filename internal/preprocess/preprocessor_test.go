package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func verticalStripes(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255)
			if (x/4)%2 == 0 {
				v = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// textLike draws upright lines of glyph-sized blocks: 10px tall text lines on
// a 24px pitch, 6px glyphs with 3px spacing and a wider gap every fifth glyph.
func textLike(w, h int) *image.NRGBA {
	img := filled(w, h, white)
	ink := color.NRGBA{R: 20, G: 20, B: 30, A: 255}
	for top := 30; top+10 <= h-30; top += 24 {
		glyph := 0
		for x := 20; x+6 <= w-20; glyph++ {
			for gy := top; gy < top+10; gy++ {
				for gx := x; gx < x+6; gx++ {
					img.SetNRGBA(gx, gy, ink)
				}
			}
			x += 9
			if glyph%5 == 4 {
				x += 9
			}
		}
	}
	return img
}

func horizontalLines(w, h int) *image.NRGBA {
	img := filled(w, h, white)
	for y := 0; y < h; y++ {
		if y%12 < 2 {
			for x := 0; x < w; x++ {
				img.SetNRGBA(x, y, color.NRGBA{A: 255})
			}
		}
	}
	return img
}

func TestDetectSkewUprightText(t *testing.T) {
	for _, size := range []image.Point{{400, 300}, {800, 600}, {1000, 700}, {1600, 1000}} {
		t.Run(fmt.Sprintf("%dx%d", size.X, size.Y), func(t *testing.T) {
			img := textLike(size.X, size.Y)

			assert.Zero(t, DetectSkew(img))

			out, angle := Deskew(img)
			assert.Zero(t, angle)
			assert.Same(t, img, out)
		})
	}
}

func TestDetectSkewHorizontalRules(t *testing.T) {
	assert.Zero(t, DetectSkew(horizontalLines(500, 400)))
}

func TestDetectSkewFindsRotatedText(t *testing.T) {
	page := textLike(400, 300)

	assert.InDelta(t, 5, DetectSkew(Rotate(page, 5)), 1)
	assert.InDelta(t, -5, DetectSkew(Rotate(page, -5)), 1)
}

func TestDeskewStraightensRotatedText(t *testing.T) {
	tilted := Rotate(textLike(400, 300), 6)

	out, angle := Deskew(tilted)

	assert.InDelta(t, 6, angle, 1)
	assert.NotSame(t, tilted, out)
	assert.InDelta(t, 0, DetectSkew(out), 1)
}

func TestDeskewLeavesUnskewedImageUntouched(t *testing.T) {
	for name, img := range map[string]*image.NRGBA{
		"blank":   filled(120, 80, color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		"stripes": verticalStripes(120, 80),
	} {
		t.Run(name, func(t *testing.T) {
			before := append([]uint8(nil), img.Pix...)

			out, angle := Deskew(img)

			assert.Zero(t, angle)
			assert.Same(t, img, out)
			assert.Equal(t, before, out.Pix)
		})
	}
}

func TestSweepOrderPrefersSmallAngles(t *testing.T) {
	order := sweepOrder(3)
	assert.Equal(t, []int{0, -1, 1, -2, 2, -3, 3}, order)
	assert.Len(t, sweepOrder(45), 91)
}

func TestRotate180(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{G: 255, A: 255})
	img.SetNRGBA(2, 0, color.NRGBA{B: 255, A: 255})

	out := Rotate(img, 180)

	require.Equal(t, image.Rect(0, 0, 3, 1), out.Rect)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(2, 0))
}

func TestRotateTurnsClockwise(t *testing.T) {
	img := filled(4, 2, white)
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	out := Rotate(img, 90)

	require.Equal(t, image.Rect(0, 0, 2, 4), out.Rect)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(1, 0))
}

func TestRotateExpandsCanvasAndFillsWhite(t *testing.T) {
	img := filled(100, 100, color.NRGBA{A: 255})

	out := Rotate(img, 45)

	assert.Equal(t, 141, out.Rect.Dx())
	assert.Equal(t, 141, out.Rect.Dy())
	assert.Equal(t, white, out.NRGBAAt(0, 0))
	assert.Equal(t, white, out.NRGBAAt(140, 140))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(70, 70))
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(0, 0), "input must not change")
}

func TestDenoiseRemovesSaltNoise(t *testing.T) {
	gray := color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	img := filled(9, 9, gray)
	img.SetNRGBA(4, 4, color.NRGBA{R: 255, G: 255, B: 255, A: 200})

	out, err := Denoise(img, 3)
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 200}, out.NRGBAAt(4, 4))
	assert.Equal(t, uint8(255), img.NRGBAAt(4, 4).R, "input must not change")
}

func TestDenoiseRejectsEvenKernel(t *testing.T) {
	_, err := Denoise(filled(4, 4, white), 4)
	assert.Error(t, err)
}

func TestEnhanceContrast(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 50, B: 128, A: 77})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 255, B: 100, A: 255})

	out := EnhanceContrast(img, 1.5)

	assert.Equal(t, color.NRGBA{R: 236, G: 11, B: 128, A: 77}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 0, G: 255, B: 86, A: 255}, out.NRGBAAt(1, 0))
}

func TestBinarize(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 140, G: 140, B: 140, A: 10})
	img.SetNRGBA(1, 0, color.NRGBA{R: 120, G: 120, B: 120, A: 255})

	out := Binarize(img)

	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 10}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(1, 0))
}

func TestProcessDisabledStagesReturnInput(t *testing.T) {
	img := verticalStripes(40, 40)
	out := New().Process(img, Options{})
	assert.Same(t, img, out)
}

func TestProcessDefaultPipelineOnBlankPage(t *testing.T) {
	img := filled(60, 40, white)

	out := New().Process(img, DefaultOptions())

	require.Equal(t, img.Rect, out.Rect)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestProcessWithBinarize(t *testing.T) {
	img := filled(10, 10, color.NRGBA{R: 110, G: 110, B: 110, A: 255})
	opts := DefaultOptions()
	opts.Binarize = true

	out := New().Process(img, opts)

	assert.Equal(t, color.NRGBA{A: 255}, out.NRGBAAt(5, 5))
}

func TestStageRecoversFromPanic(t *testing.T) {
	p := New()
	img := filled(4, 4, white)

	out := p.stage("boom", img, func(*image.NRGBA) (*image.NRGBA, error) {
		panic("index out of range")
	})
	assert.Same(t, img, out)

	out = p.stage("fails", img, func(*image.NRGBA) (*image.NRGBA, error) {
		return nil, assert.AnError
	})
	assert.Same(t, img, out)
}

func TestProcessTolerantOfBadKernel(t *testing.T) {
	img := filled(8, 8, white)
	opts := Options{Denoise: true, DenoiseKernel: 2}

	out := New().Process(img, opts)
	assert.Same(t, img, out)
}
