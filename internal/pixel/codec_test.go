package pixel

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTripPNG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 6), G: uint8(y * 12), B: 90, A: 255})
		}
	}

	data, err := EncodeBytes(src, FormatPNG)
	require.NoError(t, err)

	out, err := Decode(data, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 40, out.Rect.Dx())
	assert.Equal(t, 20, out.Rect.Dy())
	assert.Equal(t, src.NRGBAAt(13, 7), out.NRGBAAt(13, 7))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not an image"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode(nil, "image/png")
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestToNRGBAResetsOrigin(t *testing.T) {
	src := image.NewGray(image.Rect(10, 10, 30, 25))
	out, err := ToNRGBA(src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 15), out.Rect)
}

func TestMagicDetection(t *testing.T) {
	heicHeader := []byte{0, 0, 0, 24, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}
	assert.True(t, IsHEIC(heicHeader))
	assert.False(t, IsHEIC([]byte("ftypheic")))
	assert.True(t, IsPDF([]byte("%PDF-1.7")))
	assert.False(t, IsPDF([]byte("%PD")))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(".JPG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)

	_, err = ParseFormat("gif")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestGrayscaleLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 255})

	plane := Grayscale(img)
	require.Len(t, plane.Values, 2)
	assert.InDelta(t, 255, plane.Values[0], 0.001)
	assert.InDelta(t, 0, plane.Values[1], 0.001)
}
