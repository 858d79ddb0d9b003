// Package pixel is the decode/encode boundary of the scan pipeline. Uploaded
// bytes (JPEG, PNG, GIF, BMP, TIFF, WebP, HEIC/HEIF or a PDF's first page) are
// turned into an *image.NRGBA buffer, and buffers are encoded back into bytes
// for recognizers and the CLI. Everything between those two points works on
// the portable buffer type only.
package pixel

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MaxUploadBytes bounds the encoded input accepted by Decode.
const MaxUploadBytes = 20 * 1024 * 1024

var (
	// ErrEmptyImage is returned for zero-length input or a zero-area image.
	ErrEmptyImage = errors.New("image is empty")

	// ErrUnsupportedFormat is returned when no decoder recognizes the input.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge is returned when the input exceeds MaxUploadBytes.
	ErrImageTooLarge = errors.New("image exceeds the maximum upload size (20MB)")
)

// Format selects the encoding used by Encode.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
)

// ParseFormat maps a file extension or format name onto a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Decode converts encoded image bytes into an NRGBA buffer anchored at (0,0).
// contentType may be empty; HEIC and PDF inputs are also detected from their
// magic bytes. EXIF orientation is applied so phone photos come out upright.
func Decode(data []byte, contentType string) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrImageTooLarge
	}

	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	var img image.Image
	var err error
	switch {
	case mimeType == "application/pdf" || IsPDF(data):
		img, err = decodePDF(data)
	case IsHEIC(data) || isHEICMimeType(mimeType):
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if errors.Is(err, image.ErrFormat) {
			err = fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
	}
	if err != nil {
		return nil, err
	}

	return ToNRGBA(img)
}

// ToNRGBA copies any image into a fresh NRGBA buffer with a zero origin.
func ToNRGBA(img image.Image) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return imaging.Clone(img), nil
}

// Encode writes img in the requested format.
func Encode(w io.Writer, img image.Image, format Format) error {
	switch format {
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(90))
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// EncodeBytes is Encode into a new byte slice.
func EncodeBytes(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, img, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePDF renders the first page of a PDF upload.
func decodePDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, ErrEmptyImage
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// IsPDF checks for the %PDF header.
func IsPDF(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "%PDF"
}

// IsHEIC checks for an ftyp box with a HEIC-family brand at offset 4.
func IsHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
