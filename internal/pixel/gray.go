package pixel

import "image"

// Luma returns the Rec.601 luminance of an 8-bit RGB sample.
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// Plane is a row-major luminance grid.
type Plane struct {
	Width, Height int
	Values        []float64
}


// Grayscale computes the luminance plane of img.
func Grayscale(img *image.NRGBA) *Plane {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := &Plane{Width: w, Height: h, Values: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			plane.Values[y*w+x] = Luma(row[i], row[i+1], row[i+2])
		}
	}
	return plane
}
