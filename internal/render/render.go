// Package render converts analysis maps to grayscale images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Contrast is the half-width of the display range in standard deviations.
const Contrast = 3

// Range returns the display range mean ± Contrast·σ over the finite values
// of m. A constant map yields a range of width one around its value.
func Range(m mat.Matrix) (lo, hi float64) {
	r, c := m.Dims()
	vals := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return 0, 1
	}
	mean, std := stat.PopMeanStdDev(vals, nil)
	if std == 0 {
		return mean - 0.5, mean + 0.5
	}
	return mean - Contrast*std, mean + Contrast*std
}

// Gray16 maps m onto a 16-bit grayscale image with row 0 at the bottom, the
// orientation of a scan that starts at the lower edge. Values are clipped to
// Range; non-finite values are black.
func Gray16(m mat.Matrix) *image.Gray16 {
	lo, hi := Range(m)
	r, c := m.Dims()
	img := image.NewGray16(image.Rect(0, 0, c, r))
	for i := 0; i < r; i++ {
		y := r - 1 - i
		for j := 0; j < c; j++ {
			img.SetGray16(j, y, color.Gray16{Y: level(m.At(i, j), lo, hi)})
		}
	}
	return img
}

func level(v, lo, hi float64) uint16 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	t := (v - lo) / (hi - lo)
	t = math.Max(0, math.Min(1, t))
	return uint16(math.Round(t * math.MaxUint16))
}

// WriteTIFF writes img as a Deflate-compressed TIFF.
func WriteTIFF(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return file.Close()
}

// ReadTIFF loads a TIFF written by WriteTIFF.
func ReadTIFF(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := tiff.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
