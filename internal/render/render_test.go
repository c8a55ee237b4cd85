package render

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"trefm-analyzer/internal/pipeline"
)

func TestGray16Orientation(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		0, 0, 0,
		1, 1, math.NaN(),
	})
	img := Gray16(m)

	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	// Row 0 of the map is the bottom line of the image.
	bottom, top := img.Gray16At(0, 1).Y, img.Gray16At(0, 0).Y
	assert.Less(t, bottom, top)
	assert.Equal(t, bottom, img.Gray16At(2, 1).Y)
	assert.Equal(t, uint16(0), img.Gray16At(2, 0).Y)
}

func TestRange(t *testing.T) {
	lo, hi := Range(mat.NewDense(1, 2, []float64{4, 4}))
	assert.Equal(t, 3.5, lo)
	assert.Equal(t, 4.5, hi)

	lo, hi = Range(mat.NewDense(1, 1, []float64{math.NaN()}))
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	img := Gray16(mat.NewDense(1, 1, []float64{7}))
	assert.Equal(t, uint16(32768), img.Gray16At(0, 0).Y)
}

func TestGray16ClipsOutliers(t *testing.T) {
	vals := make([]float64, 100)
	vals[50] = 1e6
	img := Gray16(mat.NewDense(10, 10, vals))
	assert.Equal(t, uint16(math.MaxUint16), img.Gray16At(0, 4).Y)
}

func TestTIFFRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.tiff")
	m := mat.NewDense(4, 7, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 7; j++ {
			m.Set(i, j, float64(i*7+j))
		}
	}
	want := Gray16(m)
	require.NoError(t, WriteTIFF(path, want))

	got, err := ReadTIFF(path)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Bounds().Dx())
	assert.Equal(t, 4, got.Bounds().Dy())

	g, ok := got.(*image.Gray16)
	require.True(t, ok)
	assert.Equal(t, want.Pix, g.Pix)
}

func TestWriteTIFFError(t *testing.T) {
	err := WriteTIFF(filepath.Join(t.TempDir(), "missing", "map.tiff"), Gray16(mat.NewDense(1, 1, nil)))
	assert.ErrorContains(t, err, "failed to create image")
}

func TestPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.tiff")
	p := NewPreview(path, 3, 2, 2)

	p.RowDone(pipeline.RowEvent{Index: 2, TFP: []float64{1e-4, 2e-4}, Done: 1, Total: 3})
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	p.RowDone(pipeline.RowEvent{Index: 0, TFP: []float64{3e-4, 4e-4}, Done: 2, Total: 3})
	img, err := ReadTIFF(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 3), img.Bounds())

	m := p.Map()
	assert.True(t, math.IsNaN(m.At(1, 0)))
	assert.Equal(t, 2e-4, m.At(2, 1))

	// Failed rows stay NaN but still complete the run.
	require.NoError(t, os.Remove(path))
	p.RowDone(pipeline.RowEvent{Index: 1, Err: assert.AnError, Done: 3, Total: 3})
	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(p.Map().At(1, 1)))
	assert.NoError(t, p.Err())
}

func TestPreviewIgnoresMismatchedRows(t *testing.T) {
	p := NewPreview(filepath.Join(t.TempDir(), "p.tiff"), 2, 2, 1)
	p.RowDone(pipeline.RowEvent{Index: 5, TFP: []float64{1, 2}})
	p.RowDone(pipeline.RowEvent{Index: 0, TFP: []float64{1}})
	assert.True(t, math.IsNaN(p.Map().At(0, 0)))
}

func TestPreviewRecordsWriteError(t *testing.T) {
	p := NewPreview(filepath.Join(t.TempDir(), "missing", "p.tiff"), 1, 1, 1)
	p.RowDone(pipeline.RowEvent{Index: 0, TFP: []float64{1}, Done: 1, Total: 1})
	assert.Error(t, p.Err())
}
