package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"pdfchat/internal/logger"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayImage(w, h int, v uint8) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{R: v, G: v, B: v, A: 255})
}

func pixel(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestDefaultStages_Order(t *testing.T) {
	var names []string
	for _, s := range DefaultStages(0) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"grayscale", "upscale", "median", "normalize_percentile", "sharpen",
		"brighten", "contrast", "gamma", "normalize",
	}, names)
}

func TestGrayscale(t *testing.T) {
	img := imaging.New(2, 2, color.NRGBA{R: 200, G: 30, B: 90, A: 255})

	out, err := Grayscale(img)
	require.NoError(t, err)

	p := pixel(out, 1, 1)
	assert.Equal(t, p.R, p.G)
	assert.Equal(t, p.G, p.B)
}

func TestUpscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"landscape", 100, 50, 400, 200},
		{"portrait", 50, 100, 200, 400},
		{"already large", 500, 10, 500, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Upscale(400)(grayImage(tt.w, tt.h, 128))
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}

	_, err := Upscale(400)(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}

func TestMedian_RemovesSpeckle(t *testing.T) {
	img := grayImage(5, 5, 0)
	img.SetNRGBA(2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out, err := Median(img)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), pixel(out, 2, 2).R)
	assert.Equal(t, uint8(255), pixel(out, 2, 2).A)
}

func TestNormalizePercentile_MinMax(t *testing.T) {
	img := grayImage(10, 1, 100)
	for x := 0; x < 10; x++ {
		v := uint8(50 + x*10)
		img.SetNRGBA(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
	}

	out, err := NormalizePercentile(0, 100)(img)
	require.NoError(t, err)

	assert.Equal(t, uint8(0), pixel(out, 0, 0).R)
	assert.Equal(t, uint8(255), pixel(out, 9, 0).R)
	assert.Less(t, pixel(out, 4, 0).R, pixel(out, 5, 0).R)
}

func TestNormalizePercentile_Flat(t *testing.T) {
	img := grayImage(4, 4, 90)

	out, err := NormalizePercentile(1, 99)(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(90), pixel(out, 0, 0).R)
}

func TestBrighten(t *testing.T) {
	out, err := Brighten(1.2)(grayImage(1, 1, 100))
	require.NoError(t, err)
	assert.InDelta(t, 120, int(pixel(out, 0, 0).R), 1)

	out, err = Brighten(1.2)(imaging.New(1, 1, color.NRGBA{R: 200, G: 20, B: 20, A: 255}))
	require.NoError(t, err)
	p := pixel(out, 0, 0)
	assert.Equal(t, p.R, p.G)
	assert.Equal(t, p.G, p.B)
}

func TestContrast(t *testing.T) {
	stretch := Contrast(1.5)

	tests := []struct {
		in   uint8
		want int
	}{
		{0, 0},
		{50, 11},
		{128, 128},
		{200, 236},
		{255, 255},
	}
	for _, tt := range tests {
		out, err := stretch(grayImage(1, 1, tt.in))
		require.NoError(t, err)
		assert.InDelta(t, tt.want, int(pixel(out, 0, 0).R), 1, "input %d", tt.in)
	}
}

func TestDarken(t *testing.T) {
	darken := Darken(2.2)

	for _, v := range []uint8{0, 255} {
		out, err := darken(grayImage(1, 1, v))
		require.NoError(t, err)
		assert.Equal(t, v, pixel(out, 0, 0).R)
	}

	out, err := darken(grayImage(1, 1, 128))
	require.NoError(t, err)
	assert.Less(t, pixel(out, 0, 0).R, uint8(128))

	_, err = Darken(0)(grayImage(1, 1, 128))
	assert.Error(t, err)
}

func TestPreprocessor_SkipsFailingStages(t *testing.T) {
	invert := Stage{Name: "invert", Apply: func(img image.Image) (image.Image, error) {
		return imaging.Invert(img), nil
	}}
	p := &Preprocessor{
		Stages: []Stage{
			{Name: "fails", Apply: func(image.Image) (image.Image, error) { return nil, errors.New("boom") }},
			{Name: "panics", Apply: func(image.Image) (image.Image, error) { panic("bad stage") }},
			{Name: "nil", Apply: func(image.Image) (image.Image, error) { return nil, nil }},
			invert,
		},
		Logger: logger.Nop(),
	}

	out := p.Enhance(context.Background(), grayImage(2, 2, 10))
	assert.Equal(t, uint8(245), pixel(out, 0, 0).R)
}

func TestPreprocessor_ProcessWritesDebugImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	p := NewPreprocessor(64, dir, nil)

	img := grayImage(32, 16, 255)
	for x := 8; x < 24; x++ {
		img.SetNRGBA(x, 8, color.NRGBA{A: 255})
	}

	data, err := p.Process(context.Background(), 3, img)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 32, decoded.Bounds().Dy())

	_, err = os.Stat(filepath.Join(dir, "page_3_preprocessed.png"))
	assert.NoError(t, err)
}

func TestPreprocessor_DebugFailureIgnored(t *testing.T) {
	// a file where the debug directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	p := NewPreprocessor(16, filepath.Join(blocker, "debug"), nil)
	data, err := p.Process(context.Background(), 1, grayImage(8, 8, 200))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestPercentile(t *testing.T) {
	var hist [256]int
	hist[10] = 1
	hist[20] = 98
	hist[250] = 1

	assert.Equal(t, uint8(10), percentile(hist, 100, 0))
	assert.Equal(t, uint8(10), percentile(hist, 100, 1))
	assert.Equal(t, uint8(20), percentile(hist, 100, 50))
	assert.Equal(t, uint8(20), percentile(hist, 100, 99))
	assert.Equal(t, uint8(250), percentile(hist, 100, 100))
}
