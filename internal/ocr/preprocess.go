package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"pdfchat/internal/logger"

	"github.com/disintegration/imaging"
)

const (
	// DefaultTargetSize is the longest side, in pixels, pages are upscaled to
	DefaultTargetSize = 4000
	// DefaultDebugDir is where preprocessed pages are written when debugging
	DefaultDebugDir = "ocr_debug"
)

// Stage is one step of the image enhancement pipeline
type Stage struct {
	Name  string
	Apply func(image.Image) (image.Image, error)
}

// DefaultStages returns the enhancement pipeline tuned for handwritten and
// low contrast scans
func DefaultStages(targetSize int) []Stage {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	return []Stage{
		{Name: "grayscale", Apply: Grayscale},
		{Name: "upscale", Apply: Upscale(targetSize)},
		{Name: "median", Apply: Median},
		{Name: "normalize_percentile", Apply: NormalizePercentile(1, 99)},
		{Name: "sharpen", Apply: Sharpen(2.0)},
		{Name: "brighten", Apply: Brighten(1.2)},
		{Name: "contrast", Apply: Contrast(1.5)},
		{Name: "gamma", Apply: Darken(2.2)},
		{Name: "normalize", Apply: NormalizePercentile(0, 100)},
	}
}

// Preprocessor runs an ordered list of stages over a page image
type Preprocessor struct {
	Stages []Stage
	// DebugDir receives page_<n>_preprocessed.png files when set
	DebugDir string
	Logger   *slog.Logger
}

// NewPreprocessor creates a preprocessor with the default stages
func NewPreprocessor(targetSize int, debugDir string, log *slog.Logger) *Preprocessor {
	if log == nil {
		log = logger.Nop()
	}
	return &Preprocessor{
		Stages:   DefaultStages(targetSize),
		DebugDir: debugDir,
		Logger:   log,
	}
}

// Enhance runs every stage in order. A stage that fails is skipped and its
// input is handed to the next stage unchanged.
func (p *Preprocessor) Enhance(ctx context.Context, img image.Image) image.Image {
	for _, stage := range p.Stages {
		out, err := runStage(stage, img)
		if err != nil {
			p.Logger.WarnContext(ctx, "preprocessing stage skipped", "stage", stage.Name, "error", err)
			continue
		}
		img = out
	}
	return img
}

// Process enhances a page image and encodes it as uncompressed PNG.
// page is the one-based page number used for the debug file name.
func (p *Preprocessor) Process(ctx context.Context, page int, img image.Image) ([]byte, error) {
	enhanced := p.Enhance(ctx, img)

	if p.DebugDir != "" {
		if path, err := SaveDebugImage(p.DebugDir, page, enhanced); err != nil {
			p.Logger.WarnContext(ctx, "failed to save preprocessed image", "page", page, "error", err)
		} else {
			p.Logger.DebugContext(ctx, "saved preprocessed image", "page", page, "path", path)
		}
	}

	return EncodePNG(enhanced)
}

// EncodePNG encodes img losslessly without compression
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.NoCompression)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveDebugImage writes img to dir/page_<page>_preprocessed.png, creating dir if needed
func SaveDebugImage(dir string, page int, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d_preprocessed.png", page))
	if err := imaging.Save(img, path, imaging.PNGCompressionLevel(png.NoCompression)); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}

func runStage(stage Stage, img image.Image) (out image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	out, err = stage.Apply(img)
	if err == nil && out == nil {
		err = fmt.Errorf("stage returned no image")
	}
	return out, err
}

// Grayscale drops color information
func Grayscale(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// Upscale enlarges the image so its longest side reaches target, keeping the
// aspect ratio. Images already at or above target are returned as is.
func Upscale(target int) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		b := img.Bounds()
		if b.Empty() {
			return nil, fmt.Errorf("empty image")
		}
		if max(b.Dx(), b.Dy()) >= target {
			return img, nil
		}
		if b.Dx() >= b.Dy() {
			return imaging.Resize(img, target, 0, imaging.Lanczos), nil
		}
		return imaging.Resize(img, 0, target, imaging.Lanczos), nil
	}
}

// Median replaces every channel value with the median of its 3x3 neighbourhood
func Median(img image.Image) (image.Image, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := imaging.New(w, h, color.Transparent)

	var window [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := y*dst.Stride + x*4
			for c := 0; c < 3; c++ {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					yy := clampInt(y+dy, 0, h-1)
					for dx := -1; dx <= 1; dx++ {
						xx := clampInt(x+dx, 0, w-1)
						window[n] = src.Pix[yy*src.Stride+xx*4+c]
						n++
					}
				}
				dst.Pix[o+c] = median9(window)
			}
			dst.Pix[o+3] = src.Pix[y*src.Stride+x*4+3]
		}
	}
	return dst, nil
}

// NormalizePercentile stretches luminance so the lo-th percentile maps to
// black and the hi-th percentile maps to white. (0, 100) is a plain min-max
// stretch.
func NormalizePercentile(lo, hi float64) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		hist, total := lumaHistogram(img)
		if total == 0 {
			return nil, fmt.Errorf("empty image")
		}
		low := percentile(hist, total, lo)
		high := percentile(hist, total, hi)
		if high <= low {
			return img, nil
		}

		scale := 255 / float64(high-low)
		stretch := func(v uint8) uint8 {
			return clampUint8((float64(v) - float64(low)) * scale)
		}
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R, c.G, c.B = stretch(c.R), stretch(c.G), stretch(c.B)
			return c
		}), nil
	}
}

// Sharpen applies an unsharp mask with the given gaussian sigma
func Sharpen(sigma float64) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		return imaging.Sharpen(img, sigma), nil
	}
}

// Brighten multiplies every channel by factor and removes saturation
func Brighten(factor float64) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		out := imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R = clampUint8(float64(c.R) * factor)
			c.G = clampUint8(float64(c.G) * factor)
			c.B = clampUint8(float64(c.B) * factor)
			return c
		})
		return imaging.AdjustSaturation(out, -100), nil
	}
}

// Contrast stretches values linearly around 128: v*slope - 128*(slope-1).
// A slope of 1.5 maps v to 1.5*v - 64.
func Contrast(slope float64) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		offset := -128 * (slope - 1)
		return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			c.R = clampUint8(float64(c.R)*slope + offset)
			c.G = clampUint8(float64(c.G)*slope + offset)
			c.B = clampUint8(float64(c.B)*slope + offset)
			return c
		}), nil
	}
}

// Darken raises normalized values to the given exponent, darkening midtones
// for exponents above 1
func Darken(exponent float64) func(image.Image) (image.Image, error) {
	return func(img image.Image) (image.Image, error) {
		if exponent <= 0 {
			return nil, fmt.Errorf("invalid exponent %v", exponent)
		}
		// imaging applies v^(1/gamma)
		return imaging.AdjustGamma(img, 1/exponent), nil
	}
}

func lumaHistogram(img image.Image) ([256]int, int) {
	var hist [256]int
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			hist[luma(row[i], row[i+1], row[i+2])]++
		}
	}
	return hist, w * h
}

// percentile returns the smallest value v such that at least p percent of
// the pixels are <= v
func percentile(hist [256]int, total int, p float64) uint8 {
	if p <= 0 {
		for v, n := range hist {
			if n > 0 {
				return uint8(v)
			}
		}
		return 0
	}
	want := int(math.Ceil(float64(total) * p / 100))
	seen := 0
	for v, n := range hist {
		seen += n
		if seen >= want {
			return uint8(v)
		}
	}
	return 255
}

func luma(r, g, b uint8) uint8 {
	return clampUint8(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b))
}

func median9(w [9]uint8) uint8 {
	for i := 1; i < len(w); i++ {
		for j := i; j > 0 && w[j-1] > w[j]; j-- {
			w[j-1], w[j] = w[j], w[j-1]
		}
	}
	return w[4]
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampUint8(v float64) uint8 {
	return uint8(math.Round(min(max(v, 0), 255)))
}
