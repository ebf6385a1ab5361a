package ocr

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the tesseract language model used for recognition
const DefaultLanguage = "eng"

// Recognition is the text found on one image
type Recognition struct {
	Text string
	// Confidence is the mean word confidence in [0, 100]
	Confidence float64
}

// WordCount returns the number of whitespace separated words in the text
func (r Recognition) WordCount() int {
	return len(strings.Fields(r.Text))
}

// CharCount returns the number of characters in the text
func (r Recognition) CharCount() int {
	return utf8.RuneCountInString(r.Text)
}

// Recognizer turns an encoded image into text
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
}

// TesseractRecognizer recognizes text with a tesseract client per call.
// Clients are not shared, so one recognizer is safe for concurrent use.
type TesseractRecognizer struct {
	Language      string
	clientFactory func() *gosseract.Client
}

// NewTesseractRecognizer creates a recognizer for the given language
func NewTesseractRecognizer(language string) *TesseractRecognizer {
	if language == "" {
		language = DefaultLanguage
	}
	return &TesseractRecognizer{
		Language:      language,
		clientFactory: gosseract.NewClient,
	}
}

// Recognize runs tesseract over a PNG, JPEG or TIFF image
func (r *TesseractRecognizer) Recognize(ctx context.Context, image []byte) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}

	c := r.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(r.Language); err != nil {
		return Recognition{}, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return Recognition{}, fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognize text: %w", err)
	}

	return Recognition{
		Text:       strings.TrimSpace(text),
		Confidence: meanWordConfidence(c),
	}, nil
}

func meanWordConfidence(c *gosseract.Client) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}
