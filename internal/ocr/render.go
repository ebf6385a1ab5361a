package ocr

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DefaultScale multiplies the 72 DPI page size when rendering
const DefaultScale = 4.0

// RenderedDocument gives access to the rasterized pages of an open PDF.
// Implementations need not be safe for concurrent use.
type RenderedDocument interface {
	NumPage() int
	// Render rasterizes the zero-based page at 72*scale DPI
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

// PageRenderer opens PDFs for rasterization
type PageRenderer interface {
	Open(path string) (RenderedDocument, error)
}

// FitzRenderer rasterizes pages with MuPDF
type FitzRenderer struct{}

func (FitzRenderer) Open(path string) (RenderedDocument, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d *fitzDocument) Render(page int, scale float64) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page+1, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error { return d.doc.Close() }
