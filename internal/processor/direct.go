// internal/processor/direct.go
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"pdfchat/internal/logger"
	"pdfchat/internal/models"

	"github.com/ledongthuc/pdf"
)

var (
	spaceRunRe = regexp.MustCompile(`[ \t\f\v]+`)
	lineEdgeRe = regexp.MustCompile(` ?\n ?`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// CheckDocument verifies that path names a readable regular file
func CheckDocument(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", models.ErrDocumentNotFound, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", models.ErrDocumentNotFound, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", models.ErrDocumentNotFound, path, err)
	}
	return f.Close()
}

// DirectExtractor reads the embedded text layer of a PDF page by page.
// Scanned or handwritten pages carry no text layer and come back empty.
type DirectExtractor struct {
	Logger *slog.Logger
}

// NewDirectExtractor creates a new direct extractor
func NewDirectExtractor(log *slog.Logger) *DirectExtractor {
	if log == nil {
		log = logger.Nop()
	}
	return &DirectExtractor{Logger: log}
}

// ExtractDirect extracts the text layer of the PDF at path with a default extractor
func ExtractDirect(ctx context.Context, path string) ([]models.SourceDocument, error) {
	return NewDirectExtractor(nil).Extract(ctx, path)
}

// Extract returns one source document per page, in page order
func (d *DirectExtractor) Extract(ctx context.Context, path string) (docs []models.SourceDocument, err error) {
	if err := CheckDocument(path); err != nil {
		return nil, err
	}

	// the parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("%w: failed to parse PDF %s: %v", models.ErrExtractionFailure, path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open PDF %s: %w", models.ErrExtractionFailure, path, err)
	}
	defer f.Close()

	total := r.NumPage()
	docs = make([]models.SourceDocument, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := pageText(r.Page(i))
		if err != nil {
			pageErr := &models.PageError{Path: path, Page: i - 1, Err: err}
			d.Logger.WarnContext(ctx, "failed to extract page text", "page", i, "error", pageErr)
			text = ""
		}

		docs = append(docs, models.SourceDocument{
			PageIndex:        i - 1,
			RawText:          CleanText(text),
			ExtractionMethod: models.ExtractionDirect,
		})
	}

	d.Logger.InfoContext(ctx, "extracted text layer", "path", path, "pages", total)
	return docs, nil
}

func pageText(p pdf.Page) (string, error) {
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// CleanText normalizes line endings, collapses runs of horizontal whitespace
// and blank lines, and trims the result. Paragraph breaks survive as "\n\n".
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = lineEdgeRe.ReplaceAllString(text, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
