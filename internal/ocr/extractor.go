package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"time"

	"pdfchat/internal/logger"
	"pdfchat/internal/models"
	"pdfchat/internal/processor"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Step names reported through ProgressFunc
const (
	StepPreprocess = "preprocessing"
	StepRecognize  = "recognizing"
)

// ProgressFunc receives per-page progress. page is one-based. It may be
// called from several goroutines at once.
type ProgressFunc func(page, total int, step string)

// Options configures an Extractor built by NewExtractor
type Options struct {
	Language   string
	Scale      float64
	TargetSize int
	Workers    int
	DebugDir   string
}

// Extractor renders PDF pages, enhances them and recognizes their text
type Extractor struct {
	Renderer     PageRenderer
	Preprocessor *Preprocessor
	Recognizer   Recognizer
	Scale        float64
	Workers      int
	Progress     ProgressFunc
	Logger       *slog.Logger
}

// NewExtractor creates an extractor backed by MuPDF and tesseract
func NewExtractor(opts Options, log *slog.Logger) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{
		Renderer:     FitzRenderer{},
		Preprocessor: NewPreprocessor(opts.TargetSize, opts.DebugDir, log),
		Recognizer:   NewTesseractRecognizer(opts.Language),
		Scale:        opts.Scale,
		Workers:      opts.Workers,
		Logger:       log,
	}
}

type pageResult struct {
	doc    models.SourceDocument
	report models.PageQualityReport
	err    error
}

// Extract returns one source document per successfully recognized page, in
// page order, together with the diagnostics of the run. Failed pages are
// left out and listed in the run. It fails only when no page succeeds.
func (e *Extractor) Extract(ctx context.Context, path string) ([]models.SourceDocument, *models.OCRRun, error) {
	if err := processor.CheckDocument(path); err != nil {
		return nil, nil, err
	}

	run := &models.OCRRun{
		ID:        runID(ctx),
		Path:      path,
		StartedAt: time.Now(),
	}

	doc, err := e.Renderer.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", models.ErrExtractionFailure, path, err)
	}
	defer doc.Close()

	total := doc.NumPage()
	run.TotalPages = total
	e.Logger.InfoContext(ctx, "starting OCR", "path", path, "pages", total, "workers", e.workers())

	results := make([]pageResult, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())

	// rendering stays on this goroutine; only enhancement and recognition fan out
	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}
		img, err := doc.Render(i, e.scale())
		if err != nil {
			results[i].err = err
			continue
		}
		g.Go(func() error {
			results[i] = e.processPage(gctx, i, total, img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var docs []models.SourceDocument
	for i, res := range results {
		if res.err != nil {
			pageErr := &models.PageError{Path: path, Page: i, Err: res.err}
			e.Logger.ErrorContext(ctx, "page failed", "page", i+1, "error", pageErr)
			run.FailedPages = append(run.FailedPages, i)
			continue
		}
		docs = append(docs, res.doc)
		run.Pages = append(run.Pages, res.report)
	}

	run.Summary = Summarize(run.Pages)
	run.Duration = time.Since(run.StartedAt)
	e.logSummary(ctx, run)

	if total > 0 && len(docs) == 0 {
		return nil, run, fmt.Errorf("%w: all %d pages of %s failed", models.ErrExtractionFailure, total, path)
	}
	return docs, run, nil
}

// ExtractImage recognizes the text of a single image file
func (e *Extractor) ExtractImage(ctx context.Context, imagePath string) (models.SourceDocument, error) {
	if err := processor.CheckDocument(imagePath); err != nil {
		return models.SourceDocument{}, err
	}

	img, err := imaging.Open(imagePath, imaging.AutoOrientation(true))
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("%w: %s: %w", models.ErrExtractionFailure, imagePath, err)
	}

	res := e.processPage(ctx, 0, 1, img)
	if res.err != nil {
		return models.SourceDocument{}, &models.PageError{Path: imagePath, Page: 0, Err: res.err}
	}
	return res.doc, nil
}

func (e *Extractor) processPage(ctx context.Context, i, total int, img image.Image) (res pageResult) {
	defer func() {
		if r := recover(); r != nil {
			res = pageResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	page := i + 1
	e.progress(page, total, StepPreprocess)
	data, err := e.Preprocessor.Process(ctx, page, img)
	if err != nil {
		return pageResult{err: err}
	}

	e.progress(page, total, StepRecognize)
	rec, err := e.Recognizer.Recognize(ctx, data)
	if err != nil {
		return pageResult{err: err}
	}

	report := models.PageQualityReport{
		PageIndex:  i,
		Confidence: rec.Confidence,
		WordCount:  rec.WordCount(),
		CharCount:  rec.CharCount(),
	}
	e.Logger.InfoContext(ctx, "page recognized",
		"page", page,
		"confidence", fmt.Sprintf("%.2f", rec.Confidence),
		"words", report.WordCount,
		"chars", report.CharCount)
	if rec.Confidence < WarnConfidence {
		e.Logger.WarnContext(ctx, "low confidence page, consider improving image quality",
			"page", page, "confidence", fmt.Sprintf("%.2f", rec.Confidence))
	}

	confidence := rec.Confidence
	return pageResult{
		doc: models.SourceDocument{
			PageIndex:        i,
			RawText:          processor.CleanText(rec.Text),
			ExtractionMethod: models.ExtractionOCR,
			Confidence:       &confidence,
		},
		report: report,
	}
}

func (e *Extractor) logSummary(ctx context.Context, run *models.OCRRun) {
	s := run.Summary
	e.Logger.InfoContext(ctx, "OCR finished",
		"pages", len(run.Pages),
		"failed", len(run.FailedPages),
		"average_confidence", fmt.Sprintf("%.2f", s.AverageConfidence),
		"high", s.HighCount,
		"medium", s.MediumCount,
		"low", s.LowCount,
		"duration", run.Duration)
	if s.LowCount > 0 {
		e.Logger.WarnContext(ctx, "pages with low confidence",
			"low_pages", pageList(s.LowPages),
			"tips", remediationTips)
	}
}

func (e *Extractor) progress(page, total int, step string) {
	if e.Progress != nil {
		e.Progress(page, total, step)
	}
}

func (e *Extractor) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return max(1, runtime.NumCPU()/2)
}

func (e *Extractor) scale() float64 {
	if e.Scale > 0 {
		return e.Scale
	}
	return DefaultScale
}

func runID(ctx context.Context) string {
	if id := logger.RunID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
