// Package pipeline answers questions about one loaded PDF by retrieving the
// most similar passages and handing them to a language model.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pdfchat/internal/llm"
	"pdfchat/internal/logger"
	"pdfchat/internal/models"
	"pdfchat/internal/processor"

	"github.com/google/uuid"
)

// DefaultTopK is the number of passages retrieved per question
const DefaultTopK = 4

// State is the lifecycle state of a Pipeline
type State int32

const (
	// Idle means no document is loaded
	Idle State = iota
	// Loading means a document is being extracted and indexed
	Loading
	// Ready means questions can be asked
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TextExtractor reads the text layer of a PDF
type TextExtractor interface {
	Extract(ctx context.Context, path string) ([]models.SourceDocument, error)
}

// OCRExtractor recognizes the text of rendered PDF pages
type OCRExtractor interface {
	Extract(ctx context.Context, path string) ([]models.SourceDocument, *models.OCRRun, error)
}

// Retriever indexes passages and finds the ones nearest to a question
type Retriever interface {
	Build(ctx context.Context, passages []models.Passage) error
	Query(ctx context.Context, text string, k int) ([]models.SearchResult, error)
	Reset()
	Len() int
}

// Generator produces an answer for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RunRecorder archives OCR run diagnostics
type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.OCRRun) error
}

// Deps are the collaborators of a Pipeline. Recorder is optional.
type Deps struct {
	Direct    TextExtractor
	OCR       OCRExtractor
	Chunker   *processor.Chunker
	Index     Retriever
	Generator Generator
	Recorder  RunRecorder
	TopK      int
	Logger    *slog.Logger
}

// LoadResult describes a completed load
type LoadResult struct {
	RunID    string
	Method   models.ExtractionMethod
	Pages    int
	Passages int
	// Run is set for OCR loads
	Run      *models.OCRRun
	Duration time.Duration
}

// Pipeline owns the index of the loaded document. Loads and questions are
// serialized; State may be read at any time.
type Pipeline struct {
	deps  Deps
	topK  int
	log   *slog.Logger
	state atomic.Int32
	mu    sync.Mutex
}

// New creates an idle pipeline
func New(deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Chunker == nil {
		deps.Chunker = processor.NewChunker(processor.DefaultChunkSize, processor.DefaultChunkOverlap)
	}
	topK := deps.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{deps: deps, topK: topK, log: deps.Logger}
}

// State returns the current lifecycle state
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// LoadDocument extracts, chunks and indexes the PDF at path, replacing any
// previously loaded document. On failure the pipeline is left Idle with no
// index.
func (p *Pipeline) LoadDocument(ctx context.Context, path string, useOCR bool) (*LoadResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Store(int32(Loading))
	p.deps.Index.Reset()

	start := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	res, err := p.load(ctx, path, models.MethodFor(useOCR))
	if err != nil {
		p.deps.Index.Reset()
		p.state.Store(int32(Idle))
		p.log.ErrorContext(ctx, "failed to load document", "path", path, "error", err)
		return nil, err
	}

	res.RunID = runID
	res.Duration = time.Since(start)
	p.state.Store(int32(Ready))
	p.log.InfoContext(ctx, "document loaded",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"passages", res.Passages,
		"duration", res.Duration)
	return res, nil
}

func (p *Pipeline) load(ctx context.Context, path string, method models.ExtractionMethod) (*LoadResult, error) {
	p.log.InfoContext(ctx, "loading document", "path", path, "method", method)

	var docs []models.SourceDocument
	var run *models.OCRRun
	var err error

	switch method {
	case models.ExtractionOCR:
		if p.deps.OCR == nil {
			return nil, fmt.Errorf("%w: OCR extraction is not configured", models.ErrExtractionFailure)
		}
		docs, run, err = p.deps.OCR.Extract(ctx, path)
		if run != nil {
			p.record(ctx, run)
		}
	default:
		docs, err = p.deps.Direct.Extract(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	passages := p.deps.Chunker.Split(docs)
	if len(passages) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrNoText, path)
	}
	p.log.InfoContext(ctx, "split document", "pages", len(docs), "passages", len(passages))

	if err := p.deps.Index.Build(ctx, passages); err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	return &LoadResult{
		Method:   method,
		Pages:    len(docs),
		Passages: len(passages),
		Run:      run,
	}, nil
}

func (p *Pipeline) record(ctx context.Context, run *models.OCRRun) {
	if p.deps.Recorder == nil {
		return
	}
	if err := p.deps.Recorder.SaveRun(ctx, run); err != nil {
		p.log.WarnContext(ctx, "failed to archive OCR run", "run", run.ID, "error", err)
	}
}

// Ask answers question from the loaded document and returns the generated
// text unchanged
func (p *Pipeline) Ask(ctx context.Context, question string) (string, error) {
	resp, err := p.AskDetailed(ctx, question)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// AskDetailed answers question and also returns the passages used as context
func (p *Pipeline) AskDetailed(ctx context.Context, question string) (*models.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Ready {
		return nil, models.ErrNotReady
	}

	results, err := p.deps.Index.Query(ctx, question, p.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve passages: %w", err)
	}

	sources := make([]models.Passage, len(results))
	for i, r := range results {
		sources[i] = r.Passage
	}
	p.log.DebugContext(ctx, "retrieved passages", "count", len(sources), "question", truncate(question, 80))

	answer, err := p.deps.Generator.Generate(ctx, llm.BuildPrompt(question, llm.JoinContext(sources)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &models.Response{
		Answer:    answer,
		Sources:   sources,
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
