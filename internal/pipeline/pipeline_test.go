package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"pdfchat/internal/models"
	"pdfchat/internal/processor"
	"pdfchat/internal/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const dims = 1024

// bagOfWords embeds text as hashed word counts
type bagOfWords struct{}

func (bagOfWords) EmbedText(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%dims]++
	}
	return vec, nil
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) SaveRun(ctx context.Context, run *models.OCRRun) error {
	return m.Called(ctx, run).Error(0)
}

type extractorFunc func(ctx context.Context, path string) ([]models.SourceDocument, error)

func (f extractorFunc) Extract(ctx context.Context, path string) ([]models.SourceDocument, error) {
	return f(ctx, path)
}

type ocrFunc func(ctx context.Context, path string) ([]models.SourceDocument, *models.OCRRun, error)

func (f ocrFunc) Extract(ctx context.Context, path string) ([]models.SourceDocument, *models.OCRRun, error) {
	return f(ctx, path)
}

func repeatTo(sentence string, n int) string {
	return strings.Repeat(sentence, n/len(sentence)+1)[:n]
}

// threePages mimics a document whose second page holds the answer
func threePages() []models.SourceDocument {
	return []models.SourceDocument{
		{PageIndex: 0, RawText: repeatTo("Quarterly revenue grew across all regional divisions. ", 1500)},
		{PageIndex: 1, RawText: repeatTo("The lighthouse keeper counts exactly forty-two gulls every morning. ", 400)},
		{PageIndex: 2, RawText: repeatTo("Sediment layers accumulate slowly along river deltas. ", 2200)},
	}
}

func staticExtractor(docs []models.SourceDocument) TextExtractor {
	return extractorFunc(func(context.Context, string) ([]models.SourceDocument, error) {
		return docs, nil
	})
}

func newTestPipeline(direct TextExtractor, gen Generator) (*Pipeline, *vectorindex.Index) {
	index := vectorindex.New(bagOfWords{}, 2, nil)
	return New(Deps{
		Direct:    direct,
		Chunker:   processor.NewChunker(1000, 200),
		Index:     index,
		Generator: gen,
		TopK:      1,
	}), index
}

func TestPipeline_EndToEnd(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "forty-two gulls") &&
			strings.Contains(prompt, "Question: How many gulls does the lighthouse keeper count every morning?")
	})).Return("Forty-two gulls.", nil).Once()

	p, index := newTestPipeline(staticExtractor(threePages()), gen)
	assert.Equal(t, Idle, p.State())

	res, err := p.LoadDocument(context.Background(), "doc.pdf", false)
	require.NoError(t, err)
	assert.Equal(t, Ready, p.State())
	assert.Equal(t, models.ExtractionDirect, res.Method)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 6, res.Passages)
	assert.Equal(t, 6, index.Len())
	assert.NotEmpty(t, res.RunID)

	resp, err := p.AskDetailed(context.Background(), "How many gulls does the lighthouse keeper count every morning?")
	require.NoError(t, err)
	assert.Equal(t, "Forty-two gulls.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].PageIndex)
	assert.Equal(t, 1, resp.Sources[0].SourceDocIndex)

	gen.AssertExpectations(t)
}

func TestPipeline_AskReturnsAnswerVerbatim(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("  raw\nanswer  ", nil)

	p, _ := newTestPipeline(staticExtractor(threePages()), gen)
	_, err := p.LoadDocument(context.Background(), "doc.pdf", false)
	require.NoError(t, err)

	answer, err := p.Ask(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "  raw\nanswer  ", answer)
}

func TestPipeline_AskBeforeLoad(t *testing.T) {
	gen := &mockGenerator{}
	p, _ := newTestPipeline(staticExtractor(threePages()), gen)

	_, err := p.Ask(context.Background(), "question")
	assert.ErrorIs(t, err, models.ErrNotReady)
	assert.Equal(t, Idle, p.State())
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestPipeline_DocumentNotFound(t *testing.T) {
	p, _ := newTestPipeline(processor.NewDirectExtractor(nil), &mockGenerator{})

	_, err := p.LoadDocument(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), false)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	assert.Equal(t, Idle, p.State())
}

func TestPipeline_FailedLoadDiscardsPreviousIndex(t *testing.T) {
	fail := false
	direct := extractorFunc(func(context.Context, string) ([]models.SourceDocument, error) {
		if fail {
			return nil, models.ErrExtractionFailure
		}
		return threePages(), nil
	})
	p, index := newTestPipeline(direct, &mockGenerator{})

	_, err := p.LoadDocument(context.Background(), "doc.pdf", false)
	require.NoError(t, err)
	require.Equal(t, Ready, p.State())

	fail = true
	_, err = p.LoadDocument(context.Background(), "other.pdf", false)
	assert.ErrorIs(t, err, models.ErrExtractionFailure)
	assert.Equal(t, Idle, p.State())
	assert.Equal(t, 0, index.Len())

	_, err = p.Ask(context.Background(), "question")
	assert.ErrorIs(t, err, models.ErrNotReady)
}

func TestPipeline_NoText(t *testing.T) {
	blank := []models.SourceDocument{{PageIndex: 0, RawText: "  "}, {PageIndex: 1}}
	p, _ := newTestPipeline(staticExtractor(blank), &mockGenerator{})

	_, err := p.LoadDocument(context.Background(), "scan.pdf", false)
	assert.ErrorIs(t, err, models.ErrNoText)
	assert.Equal(t, Idle, p.State())
}

func TestPipeline_IndexFailure(t *testing.T) {
	failing := &failingRetriever{err: models.ErrServiceUnavailable}
	p := New(Deps{Direct: staticExtractor(threePages()), Index: failing, Generator: &mockGenerator{}})

	_, err := p.LoadDocument(context.Background(), "doc.pdf", false)
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.Equal(t, Idle, p.State())
	assert.GreaterOrEqual(t, failing.resets, 2)
}

func TestPipeline_OCRDispatchRecordsRun(t *testing.T) {
	conf := 91.0
	run := &models.OCRRun{ID: "run-1", TotalPages: 1}
	ocr := ocrFunc(func(context.Context, string) ([]models.SourceDocument, *models.OCRRun, error) {
		return []models.SourceDocument{{
			RawText:          "Handwritten note about the harbour.",
			ExtractionMethod: models.ExtractionOCR,
			Confidence:       &conf,
		}}, run, nil
	})
	direct := extractorFunc(func(context.Context, string) ([]models.SourceDocument, error) {
		t.Fatal("direct extractor must not be used for OCR loads")
		return nil, nil
	})

	rec := &mockRecorder{}
	rec.On("SaveRun", mock.Anything, run).Return(errors.New("database down")).Once()

	p := New(Deps{
		Direct:    direct,
		OCR:       ocr,
		Index:     vectorindex.New(bagOfWords{}, 1, nil),
		Generator: &mockGenerator{},
		Recorder:  rec,
	})

	res, err := p.LoadDocument(context.Background(), "scan.pdf", true)
	require.NoError(t, err)
	assert.Equal(t, models.ExtractionOCR, res.Method)
	assert.Same(t, run, res.Run)
	assert.Equal(t, Ready, p.State())
	rec.AssertExpectations(t)
}

func TestPipeline_OCRNotConfigured(t *testing.T) {
	p, _ := newTestPipeline(staticExtractor(threePages()), &mockGenerator{})

	_, err := p.LoadDocument(context.Background(), "scan.pdf", true)
	assert.ErrorIs(t, err, models.ErrExtractionFailure)
	assert.Equal(t, Idle, p.State())
}

func TestPipeline_GeneratorUnavailable(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("", models.ErrServiceUnavailable)

	p, _ := newTestPipeline(staticExtractor(threePages()), gen)
	_, err := p.LoadDocument(context.Background(), "doc.pdf", false)
	require.NoError(t, err)

	_, err = p.Ask(context.Background(), "question")
	assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	assert.Equal(t, Ready, p.State())
}

func TestPipeline_AskWaitsForLoad(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	loads := 0

	var p *Pipeline
	direct := extractorFunc(func(context.Context, string) ([]models.SourceDocument, error) {
		loads++
		if loads == 2 {
			assert.Equal(t, Loading, p.State())
			close(started)
			<-release
		}
		return threePages(), nil
	})
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("answer", nil)
	p, _ = newTestPipeline(direct, gen)

	_, err := p.LoadDocument(context.Background(), "first.pdf", false)
	require.NoError(t, err)

	loadDone := make(chan error, 1)
	go func() {
		_, err := p.LoadDocument(context.Background(), "second.pdf", false)
		loadDone <- err
	}()
	<-started

	askDone := make(chan error, 1)
	go func() {
		_, err := p.Ask(context.Background(), "question")
		askDone <- err
	}()

	select {
	case <-askDone:
		t.Fatal("ask must wait for the running load")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-loadDone)
	assert.NoError(t, <-askDone)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "State(9)", State(9).String())
}

type failingRetriever struct {
	err    error
	resets int
}

func (f *failingRetriever) Build(context.Context, []models.Passage) error { return f.err }

func (f *failingRetriever) Query(context.Context, string, int) ([]models.SearchResult, error) {
	return nil, models.ErrIndexNotBuilt
}

func (f *failingRetriever) Reset() { f.resets++ }

func (f *failingRetriever) Len() int { return 0 }
