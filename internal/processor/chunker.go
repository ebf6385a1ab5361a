package processor

import (
	"strings"
	"unicode"

	"pdfchat/internal/models"
)

const (
	// DefaultChunkSize is the maximum passage length in characters
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the number of characters shared by consecutive passages
	DefaultChunkOverlap = 200
)

// boundary levels, coarsest first
type boundaryLevel int

const (
	levelParagraph boundaryLevel = iota
	levelSentence
	levelWhitespace
)

var boundaryLevels = []boundaryLevel{levelParagraph, levelSentence, levelWhitespace}

// Chunker splits source documents into overlapping passages.
//
// Lengths and offsets are counted in runes. A passage ends at the last
// boundary of the coarsest level (paragraph, sentence, whitespace) that keeps
// it within Size; when none exists the cut falls on a character. The next
// passage starts Overlap runes before that end, so joining each passage minus
// its first Overlap runes onto the previous one gives back the source text.
type Chunker struct {
	Size    int
	Overlap int
	// SplitLongWords cuts whitespace-free runs longer than Size instead of
	// keeping them whole in one oversized passage
	SplitLongWords bool
}

// NewChunker creates a new chunker
func NewChunker(size, overlap int) *Chunker {
	size, overlap = normalize(size, overlap)
	return &Chunker{
		Size:    size,
		Overlap: overlap,
	}
}

func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/5)
	}
	return size, overlap
}

// Split chunks every document and returns the passages in document order.
// Invalid sizes set directly on the struct are corrected as in NewChunker.
func (c *Chunker) Split(docs []models.SourceDocument) []models.Passage {
	valid := *c
	valid.Size, valid.Overlap = normalize(c.Size, c.Overlap)
	c = &valid

	var passages []models.Passage
	for i, doc := range docs {
		text := []rune(doc.RawText)
		for _, w := range c.windows(text) {
			passages = append(passages, models.Passage{
				Content:        string(text[w.start:w.end]),
				SourceDocIndex: i,
				OffsetInSource: w.start,
				PageIndex:      doc.PageIndex,
			})
		}
	}
	return passages
}

type window struct {
	start, end int
}

func (c *Chunker) windows(text []rune) []window {
	if isBlank(text) {
		return nil
	}

	var out []window
	n := len(text)
	start := 0
	for {
		if n-start <= c.Size {
			return append(out, window{start, n})
		}
		end := c.cut(text, start)
		out = append(out, window{start, end})
		if end >= n {
			return out
		}
		start = end - c.Overlap
	}
}

// cut picks the end of the passage starting at start. The end must lie past
// the overlap so the following passage makes progress.
func (c *Chunker) cut(text []rune, start int) int {
	lo := start + c.Overlap
	hi := start + c.Size

	for _, level := range boundaryLevels {
		for i := hi; i > lo; i-- {
			if isBoundary(text, i, level) {
				return i
			}
		}
	}

	if !c.SplitLongWords {
		ts, te := hi, hi
		for ts > 0 && !unicode.IsSpace(text[ts-1]) {
			ts--
		}
		for te < len(text) && !unicode.IsSpace(text[te]) {
			te++
		}
		if te-ts > c.Size {
			return te
		}
	}
	return hi
}

// isBoundary reports whether cutting between text[i-1] and text[i] falls on
// a boundary of the given level
func isBoundary(text []rune, i int, level boundaryLevel) bool {
	if i < 1 || i > len(text) {
		return false
	}
	switch level {
	case levelParagraph:
		return i >= 2 && text[i-1] == '\n' && text[i-2] == '\n'
	case levelSentence:
		return i >= 2 && unicode.IsSpace(text[i-1]) && strings.ContainsRune(".!?", text[i-2])
	default:
		return unicode.IsSpace(text[i-1])
	}
}

func isBlank(text []rune) bool {
	for _, r := range text {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
