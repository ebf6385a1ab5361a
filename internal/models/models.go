package models

import (
	"fmt"
	"time"
)

// ExtractionMethod identifies how the text of a page was obtained
type ExtractionMethod int

const (
	// ExtractionDirect reads the PDF's embedded text layer
	ExtractionDirect ExtractionMethod = iota
	// ExtractionOCR renders the page and runs text recognition on it
	ExtractionOCR
)

// MethodFor maps the useOCR switch of a load request to an extraction method
func MethodFor(useOCR bool) ExtractionMethod {
	if useOCR {
		return ExtractionOCR
	}
	return ExtractionDirect
}

func (m ExtractionMethod) String() string {
	switch m {
	case ExtractionDirect:
		return "direct"
	case ExtractionOCR:
		return "ocr"
	default:
		return fmt.Sprintf("ExtractionMethod(%d)", int(m))
	}
}

// SourceDocument is the text of a single PDF page
type SourceDocument struct {
	PageIndex        int              `json:"page_index"`
	RawText          string           `json:"raw_text"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	// Confidence is only set for OCR pages
	Confidence *float64 `json:"confidence,omitempty"`
}

// Passage is a bounded slice of a SourceDocument used for embedding and retrieval
type Passage struct {
	Content        string `json:"content"`
	SourceDocIndex int    `json:"source_doc_index"`
	// OffsetInSource is the rune offset of Content within the source text
	OffsetInSource int `json:"offset_in_source"`
	PageIndex      int `json:"page_index"`
}

// IndexEntry pairs a passage with its embedding
type IndexEntry struct {
	Passage Passage   `json:"passage"`
	Vector  []float64 `json:"vector"`
}

// SearchResult is a passage returned by a similarity query
type SearchResult struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// Response represents the response from the LLM
type Response struct {
	Answer    string    `json:"answer"`
	Sources   []Passage `json:"sources"`
	Timestamp string    `json:"timestamp"`
}

// PageQualityReport describes the recognition quality of one OCR page
type PageQualityReport struct {
	PageIndex  int     `json:"page_index"`
	Confidence float64 `json:"confidence"`
	WordCount  int     `json:"word_count"`
	CharCount  int     `json:"char_count"`
}

// QualitySummary aggregates page reports of one OCR run
type QualitySummary struct {
	AverageConfidence float64 `json:"average_confidence"`
	HighCount         int     `json:"high_count"`
	MediumCount       int     `json:"medium_count"`
	LowCount          int     `json:"low_count"`
	// LowPages holds the zero-based indexes of low confidence pages
	LowPages []int `json:"low_pages,omitempty"`
}

// OCRRun is the diagnostic record of one OCR extraction
type OCRRun struct {
	ID          string              `json:"id"`
	Path        string              `json:"path"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	TotalPages  int                 `json:"total_pages"`
	Pages       []PageQualityReport `json:"pages"`
	FailedPages []int               `json:"failed_pages,omitempty"`
	Summary     QualitySummary      `json:"summary"`
}
