package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound indicates the input path is not a readable file
	ErrDocumentNotFound = errors.New("document not found")

	// ErrExtractionFailure indicates text could not be extracted from a page or document
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrNoText indicates extraction succeeded but produced no usable text
	ErrNoText = errors.New("document contains no extractable text")

	// ErrIndexNotBuilt indicates a query against an index that has not been built
	ErrIndexNotBuilt = errors.New("index not built")

	// ErrNotReady indicates a question was asked before a document was loaded
	ErrNotReady = errors.New("pipeline not ready: load a document first")

	// ErrServiceUnavailable indicates the embedding or generation endpoint could not be reached
	ErrServiceUnavailable = errors.New("model service unavailable")

	// ErrInvalidConfig indicates a configuration value is out of range
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PageError reports a failure on a single page of a document.
// It matches ErrExtractionFailure with errors.Is.
type PageError struct {
	Path string
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d of %s: %v", e.Page+1, e.Path, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

func (e *PageError) Is(target error) bool { return target == ErrExtractionFailure }
