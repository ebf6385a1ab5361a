package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodFor(t *testing.T) {
	assert.Equal(t, ExtractionOCR, MethodFor(true))
	assert.Equal(t, ExtractionDirect, MethodFor(false))
}

func TestExtractionMethod_String(t *testing.T) {
	assert.Equal(t, "direct", ExtractionDirect.String())
	assert.Equal(t, "ocr", ExtractionOCR.String())
	assert.Equal(t, "ExtractionMethod(7)", ExtractionMethod(7).String())
}

func TestErrors_Distinct(t *testing.T) {
	all := []error{
		ErrDocumentNotFound,
		ErrExtractionFailure,
		ErrNoText,
		ErrIndexNotBuilt,
		ErrNotReady,
		ErrServiceUnavailable,
		ErrInvalidConfig,
	}
	for i, a := range all {
		assert.NotEmpty(t, a.Error())
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}

func TestPageError(t *testing.T) {
	cause := errors.New("tesseract crashed")
	err := fmt.Errorf("ocr: %w", &PageError{Path: "scan.pdf", Page: 2, Err: cause})

	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "page 3 of scan.pdf")

	var pageErr *PageError
	if assert.ErrorAs(t, err, &pageErr) {
		assert.Equal(t, 2, pageErr.Page)
	}
}
