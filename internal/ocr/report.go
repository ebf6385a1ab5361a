package ocr

import (
	"fmt"
	"io"
	"strings"

	"pdfchat/internal/models"
)

const (
	// HighConfidence is the lower bound of the high bucket
	HighConfidence = 80.0
	// MediumConfidence is the lower bound of the medium bucket
	MediumConfidence = 60.0
	// WarnConfidence is the page confidence below which a warning is logged
	WarnConfidence = 70.0
)

// Summarize buckets page confidences and averages them over the given pages
func Summarize(pages []models.PageQualityReport) models.QualitySummary {
	var s models.QualitySummary
	if len(pages) == 0 {
		return s
	}

	var sum float64
	for _, p := range pages {
		sum += p.Confidence
		switch {
		case p.Confidence >= HighConfidence:
			s.HighCount++
		case p.Confidence >= MediumConfidence:
			s.MediumCount++
		default:
			s.LowCount++
			s.LowPages = append(s.LowPages, p.PageIndex)
		}
	}
	s.AverageConfidence = sum / float64(len(pages))
	return s
}

var remediationTips = []string{
	"Check the preprocessed images in the debug directory",
	"Ensure handwriting is clear, dark, and on a white background",
	"Scan or photograph at higher resolution (300+ DPI)",
	"Avoid shadows, creases, or skewed pages",
	"Consider a dedicated handwriting recognition service",
}

// WriteSummary prints a human readable report of an OCR run. Runs with low
// confidence pages also get remediation tips.
func WriteSummary(w io.Writer, run *models.OCRRun) error {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	s := run.Summary
	fmt.Fprintf(&b, "%s\nOCR ACCURACY SUMMARY\n%s\n", line, line)
	fmt.Fprintf(&b, "Average Confidence: %.2f%%\n", s.AverageConfidence)
	fmt.Fprintf(&b, "Total Pages Processed: %d of %d\n", len(run.Pages), run.TotalPages)
	if len(run.FailedPages) > 0 {
		fmt.Fprintf(&b, "Failed Pages: %s\n", pageList(run.FailedPages))
	}

	b.WriteString("\nConfidence Distribution:\n")
	fmt.Fprintf(&b, "  High (>=80%%): %d pages\n", s.HighCount)
	fmt.Fprintf(&b, "  Medium (60-79%%): %d pages\n", s.MediumCount)
	fmt.Fprintf(&b, "  Low (<60%%): %d pages\n", s.LowCount)

	if s.LowCount > 0 {
		b.WriteString("\nPages with low confidence:\n")
		for _, p := range run.Pages {
			if p.Confidence < MediumConfidence {
				fmt.Fprintf(&b, "  Page %d: %.2f%%\n", p.PageIndex+1, p.Confidence)
			}
		}

		b.WriteString("\nTips to improve accuracy:\n")
		for i, tip := range remediationTips {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, tip)
		}
	}
	b.WriteString(line + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func pageList(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprint(p + 1)
	}
	return strings.Join(parts, ", ")
}
