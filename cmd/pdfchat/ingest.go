package main

import (
	"fmt"
	"time"

	"pdfchat/internal/ocr"
	"pdfchat/internal/pipeline"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <pdf>",
	Short: "Extract and index a PDF and report statistics",
	Long: `Runs extraction, chunking and embedding for a PDF without asking anything.
With --ocr the page confidence summary is printed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var imageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Recognize the text of a single image",
	Args:  cobra.ExactArgs(1),
	RunE:  runImage,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(imageCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.ocr.Progress = progressPrinter(cmd.ErrOrStderr())

	res, err := a.pipeline.LoadDocument(ctx, args[0], useOCR)
	if err != nil {
		return fmt.Errorf("failed to load PDF: %w", err)
	}
	return printLoadResult(cmd, res)
}

func printLoadResult(cmd *cobra.Command, res *pipeline.LoadResult) error {
	cmd.Printf("Run:      %s\n", res.RunID)
	cmd.Printf("Method:   %s\n", res.Method)
	cmd.Printf("Pages:    %d\n", res.Pages)
	cmd.Printf("Passages: %d\n", res.Passages)
	cmd.Printf("Duration: %s\n", res.Duration.Round(time.Millisecond))

	if res.Run != nil {
		cmd.Println()
		return ocr.WriteSummary(cmd.OutOrStdout(), res.Run)
	}
	return nil
}

func runImage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	extractor := ocr.NewExtractor(ocr.Options{
		Language:   cfg.OCRLanguage,
		TargetSize: cfg.OCRTargetSize,
		DebugDir:   cfg.DebugDir,
	}, log)

	doc, err := extractor.ExtractImage(ctx, args[0])
	if err != nil {
		return err
	}

	cmd.Println(doc.RawText)
	cmd.Println()
	if doc.Confidence != nil {
		cmd.Printf("Confidence: %.2f%%\n", *doc.Confidence)
	}
	return nil
}
