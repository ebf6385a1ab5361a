package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"pdfchat/internal/models"
	"pdfchat/internal/ocr"
	"pdfchat/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	useOCR     bool
)

var rootCmd = &cobra.Command{
	Use:   "pdfchat [pdf]",
	Short: "Chat with a PDF using a local Ollama model",
	Long: `Loads a PDF, indexes its text and answers questions about it with a local
Ollama model. Scanned or handwritten documents can be read with --ocr.
Type "exit" or "quit" to leave the chat.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default ./pdfchat.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useOCR, "ocr", false, "extract text with OCR instead of the PDF text layer")
}

// session is the part of the pipeline the chat loop needs
type session interface {
	LoadDocument(ctx context.Context, path string, useOCR bool) (*pipeline.LoadResult, error)
	Ask(ctx context.Context, question string) (string, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.ocr.Progress = progressPrinter(cmd.ErrOrStderr())

	var path string
	if len(args) > 0 {
		path = args[0]
	}
	return chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.pipeline, path, useOCR)
}

// chat loads the document, prompting for its path when empty, then answers
// questions until the input ends or an exit command is read
func chat(ctx context.Context, r io.Reader, w io.Writer, s session, path string, ocrMode bool) error {
	in := bufio.NewScanner(r)

	fmt.Fprintln(w, "=== PDF Chat (local Ollama) ===")
	fmt.Fprintln(w, "Make sure Ollama is running on your system!")
	fmt.Fprintln(w)

	if path == "" {
		fmt.Fprint(w, "Enter the path to your PDF file: ")
		if !in.Scan() {
			return errors.New("no PDF path given")
		}
		path = strings.TrimSpace(in.Text())
	}

	res, err := s.LoadDocument(ctx, path, ocrMode)
	if err != nil {
		return fmt.Errorf("failed to load PDF: %w", err)
	}
	fmt.Fprintf(w, "Loaded %d pages as %d passages.\n", res.Pages, res.Passages)
	fmt.Fprintln(w, "\nYou can now ask questions about the PDF!")
	fmt.Fprintln(w, `Type "exit" to quit`)

	for {
		fmt.Fprint(w, "\nYou: ")
		if !in.Scan() {
			break
		}

		question := strings.TrimSpace(in.Text())
		if isExit(question) {
			fmt.Fprintln(w, "Goodbye!")
			break
		}
		if question == "" {
			continue
		}

		fmt.Fprintln(w, "\nAssistant: Thinking...")
		answer, err := s.Ask(ctx, question)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", describeError(err))
			continue
		}
		fmt.Fprintf(w, "\nAssistant: %s\n", answer)
	}

	return in.Err()
}

func isExit(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit":
		return true
	}
	return false
}

// describeError adds a hint for errors the user can fix
func describeError(err error) string {
	if errors.Is(err, models.ErrServiceUnavailable) {
		return fmt.Sprintf("%v (is Ollama running?)", err)
	}
	return err.Error()
}

func progressPrinter(w io.Writer) ocr.ProgressFunc {
	var mu sync.Mutex
	return func(page, total int, step string) {
		mu.Lock()
		defer mu.Unlock()
		n := 1
		if step == ocr.StepRecognize {
			n = 2
		}
		fmt.Fprintf(w, "page %d/%d: step %d/2 %s\n", page, total, n, step)
	}
}
