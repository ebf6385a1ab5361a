package main

import (
	"errors"
	"fmt"
	"strings"

	"pdfchat/internal/models"

	"github.com/spf13/cobra"
)

var (
	askQuestion string
	askSources  bool
)

var askCmd = &cobra.Command{
	Use:   "ask <pdf>",
	Short: "Answer one question about a PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to answer")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the passages used as context")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(askQuestion) == "" {
		return errors.New("a question is required, use -q 'your question'")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.pipeline.LoadDocument(ctx, args[0], useOCR); err != nil {
		return fmt.Errorf("failed to load PDF: %w", err)
	}

	resp, err := a.pipeline.AskDetailed(ctx, askQuestion)
	if err != nil {
		return errors.New(describeError(err))
	}

	cmd.Println(formatAnswer(resp, askSources))
	return nil
}

func formatAnswer(resp *models.Response, withSources bool) string {
	var sb strings.Builder
	sb.WriteString(resp.Answer)

	if withSources && len(resp.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i, p := range resp.Sources {
			sb.WriteString(fmt.Sprintf("  %d. [Page: %d, offset %d] %s\n",
				i+1, p.PageIndex+1, p.OffsetInSource, snippet(p.Content, 80)))
		}
	}

	return sb.String()
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
