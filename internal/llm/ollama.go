package llm

import (
	"context"
	"strings"
	"time"

	"pdfchat/internal/models"
	"pdfchat/internal/ollama"

	"github.com/ollama/ollama/api"
)

// DefaultTemperature is the sampling temperature used for answers
const DefaultTemperature = 0.7

// OllamaLLM handles interactions with the Ollama LLM API
type OllamaLLM struct {
	Client      *api.Client
	Model       string
	Temperature float64
	Timeout     time.Duration
	// OnToken, when set, receives the answer as it streams in
	OnToken func(string)
}

// NewOllamaLLM creates a new Ollama LLM client
func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	client, err := ollama.NewClient(host, nil)
	if err != nil {
		return nil, err
	}

	return &OllamaLLM{
		Client:      client,
		Model:       model,
		Temperature: DefaultTemperature,
		Timeout:     2 * time.Minute,
	}, nil
}

// JoinContext concatenates retrieved passages into one context block
func JoinContext(passages []models.Passage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt grounds the question in the retrieved context
func BuildPrompt(question, context string) string {
	var promptBuilder strings.Builder

	promptBuilder.WriteString("Use the following pieces of context to answer the question at the end. ")
	promptBuilder.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")
	promptBuilder.WriteString(context)
	promptBuilder.WriteString("\n\nQuestion: " + question + "\n")
	promptBuilder.WriteString("Helpful Answer:")

	return promptBuilder.String()
}

// Generate sends the prompt to the model and returns the full response text
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	req := api.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Options: map[string]any{
			"temperature": o.Temperature,
		},
	}

	callCtx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	var responseBuilder strings.Builder
	err := o.Client.Generate(callCtx, &req, func(resp api.GenerateResponse) error {
		if o.OnToken != nil && resp.Response != "" {
			o.OnToken(resp.Response)
		}
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", ollama.MapError(ctx, err)
	}

	return responseBuilder.String(), nil
}
