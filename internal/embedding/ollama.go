package embedding

import (
	"context"
	"fmt"
	"time"

	"pdfchat/internal/ollama"

	"github.com/ollama/ollama/api"
)

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client     *api.Client
	Model      string
	MaxRetries int
	Timeout    time.Duration
	// RetryDelay is multiplied by the attempt number before each retry
	RetryDelay time.Duration
}

// NewOllamaEmbedder creates a new Ollama embedder
func NewOllamaEmbedder(host string, model string) (*OllamaEmbedder, error) {
	client, err := ollama.NewClient(host, nil)
	if err != nil {
		return nil, err
	}

	return &OllamaEmbedder{
		Client:     client,
		Model:      model,
		MaxRetries: 3,
		Timeout:    time.Second * 30,
		RetryDelay: time.Second,
	}, nil
}

// EmbedText generates an embedding for a text
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	var embedding []float64
	var err error

	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries) * e.RetryDelay):
			}
		}

		embedding, err = e.createEmbedding(ctx, text)
		if err == nil {
			return embedding, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.MaxRetries, err)
}

// createEmbedding is a helper function to create a single embedding
func (e *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := api.EmbeddingRequest{
		Model:  e.Model,
		Prompt: text,
	}

	callCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	resp, err := e.Client.Embeddings(callCtx, &req)
	if err != nil {
		return nil, ollama.MapError(ctx, err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.Model)
	}

	return resp.Embedding, nil
}
