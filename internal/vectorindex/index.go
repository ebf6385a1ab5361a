// Package vectorindex keeps passage embeddings in memory and answers
// similarity queries over them.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"pdfchat/internal/logger"
	"pdfchat/internal/models"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of embedding requests in flight
const DefaultConcurrency = 3

// Embedder turns text into a vector
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// Index is an in-memory vector index over the passages of one document
type Index struct {
	Embedder    Embedder
	Concurrency int
	// Progress, when set, is called after each passage is embedded
	Progress func(done, total int)
	Logger   *slog.Logger

	mu      sync.RWMutex
	entries []models.IndexEntry
	built   bool
}

// New creates an empty index
func New(embedder Embedder, concurrency int, log *slog.Logger) *Index {
	if log == nil {
		log = logger.Nop()
	}
	return &Index{
		Embedder:    embedder,
		Concurrency: concurrency,
		Logger:      log,
	}
}

// Build embeds every passage and replaces the index contents. On failure the
// index is left empty and unbuilt.
func (x *Index) Build(ctx context.Context, passages []models.Passage) error {
	x.Reset()

	entries := make([]models.IndexEntry, len(passages))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency())
	for i, p := range passages {
		g.Go(func() error {
			vec, err := x.Embedder.EmbedText(gctx, p.Content)
			if err != nil {
				return fmt.Errorf("failed to embed passage %d: %w", i, err)
			}
			entries[i] = models.IndexEntry{Passage: p, Vector: vec}

			mu.Lock()
			done++
			if x.Progress != nil {
				x.Progress(done, len(passages))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := 1; i < len(entries); i++ {
		if len(entries[i].Vector) != len(entries[0].Vector) {
			return fmt.Errorf("embedding dimension mismatch: passage %d has %d, passage 0 has %d",
				i, len(entries[i].Vector), len(entries[0].Vector))
		}
	}

	x.mu.Lock()
	x.entries = entries
	x.built = true
	x.mu.Unlock()

	x.Logger.InfoContext(ctx, "vector index built", "entries", len(entries))
	return nil
}

// Query embeds text and returns the k passages most similar to it, best
// first. Equal scores keep insertion order. k <= 0 yields no results.
func (x *Index) Query(ctx context.Context, text string, k int) ([]models.SearchResult, error) {
	x.mu.RLock()
	built := x.built
	entries := x.entries
	x.mu.RUnlock()

	if !built {
		return nil, models.ErrIndexNotBuilt
	}
	if k <= 0 || len(entries) == 0 {
		return []models.SearchResult{}, nil
	}

	query, err := x.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(query) != len(entries[0].Vector) {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(query), len(entries[0].Vector))
	}

	results := make([]models.SearchResult, len(entries))
	for i, e := range entries {
		results[i] = models.SearchResult{Passage: e.Passage, Score: Cosine(query, e.Vector)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results[:min(k, len(results))], nil
}

// Len returns the number of indexed passages
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Built reports whether the index can be queried
func (x *Index) Built() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.built
}

// Reset discards all entries
func (x *Index) Reset() {
	x.mu.Lock()
	x.entries = nil
	x.built = false
	x.mu.Unlock()
}

func (x *Index) concurrency() int {
	if x.Concurrency > 0 {
		return x.Concurrency
	}
	return DefaultConcurrency
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero vector
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
