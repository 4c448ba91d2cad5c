// Package embedder adapts a Genkit ai.Embedder to the embedding port
// shared by ingestion and search, adding client-side rate limiting so
// bulk ingestion cannot exhaust the provider quota.
package embedder

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/arkivo/arkivo/internal/embedding"
	"github.com/arkivo/arkivo/internal/errs"
)

// Client wraps a model-bound ai.Embedder. It is safe for concurrent
// use; the limiter serializes bursts across goroutines.
type Client struct {
	embedder  ai.Embedder
	limiter   *rate.Limiter
	dimension int
}

// New creates a Client. requestsPerSecond bounds the provider call
// rate; dimension, when positive, truncates returned vectors to that
// many components and renormalizes (gemini-embedding-001 supports this
// via Matryoshka Representation Learning).
func New(e ai.Embedder, requestsPerSecond, dimension int) *Client {
	if requestsPerSecond < 1 {
		requestsPerSecond = 1
	}
	return &Client{
		embedder:  e,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		dimension: dimension,
	}
}

// GenerateEmbedding implements the ingestion and search embedder
// ports. The model argument is informational; the wrapped embedder is
// already bound to a model at construction time.
func (c *Client) GenerateEmbedding(ctx context.Context, text, _ string) (embedding.Vector, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return embedding.Vector{}, fmt.Errorf("waiting for embedding rate limit: %w", err)
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return embedding.Vector{}, errs.External("generating embedding", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return embedding.Vector{}, errs.External("embedding provider returned no embedding", nil)
	}

	components := resp.Embeddings[0].Embedding
	if c.dimension > 0 && len(components) > c.dimension {
		components = components[:c.dimension]
	}

	vec, err := embedding.New(components)
	if err != nil {
		return embedding.Vector{}, fmt.Errorf("provider returned invalid embedding: %w", err)
	}
	if c.dimension > 0 && vec.Dimension() == c.dimension {
		// Truncated Matryoshka vectors must be renormalized to keep
		// cosine scores comparable.
		vec = vec.Normalize()
	}
	return vec, nil
}
