package llm

import (
	"context"
)

// LLMClient produces text completions for extraction and classification
// prompts.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedderClient turns text into a fixed-length semantic vector.
type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RerankerClient reorders candidate documents by relevance to a query,
// returning indices into the input slice, most relevant first.
type RerankerClient interface {
	Rank(ctx context.Context, query string, documents []string) ([]int, error)
}
