package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderConfig is what the factory needs to build clients; it mirrors the
// [llm] section of the service config without importing it.
type ProviderConfig struct {
	Provider       string
	Model          string
	EmbeddingModel string
	APIKey         string
	BaseURL        string
}

// NewClient builds the completion and embedding clients for the configured
// provider. Providers without embedding support return a nil EmbedderClient;
// callers treat missing embeddings as a degraded mode, not an error.
func NewClient(ctx context.Context, cfg ProviderConfig) (LLMClient, EmbedderClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.BaseURL)
		return c, c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil

	case "claude":
		c := NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
		return c, nil, nil

	case "ollama":
		// Ollama speaks the OpenAI-compatible API; the key is ignored but
		// the client config requires one.
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		c := NewOpenAIClient(apiKey, cfg.Model, cfg.EmbeddingModel, baseURL)
		return c, c, nil

	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
