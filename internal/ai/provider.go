// Package ai holds the embedding and generation provider implementations.
// Providers are selected once at startup via NewEmbedder/NewGenerator and
// passed explicitly to the components that need them.
package ai

import (
	"context"
	"fmt"

	"docqa-platform/internal/config"
)

// EmbedResult is the concrete record every embedder returns. The indexer
// depends on Model and TokenTotal, not just the vectors.
type EmbedResult struct {
	Vectors    [][]float32
	Model      string
	TokenTotal int
}

// Embedder turns texts into fixed-dimension vectors, batched and retrying.
type Embedder interface {
	// Embed returns one vector per input, in input order. Inputs longer than
	// MaxInputTokens are truncated right-side on a token boundary.
	Embed(ctx context.Context, texts []string) (*EmbedResult, error)
	// EmbedQuery embeds a search query. Providers that distinguish task
	// types use the query task type here.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
	MaxInputTokens() int
}

// GenerateParams controls one generation call.
type GenerateParams struct {
	Temperature     float64
	MaxOutputTokens int
	SystemPrompt    string
}

// GenerateResult is the concrete record every generator returns.
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
}

// Generator produces text from a prompt, with retries.
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerateParams) (*GenerateResult, error)
	ModelName() string
}

// NewEmbedder builds the embedder selected by configuration.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderGemini:
		return NewGeminiEmbedder(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}
}

// NewGenerator builds the LLM provider selected by configuration.
func NewGenerator(cfg *config.Config) (Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiGenerator(cfg)
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
}
