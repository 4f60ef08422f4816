package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"docqa-platform/internal/config"
	"docqa-platform/internal/tokenizer"
)

// Known OpenAI embedding dimensions.
var openaiEmbedDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder embeds text with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dim         int
	counter     tokenizer.Counter
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	retryMax    int
	retryDelay  time.Duration
	timeout     time.Duration
}

// NewOpenAIEmbedder creates an OpenAIEmbedder from configuration.
func NewOpenAIEmbedder(cfg *config.Config) (*OpenAIEmbedder, error) {
	dim, ok := openaiEmbedDims[cfg.OpenAIEmbedModel]
	if !ok {
		return nil, fmt.Errorf("unknown openai embedding model: %s", cfg.OpenAIEmbedModel)
	}
	counter, err := tokenizer.Get(cfg.TokenizerName)
	if err != nil {
		return nil, err
	}

	return &OpenAIEmbedder{
		client:      openai.NewClient(cfg.OpenAIAPIKey),
		model:       cfg.OpenAIEmbedModel,
		dim:         dim,
		counter:     counter,
		breaker:     newBreaker("OpenAIEmbed"),
		rateLimiter: rate.NewLimiter(rate.Limit(20), 20),
		retryMax:    cfg.EmbedRetryMax,
		retryDelay:  time.Duration(cfg.EmbedRetryDelayMs) * time.Millisecond,
		timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int      { return e.dim }
func (e *OpenAIEmbedder) ModelName() string   { return e.model }
func (e *OpenAIEmbedder) MaxInputTokens() int { return 8191 }

// Embed embeds documents. OpenAI has no task-type distinction, so documents
// and queries issue the same call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	tracer := otel.Tracer("openai-embedder")
	ctx, span := tracer.Start(ctx, "openai.embed")
	defer span.End()

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = e.counter.Truncate(t, e.MaxInputTokens())
	}
	span.SetAttributes(
		attribute.Int("embed.inputs", len(texts)),
		attribute.String("embed.model", e.model),
	)

	var vectors [][]float32
	tokenTotal := 0
	err := withRetry(ctx, "embed", e.retryMax, e.retryDelay, func() error {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		_, err := e.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
				Input: truncated,
				Model: openai.EmbeddingModel(e.model),
			})
			if err != nil {
				return nil, err
			}
			if len(resp.Data) != len(truncated) {
				return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Data), len(truncated))
			}
			vectors = make([][]float32, len(resp.Data))
			for _, d := range resp.Data {
				vectors[d.Index] = d.Embedding
			}
			tokenTotal = resp.Usage.PromptTokens
			return nil, nil
		})
		return err
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("embed.error", true))
		return nil, err
	}

	span.SetAttributes(attribute.Int("embed.tokens", tokenTotal))
	return &EmbedResult{Vectors: vectors, Model: e.model, TokenTotal: tokenTotal}, nil
}

// EmbedQuery embeds a single query string.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Vectors[0], nil
}

// OpenAIGenerator generates answers with the OpenAI chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	retryMax    int
	retryDelay  time.Duration
	timeout     time.Duration
}

// NewOpenAIGenerator creates an OpenAIGenerator from configuration.
func NewOpenAIGenerator(cfg *config.Config) (*OpenAIGenerator, error) {
	return &OpenAIGenerator{
		client:      openai.NewClient(cfg.OpenAIAPIKey),
		model:       cfg.OpenAIGenModel,
		breaker:     newBreaker("OpenAIGenerate"),
		rateLimiter: rate.NewLimiter(rate.Limit(20), 20),
		retryMax:    cfg.EmbedRetryMax,
		retryDelay:  time.Duration(cfg.EmbedRetryDelayMs) * time.Millisecond,
		timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}, nil
}

func (g *OpenAIGenerator) ModelName() string { return g.model }

// Generate produces text for the prompt under the given parameters.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (*GenerateResult, error) {
	tracer := otel.Tracer("openai-generator")
	ctx, span := tracer.Start(ctx, "openai.generate")
	defer span.End()
	span.SetAttributes(attribute.String("gen.model", g.model))

	messages := []openai.ChatCompletionMessage{}
	if params.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: params.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	var result *GenerateResult
	err := withRetry(ctx, "generate", g.retryMax, g.retryDelay, func() error {
		if err := g.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		_, err := g.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			req := openai.ChatCompletionRequest{
				Model:       g.model,
				Messages:    messages,
				Temperature: float32(params.Temperature),
			}
			if params.MaxOutputTokens > 0 {
				req.MaxTokens = params.MaxOutputTokens
			}

			resp, err := g.client.CreateChatCompletion(callCtx, req)
			if err != nil {
				return nil, err
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return nil, fmt.Errorf("empty generation response")
			}

			result = &GenerateResult{
				Text:         resp.Choices[0].Message.Content,
				PromptTokens: resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gen.error", true))
		return nil, err
	}

	span.SetAttributes(attribute.Int("gen.output_tokens", result.OutputTokens))
	return result, nil
}
