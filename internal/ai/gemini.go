package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"docqa-platform/internal/config"
	"docqa-platform/internal/tokenizer"
)

const geminiEmbedDim = 768

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// GeminiEmbedder embeds text with Google text-embedding-004 (dim 768).
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	counter     tokenizer.Counter
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	retryMax    int
	retryDelay  time.Duration
	timeout     time.Duration
}

// NewGeminiEmbedder creates a GeminiEmbedder from configuration.
func NewGeminiEmbedder(cfg *config.Config) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	counter, err := tokenizer.Get(cfg.TokenizerName)
	if err != nil {
		return nil, err
	}

	return &GeminiEmbedder{
		client:      client,
		model:       cfg.GeminiEmbedModel,
		counter:     counter,
		breaker:     newBreaker("GeminiEmbed"),
		rateLimiter: rate.NewLimiter(rate.Limit(10), 10),
		retryMax:    cfg.EmbedRetryMax,
		retryDelay:  time.Duration(cfg.EmbedRetryDelayMs) * time.Millisecond,
		timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}, nil
}

func (e *GeminiEmbedder) Dimension() int      { return geminiEmbedDim }
func (e *GeminiEmbedder) ModelName() string   { return e.model }
func (e *GeminiEmbedder) MaxInputTokens() int { return 2048 }

// Embed embeds documents with the retrieval_document task type.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	return e.embed(ctx, texts, genai.TaskTypeRetrievalDocument)
}

// EmbedQuery embeds a query with the retrieval_query task type.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := e.embed(ctx, []string{text}, genai.TaskTypeRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return res.Vectors[0], nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, task genai.TaskType) (*EmbedResult, error) {
	tracer := otel.Tracer("gemini-embedder")
	ctx, span := tracer.Start(ctx, "gemini.embed")
	defer span.End()

	tokenTotal := 0
	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = e.counter.Truncate(t, e.MaxInputTokens())
		tokenTotal += e.counter.Count(truncated[i])
	}
	span.SetAttributes(
		attribute.Int("embed.inputs", len(texts)),
		attribute.Int("embed.tokens", tokenTotal),
		attribute.String("embed.model", e.model),
	)

	var vectors [][]float32
	err := withRetry(ctx, "embed", e.retryMax, e.retryDelay, func() error {
		if err := e.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		_, err := e.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			em := e.client.EmbeddingModel(e.model)
			em.TaskType = task
			batch := em.NewBatch()
			for _, t := range truncated {
				batch.AddContent(genai.Text(t))
			}
			resp, err := em.BatchEmbedContents(callCtx, batch)
			if err != nil {
				return nil, err
			}
			if len(resp.Embeddings) != len(truncated) {
				return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(resp.Embeddings), len(truncated))
			}
			vectors = make([][]float32, len(resp.Embeddings))
			for i, emb := range resp.Embeddings {
				vectors[i] = emb.Values
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("embed.error", true))
		return nil, err
	}

	return &EmbedResult{Vectors: vectors, Model: e.model, TokenTotal: tokenTotal}, nil
}

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error { return e.client.Close() }

// GeminiGenerator generates answers with a Gemini chat model.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	retryMax    int
	retryDelay  time.Duration
	timeout     time.Duration
}

// NewGeminiGenerator creates a GeminiGenerator from configuration.
func NewGeminiGenerator(cfg *config.Config) (*GeminiGenerator, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiGenerator{
		client:      client,
		model:       cfg.GeminiGenModel,
		breaker:     newBreaker("GeminiGenerate"),
		rateLimiter: rate.NewLimiter(rate.Limit(10), 10),
		retryMax:    cfg.EmbedRetryMax,
		retryDelay:  time.Duration(cfg.EmbedRetryDelayMs) * time.Millisecond,
		timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}, nil
}

func (g *GeminiGenerator) ModelName() string { return g.model }

// Generate produces text for the prompt under the given parameters.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, params GenerateParams) (*GenerateResult, error) {
	tracer := otel.Tracer("gemini-generator")
	ctx, span := tracer.Start(ctx, "gemini.generate")
	defer span.End()
	span.SetAttributes(attribute.String("gen.model", g.model))

	var result *GenerateResult
	err := withRetry(ctx, "generate", g.retryMax, g.retryDelay, func() error {
		if err := g.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		_, err := g.breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			model := g.client.GenerativeModel(g.model)
			model.SetTemperature(float32(params.Temperature))
			if params.MaxOutputTokens > 0 {
				model.SetMaxOutputTokens(int32(params.MaxOutputTokens))
			}
			if params.SystemPrompt != "" {
				model.SystemInstruction = &genai.Content{
					Parts: []genai.Part{genai.Text(params.SystemPrompt)},
				}
			}

			resp, err := model.GenerateContent(callCtx, genai.Text(prompt))
			if err != nil {
				return nil, err
			}
			text := flattenCandidates(resp)
			if text == "" {
				return nil, fmt.Errorf("empty generation response")
			}

			result = &GenerateResult{Text: text}
			if resp.UsageMetadata != nil {
				result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
				result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
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

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error { return g.client.Close() }

func flattenCandidates(resp *genai.GenerateContentResponse) string {
	out := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				out += string(text)
			}
		}
	}
	return out
}
