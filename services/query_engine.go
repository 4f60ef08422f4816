package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/tokenizer"
	"docqa-platform/models"
	"docqa-platform/utils"
)

const (
	minQuestionRunes = 3
	maxQuestionRunes = 1000
)

// AskRequest is one question against the corpus.
type AskRequest struct {
	Question string `json:"question"`
	UploadID string `json:"upload_id,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
	Method   string `json:"method,omitempty"`
}

// QueryEngine answers questions: retrieve, assemble context under the token
// budget, generate, and bind citations. Every answered query is persisted.
type QueryEngine struct {
	store     MetadataStore
	retrieval *RetrievalService
	generator ai.Generator
	counter   tokenizer.Counter

	maxContextTokens int
	defaultTopK      int
	defaultMethod    string
	temperature      float64
}

// NewQueryEngine wires the answer pipeline.
func NewQueryEngine(store MetadataStore, retrieval *RetrievalService, generator ai.Generator,
	counter tokenizer.Counter, maxContextTokens, defaultTopK int, defaultMethod string, temperature float64) *QueryEngine {
	return &QueryEngine{
		store:            store,
		retrieval:        retrieval,
		generator:        generator,
		counter:          counter,
		maxContextTokens: maxContextTokens,
		defaultTopK:      defaultTopK,
		defaultMethod:    defaultMethod,
		temperature:      temperature,
	}
}

// Answer runs the full question pipeline and persists the result.
func (e *QueryEngine) Answer(ctx context.Context, req AskRequest) (*models.Query, error) {
	tracer := otel.Tracer("query-engine")
	ctx, span := tracer.Start(ctx, "query.answer")
	defer span.End()

	question := strings.TrimSpace(req.Question)
	switch n := utf8.RuneCountInString(question); {
	case n < minQuestionRunes:
		return nil, utils.NewDomainError(utils.CodeInvalidQuery,
			fmt.Sprintf("question must be at least %d characters", minQuestionRunes))
	case n > maxQuestionRunes:
		return nil, utils.NewDomainError(utils.CodeInvalidQuery,
			fmt.Sprintf("question must be at most %d characters", maxQuestionRunes))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}
	method := req.Method
	if method == "" {
		method = e.defaultMethod
	}
	switch method {
	case models.RetrievalSemantic, models.RetrievalKeyword, models.RetrievalHybrid:
	default:
		return nil, utils.NewDomainError(utils.CodeInvalidQuery, "method must be semantic, keyword or hybrid")
	}

	if req.UploadID != "" {
		if _, err := e.store.GetUpload(ctx, req.UploadID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, utils.NewDomainError(utils.CodeNotFound, "upload not found")
			}
			return nil, err
		}
	}

	started := time.Now()
	retrieved, err := e.retrieval.Retrieve(ctx, question, req.UploadID, method, topK)
	if err != nil {
		return nil, err
	}
	retrievalMs := time.Since(started).Milliseconds()
	span.SetAttributes(attribute.Int("query.retrieved", len(retrieved)))

	q := &models.Query{
		ID:           uuid.NewString(),
		QueryText:    question,
		UploadFilter: req.UploadID,
		RetrievalMs:  retrievalMs,
		RetrievalStats: models.RetrievalStats{
			TopK:            topK,
			ChunksRetrieved: len(retrieved),
			RetrievalMethod: method,
		},
		CreatedAt: time.Now().UTC(),
	}

	if len(retrieved) == 0 {
		q.AnswerText = FallbackAnswer
		q.Citations = []models.Citation{}
		q.UsedChunkIDs = []string{}
		q.LatencyMs = time.Since(started).Milliseconds()
		return e.persist(ctx, q)
	}

	contextText, used := BuildContext(retrieved, e.documentNames(ctx, retrieved), e.counter, e.maxContextTokens)
	if len(used) == 0 {
		q.AnswerText = FallbackAnswer
		q.Citations = []models.Citation{}
		q.UsedChunkIDs = []string{}
		q.LatencyMs = time.Since(started).Milliseconds()
		return e.persist(ctx, q)
	}

	genStart := time.Now()
	result, err := e.generator.Generate(ctx, BuildPrompt(contextText, question), ai.GenerateParams{
		Temperature:  e.temperature,
		SystemPrompt: answerSystemPrompt,
	})
	if err != nil {
		var pe *ai.ProviderError
		if errors.As(err, &pe) && pe.Transient() {
			return nil, utils.WrapDomainError(utils.CodeProviderUnavailable, "language model unavailable", err)
		}
		return nil, utils.WrapDomainError(utils.CodeGenerationFailed, "answer generation failed", err)
	}

	q.AnswerText = result.Text
	q.GenerationMs = time.Since(genStart).Milliseconds()
	q.Citations = ParseCitations(result.Text, used)
	if q.Citations == nil {
		q.Citations = []models.Citation{}
	}
	q.UsedChunkIDs = make([]string, len(used))
	for i, rc := range used {
		q.UsedChunkIDs[i] = rc.Chunk.ID
	}
	q.RetrievalStats.ChunksUsed = len(used)
	q.LatencyMs = time.Since(started).Milliseconds()

	slog.Info("query answered",
		"query_id", q.ID,
		"method", method,
		"retrieved", len(retrieved),
		"used", len(used),
		"citations", len(q.Citations),
		"latency_ms", q.LatencyMs)

	return e.persist(ctx, q)
}

func (e *QueryEngine) persist(ctx context.Context, q *models.Query) (*models.Query, error) {
	if err := e.store.SaveQuery(ctx, q); err != nil {
		// The caller still gets the answer when history writing fails.
		slog.Error("save query history", "query_id", q.ID, "error", err)
	}
	return q, nil
}

func (e *QueryEngine) documentNames(ctx context.Context, chunks []RetrievedChunk) map[string]string {
	names := map[string]string{}
	for _, rc := range chunks {
		id := rc.Chunk.DocumentID
		if id == "" {
			continue
		}
		if _, ok := names[id]; ok {
			continue
		}
		doc, err := e.store.GetDocument(ctx, id)
		if err != nil {
			names[id] = ""
			continue
		}
		names[id] = doc.Filename
	}
	return names
}
