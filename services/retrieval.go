package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/vector"
	"docqa-platform/models"
	"docqa-platform/utils"
)

// RetrievedChunk is one retrieval candidate with its fused score and, when
// available, its embedding for diversity re-ranking.
type RetrievedChunk struct {
	Chunk  models.Chunk
	Score  float64
	Vector []float32
}

// RetrievalService finds the chunks most relevant to a query. Hybrid mode
// runs semantic and keyword search in parallel and fuses the rankings with
// reciprocal rank fusion, then diversifies with MMR.
type RetrievalService struct {
	store    MetadataStore
	embedder ai.Embedder
	vectors  vector.Store
	keyword  *KeywordIndex

	rrfK      int
	mmrLambda float64
}

// NewRetrievalService wires the retrieval pipeline.
func NewRetrievalService(store MetadataStore, embedder ai.Embedder, vectors vector.Store,
	keyword *KeywordIndex, rrfK int, mmrLambda float64) *RetrievalService {
	return &RetrievalService{
		store:     store,
		embedder:  embedder,
		vectors:   vectors,
		keyword:   keyword,
		rrfK:      rrfK,
		mmrLambda: mmrLambda,
	}
}

// Retrieve returns up to topK chunks for the query, ordered by MMR.
// uploadID scopes the search to one upload; empty searches everything.
func (s *RetrievalService) Retrieve(ctx context.Context, query, uploadID, method string, topK int) ([]RetrievedChunk, error) {
	tracer := otel.Tracer("retrieval")
	ctx, span := tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.method", method),
		attribute.Int("retrieval.top_k", topK),
	)

	// Fetch a wider candidate pool so fusion and MMR have room to work.
	poolSize := topK * 2

	var queryVec []float32
	if method == models.RetrievalSemantic || method == models.RetrievalHybrid {
		var err error
		queryVec, err = s.embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, utils.WrapDomainError(utils.CodeEmbeddingFailed, "embed query", err)
		}
	}

	var (
		semantic []RetrievedChunk
		keyword  []KeywordHit
	)
	g, gctx := errgroup.WithContext(ctx)
	if queryVec != nil {
		g.Go(func() error {
			var err error
			semantic, err = s.semanticSearch(gctx, queryVec, uploadID, poolSize)
			return err
		})
	}
	if method == models.RetrievalKeyword || method == models.RetrievalHybrid {
		g.Go(func() error {
			var err error
			keyword, err = s.keyword.Search(gctx, query, uploadID, poolSize)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates, err := s.fuse(ctx, semantic, keyword)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.candidates", len(candidates)))

	return mmrSelect(queryVec, candidates, s.mmrLambda, topK), nil
}

func (s *RetrievalService) semanticSearch(ctx context.Context, queryVec []float32, uploadID string, topK int) ([]RetrievedChunk, error) {
	start := time.Now()

	namespace := ""
	if uploadID != "" {
		namespace = "upload:" + uploadID
	}
	matches, err := s.vectors.Query(ctx, namespace, queryVec, topK, nil)
	if err != nil {
		return nil, utils.WrapDomainError(utils.CodeVectorStoreFailed, "query vectors", err)
	}

	chunkIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if id := m.Metadata["chunk_id"]; id != "" {
			chunkIDs = append(chunkIDs, id)
		}
	}
	chunks, err := s.store.GetChunksByIDs(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	out := make([]RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		ch, ok := byID[m.Metadata["chunk_id"]]
		if !ok {
			// Vector outlived its chunk record; deletion cleanup is async.
			continue
		}
		out = append(out, RetrievedChunk{Chunk: ch, Score: m.Score, Vector: m.Vector})
	}

	slog.Debug("semantic search",
		"matches", len(out),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// fuse merges the two rankings with reciprocal rank fusion and attaches
// vectors to keyword-only candidates so MMR can compare them.
func (s *RetrievalService) fuse(ctx context.Context, semantic []RetrievedChunk, keyword []KeywordHit) ([]RetrievedChunk, error) {
	const unranked = math.MaxInt
	type entry struct {
		chunk   models.Chunk
		vec     []float32
		score   float64
		semRank int
		kwRank  int
	}
	entries := map[string]*entry{}

	rrf := func(rank int) float64 {
		return 1.0 / float64(s.rrfK+rank+1)
	}

	for rank, rc := range semantic {
		entries[rc.Chunk.ID] = &entry{
			chunk:   rc.Chunk,
			vec:     rc.Vector,
			score:   rrf(rank),
			semRank: rank,
			kwRank:  unranked,
		}
	}
	for rank, hit := range keyword {
		if e, ok := entries[hit.ChunkID]; ok {
			e.score += rrf(rank)
			e.kwRank = rank
			continue
		}
		entries[hit.ChunkID] = &entry{
			chunk: models.Chunk{
				ID:         hit.ChunkID,
				DocumentID: hit.DocumentID,
				Content:    hit.Content,
				PageNumber: hit.PageNumber,
			},
			score:   rrf(rank),
			semRank: unranked,
			kwRank:  rank,
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	// Keyword-only candidates still need their stored vectors for MMR.
	var missing []string
	for id, e := range entries {
		if e.vec == nil {
			missing = append(missing, "chunk:"+id)
		}
	}
	if len(missing) > 0 {
		items, err := s.vectors.Fetch(ctx, "", missing)
		if err != nil {
			return nil, fmt.Errorf("fetch candidate vectors: %w", err)
		}
		for _, item := range items {
			if e, ok := entries[item.Metadata["chunk_id"]]; ok {
				e.vec = item.Vector
			}
		}
	}

	ordered := make([]*entry, 0, len(entries))
	for _, e := range entries {
		ordered = append(ordered, e)
	}
	// Equal fused scores fall back to the better semantic rank, then the
	// better keyword rank.
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.semRank != b.semRank {
			return a.semRank < b.semRank
		}
		return a.kwRank < b.kwRank
	})

	out := make([]RetrievedChunk, len(ordered))
	for i, e := range ordered {
		out[i] = RetrievedChunk{Chunk: e.chunk, Score: e.score, Vector: e.vec}
	}
	return out, nil
}
