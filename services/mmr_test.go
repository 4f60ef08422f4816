package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-platform/models"
)

func candidate(id string, score float64, vec []float32) RetrievedChunk {
	return RetrievedChunk{Chunk: models.Chunk{ID: id}, Score: score, Vector: vec}
}

func TestMMRSelectsMostRelevantFirst(t *testing.T) {
	query := []float32{1, 0}
	cands := []RetrievedChunk{
		candidate("a", 1.0, []float32{1, 0}),
		candidate("b", 0.8, []float32{0, 1}),
	}
	got := mmrSelect(query, cands, 0.5, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Chunk.ID)
}

func TestMMRRelevanceIsQueryCosine(t *testing.T) {
	// The fused score ranks a first, but b sits on the query vector. With
	// pure relevance the cosine term must win.
	query := []float32{1, 0}
	cands := []RetrievedChunk{
		candidate("a", 1.0, []float32{0, 1}),
		candidate("b", 0.5, []float32{1, 0}),
	}
	got := mmrSelect(query, cands, 1.0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Chunk.ID)
}

func TestMMRPenalizesNearDuplicates(t *testing.T) {
	// b duplicates a; c is less relevant but points elsewhere.
	query := []float32{1, 0, 0}
	cands := []RetrievedChunk{
		candidate("a", 1.0, []float32{0.96, 0.28, 0}),
		candidate("b", 0.95, []float32{0.96, 0.28, 0}),
		candidate("c", 0.6, []float32{0.6, 0, 0.8}),
	}
	got := mmrSelect(query, cands, 0.5, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Chunk.ID)
	assert.Equal(t, "c", got[1].Chunk.ID)
}

func TestMMRLambdaOnePureRelevance(t *testing.T) {
	query := []float32{1, 0}
	cands := []RetrievedChunk{
		candidate("a", 1.0, []float32{1, 0}),
		candidate("b", 0.95, []float32{0.96, 0.28}),
		candidate("c", 0.6, []float32{0, 1}),
	}
	got := mmrSelect(query, cands, 1.0, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{
		got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID,
	})
}

func TestMMRMissingVectorsTreatedAsDiverse(t *testing.T) {
	// b has no stored vector: its normalized fused score stands in for
	// relevance and it contributes no redundancy.
	query := []float32{1, 0}
	cands := []RetrievedChunk{
		candidate("a", 1.0, []float32{1, 0}),
		candidate("b", 0.9, nil),
	}
	got := mmrSelect(query, cands, 0.5, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].Chunk.ID)
}

func TestMMRNoQueryVectorFallsBackToScores(t *testing.T) {
	// Keyword-only retrieval carries no query embedding; ordering follows
	// the fused scores.
	cands := []RetrievedChunk{
		candidate("a", 0.4, []float32{1, 0}),
		candidate("b", 1.0, []float32{0, 1}),
	}
	got := mmrSelect(nil, cands, 1.0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Chunk.ID)
}

func TestMMRBounds(t *testing.T) {
	assert.Nil(t, mmrSelect(nil, nil, 0.5, 3))
	assert.Nil(t, mmrSelect(nil, []RetrievedChunk{candidate("a", 1, nil)}, 0.5, 0))

	got := mmrSelect(nil, []RetrievedChunk{candidate("a", 1, nil)}, 0.5, 10)
	assert.Len(t, got, 1)
}
