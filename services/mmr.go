package services

import (
	"docqa-platform/internal/vector"
)

// mmrSelect reorders candidates by maximal marginal relevance: each pick
// balances relevance to the query against similarity to what was already
// picked. lambda 1.0 is pure relevance, 0.0 pure diversity. Relevance is
// cosine similarity between the query vector and the candidate vector;
// without a query embedding (keyword-only retrieval) or a candidate vector,
// the fused retrieval score normalized to [0, 1] stands in.
func mmrSelect(queryVec []float32, candidates []RetrievedChunk, lambda float64, k int) []RetrievedChunk {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	maxScore := 0.0
	for _, c := range candidates {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	rel := make([]float64, len(candidates))
	for i, c := range candidates {
		switch {
		case len(queryVec) > 0 && len(c.Vector) > 0:
			rel[i] = vector.CosineSimilarity(queryVec, c.Vector)
		case maxScore > 0:
			rel[i] = c.Score / maxScore
		}
	}

	selected := make([]RetrievedChunk, 0, k)
	picked := make([]bool, len(candidates))

	for len(selected) < k {
		bestIdx := -1
		bestVal := 0.0
		for i := range candidates {
			if picked[i] {
				continue
			}
			redundancy := 0.0
			for _, s := range selected {
				sim := vector.CosineSimilarity(candidates[i].Vector, s.Vector)
				if sim > redundancy {
					redundancy = sim
				}
			}
			val := lambda*rel[i] - (1-lambda)*redundancy
			if bestIdx == -1 || val > bestVal {
				bestIdx = i
				bestVal = val
			}
		}
		if bestIdx == -1 {
			break
		}
		picked[bestIdx] = true
		selected = append(selected, candidates[bestIdx])
	}
	return selected
}
