package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	dim   int
	items map[string]memItem // keyed by ID
}

type memItem struct {
	namespace string
	vector    []float32
	metadata  map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]memItem{}}
}

func (s *MemoryStore) EnsureIndex(_ context.Context, dim int, metric Metric) error {
	if metric != MetricCosine {
		return fmt.Errorf("unsupported metric: %s", metric)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim != 0 && s.dim != dim {
		return &DimensionMismatchError{Actual: s.dim, Expected: dim}
	}
	s.dim = dim
	return nil
}

func (s *MemoryStore) Upsert(_ context.Context, namespace string, items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if s.dim != 0 && len(item.Vector) != s.dim {
			return &DimensionMismatchError{Actual: len(item.Vector), Expected: s.dim}
		}
		vec := make([]float32, len(item.Vector))
		copy(vec, item.Vector)
		meta := make(map[string]string, len(item.Metadata))
		for k, v := range item.Metadata {
			meta[k] = v
		}
		s.items[item.ID] = memItem{namespace: namespace, vector: vec, metadata: meta}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, namespace string, vec []float32, topK int, filter Filter) ([]Match, error) {
	if s.dim != 0 && len(vec) != s.dim {
		return nil, &DimensionMismatchError{Actual: len(vec), Expected: s.dim}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for id, item := range s.items {
		if namespace != "" && item.namespace != namespace {
			continue
		}
		if !matchesFilter(item.metadata, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       id,
			Score:    CosineSimilarity(vec, item.vector),
			Vector:   item.vector,
			Metadata: item.metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *MemoryStore) Fetch(_ context.Context, namespace string, ids []string) ([]Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Item
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		if namespace != "" && item.namespace != namespace {
			continue
		}
		out = append(out, Item{ID: id, Vector: item.vector, Metadata: item.metadata})
	}
	return out, nil
}

func (s *MemoryStore) DeleteByIDs(_ context.Context, namespace string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			continue
		}
		if namespace != "" && item.namespace != namespace {
			continue
		}
		delete(s.items, id)
	}
	return nil
}

func (s *MemoryStore) DeleteByFilter(_ context.Context, namespace string, filter Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if namespace != "" && item.namespace != namespace {
			continue
		}
		if matchesFilter(item.metadata, filter) {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if namespace == "" || item.namespace == namespace {
			delete(s.items, id)
		}
	}
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{Dimension: s.dim, Namespaces: map[string]int64{}}
	for _, item := range s.items {
		stats.Namespaces[item.namespace]++
		stats.TotalItems++
	}
	return stats, nil
}

func (s *MemoryStore) Close() error { return nil }

func matchesFilter(metadata map[string]string, filter Filter) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
