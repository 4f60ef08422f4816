// Package vector abstracts the vector index used for semantic retrieval.
// Two implementations exist: a pgvector-backed store for production and an
// in-memory store for tests and local development.
package vector

import (
	"context"
	"fmt"
)

// Metric names a similarity metric supported by the store.
type Metric string

const (
	MetricCosine Metric = "cosine"
)

// Item is one vector plus its payload, addressed by a caller-chosen ID.
type Item struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Match is one query result. Score is similarity in [0, 1] for cosine.
// Vector is returned so callers can re-rank without a second fetch.
type Match struct {
	ID       string
	Score    float64
	Vector   []float32
	Metadata map[string]string
}

// Filter restricts a query or delete to items whose metadata contains every
// listed key/value pair. A nil or empty filter matches everything.
type Filter map[string]string

// Stats describes the current state of the index.
type Stats struct {
	Dimension  int
	TotalItems int64
	Namespaces map[string]int64
}

// DimensionMismatchError reports a vector whose length does not match the
// index dimension.
type DimensionMismatchError struct {
	Actual   int
	Expected int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension %d does not match index dimension %d", e.Actual, e.Expected)
}

// Store is the vector index. All operations take a namespace; the empty
// namespace means the whole index.
type Store interface {
	// EnsureIndex creates the index if absent and verifies the dimension if
	// present. A dimension conflict returns DimensionMismatchError.
	EnsureIndex(ctx context.Context, dim int, metric Metric) error

	// Upsert inserts or replaces items by ID. All vectors must match the
	// index dimension.
	Upsert(ctx context.Context, namespace string, items []Item) error

	// Query returns up to topK nearest items by the index metric, best first.
	Query(ctx context.Context, namespace string, vec []float32, topK int, filter Filter) ([]Match, error)

	// Fetch returns the stored items for the given IDs, skipping unknown IDs.
	Fetch(ctx context.Context, namespace string, ids []string) ([]Item, error)

	DeleteByIDs(ctx context.Context, namespace string, ids []string) error
	DeleteByFilter(ctx context.Context, namespace string, filter Filter) error
	DeleteNamespace(ctx context.Context, namespace string) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
