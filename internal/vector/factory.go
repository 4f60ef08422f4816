package vector

import (
	"context"
	"fmt"

	"docqa-platform/internal/config"
)

// NewStore builds the vector store selected by configuration and ensures the
// index exists at the given dimension.
func NewStore(ctx context.Context, cfg *config.Config, dim int) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.VectorStore {
	case config.VectorStorePgvector:
		s, err = NewPgStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
	case config.VectorStoreMemory:
		s = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore)
	}

	if err := s.EnsureIndex(ctx, dim, Metric(cfg.VectorMetric)); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
