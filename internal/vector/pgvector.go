package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const vectorTable = "doc_vectors"

// PgStore is a pgvector-backed Store. Items live in a single table keyed by
// ID with a namespace column and jsonb metadata.
type PgStore struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPgStore connects to Postgres and returns a PgStore. The index is not
// created until EnsureIndex runs.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

// EnsureIndex creates the extension, table and ANN index, then verifies the
// column dimension against dim.
func (s *PgStore) EnsureIndex(ctx context.Context, dim int, metric Metric) error {
	if metric != MetricCosine {
		return fmt.Errorf("unsupported metric: %s", metric)
	}

	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			namespace TEXT NOT NULL DEFAULT '',
			embedding VECTOR(%d) NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vectorTable, dim)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}

	// The table may predate this process with a different dimension.
	var actual int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`, vectorTable).Scan(&actual)
	if err != nil {
		return fmt.Errorf("read vector column dimension: %w", err)
	}
	if actual != dim {
		return &DimensionMismatchError{Actual: actual, Expected: dim}
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING hnsw (embedding vector_cosine_ops)`, vectorTable, vectorTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_namespace_idx ON %s (namespace)`, vectorTable, vectorTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_metadata_idx ON %s USING gin (metadata)`, vectorTable, vectorTable),
	}
	for _, stmt := range indexes {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	s.dim = dim
	slog.Info("vector index ready", "table", vectorTable, "dimension", dim)
	return nil
}

// Upsert writes items in one batch round trip.
func (s *PgStore) Upsert(ctx context.Context, namespace string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		if s.dim > 0 && len(item.Vector) != s.dim {
			return &DimensionMismatchError{Actual: len(item.Vector), Expected: s.dim}
		}
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", item.ID, err)
		}
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, namespace, embedding, metadata, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE SET
				namespace = EXCLUDED.namespace,
				embedding = EXCLUDED.embedding,
				metadata = EXCLUDED.metadata,
				updated_at = now()`, vectorTable),
			item.ID, namespace, pgvector.NewVector(item.Vector), meta)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
	}
	return nil
}

// Query runs cosine nearest-neighbour search. Score is 1 - distance.
func (s *PgStore) Query(ctx context.Context, namespace string, vec []float32, topK int, filter Filter) ([]Match, error) {
	if s.dim > 0 && len(vec) != s.dim {
		return nil, &DimensionMismatchError{Actual: len(vec), Expected: s.dim}
	}

	sql := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score, embedding, metadata
		FROM %s WHERE 1=1`, vectorTable)
	args := []interface{}{pgvector.NewVector(vec)}

	if namespace != "" {
		args = append(args, namespace)
		sql += fmt.Sprintf(" AND namespace = $%d", len(args))
	}
	if len(filter) > 0 {
		cond, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		args = append(args, cond)
		sql += fmt.Sprintf(" AND metadata @> $%d", len(args))
	}
	args = append(args, topK)
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.Score, &emb, &meta); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Vector = emb.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", m.ID, err)
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Fetch returns stored items by ID, skipping unknown IDs.
func (s *PgStore) Fetch(ctx context.Context, namespace string, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`SELECT id, embedding, metadata FROM %s WHERE id = ANY($1)`, vectorTable)
	args := []interface{}{ids}
	if namespace != "" {
		args = append(args, namespace)
		sql += " AND namespace = $2"
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch vectors: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			item Item
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&item.ID, &emb, &meta); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Vector = emb.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PgStore) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, vectorTable)
	args := []interface{}{ids}
	if namespace != "" {
		args = append(args, namespace)
		sql += " AND namespace = $2"
	}
	_, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete vectors by id: %w", err)
	}
	return nil
}

func (s *PgStore) DeleteByFilter(ctx context.Context, namespace string, filter Filter) error {
	cond, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}
	sql := fmt.Sprintf(`DELETE FROM %s WHERE metadata @> $1`, vectorTable)
	args := []interface{}{cond}
	if namespace != "" {
		args = append(args, namespace)
		sql += " AND namespace = $2"
	}
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete vectors by filter: %w", err)
	}
	return nil
}

func (s *PgStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if namespace == "" {
		_, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE %s`, vectorTable))
		if err != nil {
			return fmt.Errorf("truncate vectors: %w", err)
		}
		return nil
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1`, vectorTable), namespace)
	if err != nil {
		return fmt.Errorf("delete namespace %s: %w", namespace, err)
	}
	return nil
}

// Stats counts items overall and per namespace.
func (s *PgStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Dimension: s.dim, Namespaces: map[string]int64{}}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT namespace, count(*) FROM %s GROUP BY namespace`, vectorTable))
	if err != nil {
		return nil, fmt.Errorf("vector stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ns    string
			count int64
		)
		if err := rows.Scan(&ns, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.Namespaces[ns] = count
		stats.TotalItems += count
	}
	return stats, rows.Err()
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
