// Package services holds the ingestion, indexing and retrieval pipeline.
// Services depend on narrow interfaces so tests can swap in fakes.
package services

import (
	"context"
	"io"
	"time"

	"docqa-platform/models"
)

// MetadataStore is the persistence surface the pipeline needs. The MongoDB
// implementation lives in internal/store.
type MetadataStore interface {
	CreateUpload(ctx context.Context, upload *models.Upload) error
	GetUpload(ctx context.Context, id string) (*models.Upload, error)
	ListUploads(ctx context.Context, limit, offset int64) ([]models.Upload, error)
	UpdateUploadStatus(ctx context.Context, id, status string) error
	RecordDocumentOutcome(ctx context.Context, uploadID string, succeeded bool) (*models.Upload, error)

	CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, uploadID string, limit, offset int64) ([]models.Document, error)
	FindDocumentByHash(ctx context.Context, hash, uploadID string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status, errorMessage string) error
	ListPendingDocuments(ctx context.Context, age time.Duration) ([]models.Document, error)
	DeleteDocumentCascade(ctx context.Context, id string) (*models.Document, []string, error)
	DeleteUploadCascade(ctx context.Context, uploadID string) (*models.Upload, error)

	GetChunksByDocument(ctx context.Context, docID string) ([]models.Chunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]models.Chunk, error)
	ListChunksForCorpus(ctx context.Context, uploadID string) ([]models.Chunk, error)
	SetChunkEmbeddingKeys(ctx context.Context, pairs []models.ChunkKeyPair) error

	SaveQuery(ctx context.Context, q *models.Query) error
	GetQuery(ctx context.Context, id string) (*models.Query, error)
	ListQueries(ctx context.Context, limit, offset int64) ([]models.Query, error)
}

// TaskEnqueuer schedules background work. The asynq-backed implementation
// lives in internal/queue.
type TaskEnqueuer interface {
	EnqueueIndexDocument(ctx context.Context, documentID, uploadID string, force bool) error
	EnqueueDeleteVectors(ctx context.Context, namespace string, vectorIDs []string) error
}

// IncomingFile is one file of an upload batch. Open may be called more than
// once; each call returns a fresh reader positioned at the start.
type IncomingFile struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}
