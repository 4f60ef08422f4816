package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/vector"
	"docqa-platform/models"
)

// IndexReport summarizes one indexing run over a document's chunks.
type IndexReport struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// IndexingStatus reports how much of a document's chunk set carries an
// acknowledged embedding.
type IndexingStatus struct {
	TotalChunks   int     `json:"total_chunks"`
	IndexedChunks int     `json:"indexed_chunks"`
	PendingChunks int     `json:"pending_chunks"`
	Percent       float64 `json:"percent"`
}

// IndexerService embeds chunk text and writes vectors. It runs inside the
// background worker; documents index one at a time per task with a bounded
// number of tasks in flight.
type IndexerService struct {
	store    MetadataStore
	embedder ai.Embedder
	vectors  vector.Store

	embedBatchSize  int
	upsertBatchSize int

	gate chan struct{}

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewIndexerService wires the indexer. concurrency bounds simultaneous
// document indexing runs.
func NewIndexerService(store MetadataStore, embedder ai.Embedder, vectors vector.Store,
	concurrency, embedBatchSize, upsertBatchSize int) *IndexerService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &IndexerService{
		store:           store,
		embedder:        embedder,
		vectors:         vectors,
		embedBatchSize:  embedBatchSize,
		upsertBatchSize: upsertBatchSize,
		gate:            make(chan struct{}, concurrency),
		inflight:        make(map[string]chan struct{}),
	}
}

// Wait blocks until no indexing run is active for the document. Delete
// paths call this so vector cleanup cannot race a concurrent upsert.
func (s *IndexerService) Wait(documentID string) {
	s.mu.Lock()
	ch := s.inflight[documentID]
	s.mu.Unlock()
	if ch != nil {
		<-ch
	}
}

func (s *IndexerService) begin(documentID string) func() {
	ch := make(chan struct{})
	s.mu.Lock()
	s.inflight[documentID] = ch
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.inflight, documentID)
		s.mu.Unlock()
		close(ch)
	}
}

// IndexDocument embeds the document's unindexed chunks and upserts the
// vectors under the upload's namespace. force re-embeds every chunk. Vector
// IDs are deterministic, so re-running the same document is idempotent.
//
// A batch that fails embedding or upserting counts its chunks as failed and
// later batches still run. A returned error means infrastructure trouble
// (metadata store, cancellation) and the task should be retried.
func (s *IndexerService) IndexDocument(ctx context.Context, documentID, uploadID string, force bool) (*IndexReport, error) {
	select {
	case s.gate <- struct{}{}:
		defer func() { <-s.gate }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer s.begin(documentID)()

	tracer := otel.Tracer("indexer")
	ctx, span := tracer.Start(ctx, "indexer.index_document")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID), attribute.Bool("force", force))

	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, models.ErrNotFound) {
		slog.Warn("index task for missing document", "document_id", documentID)
		return &IndexReport{}, nil
	}
	if err != nil {
		return nil, err
	}

	chunks, err := s.store.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &IndexReport{}, nil
	}

	var targets []models.Chunk
	report := &IndexReport{}
	for _, ch := range chunks {
		if force || ch.EmbeddingKey == "" {
			targets = append(targets, ch)
		} else {
			report.Skipped++
		}
	}

	entryTerminal := doc.Status == models.DocStatusCompleted || doc.Status == models.DocStatusFailed
	if len(targets) == 0 {
		if !entryTerminal {
			s.finalize(ctx, documentID, uploadID, true, "", true)
		}
		return report, nil
	}

	if err := s.store.UpdateDocumentStatus(ctx, documentID, models.DocStatusProcessing, ""); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := s.indexChunks(ctx, doc, uploadID, targets, report); err != nil {
		return nil, err
	}

	if report.Failed > 0 {
		msg := fmt.Sprintf("%d of %d chunks failed embedding", report.Failed, len(targets))
		slog.Error("indexing incomplete", "document_id", documentID, "error", msg)
		s.finalize(ctx, documentID, uploadID, false, msg, !entryTerminal)
		return report, nil
	}

	s.finalize(ctx, documentID, uploadID, true, "", !entryTerminal)
	slog.Info("document indexed",
		"document_id", documentID,
		"upload_id", uploadID,
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"duration_ms", time.Since(start).Milliseconds())
	return report, nil
}

// indexChunks processes targets in embed batches. Per-batch failures are
// recorded in the report; only cancellation and metadata store failures
// return an error.
func (s *IndexerService) indexChunks(ctx context.Context, doc *models.Document, uploadID string,
	targets []models.Chunk, report *IndexReport) error {
	namespace := "upload:" + uploadID
	dim := s.embedder.Dimension()

	for start := 0; start < len(targets); start += s.embedBatchSize {
		end := start + s.embedBatchSize
		if s.embedBatchSize <= 0 || end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		if err := s.indexBatch(ctx, doc, namespace, dim, batch); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var se *storeFailure
			if errors.As(err, &se) {
				return se.err
			}
			slog.Error("index batch failed",
				"document_id", doc.ID,
				"batch_start", start,
				"batch_size", len(batch),
				"error", err)
			report.Failed += len(batch)
			continue
		}
		report.Indexed += len(batch)
	}
	return nil
}

// storeFailure marks metadata store errors so they abort the run instead of
// counting as a batch failure.
type storeFailure struct{ err error }

func (f *storeFailure) Error() string { return f.err.Error() }
func (f *storeFailure) Unwrap() error { return f.err }

func (s *IndexerService) indexBatch(ctx context.Context, doc *models.Document, namespace string,
	dim int, batch []models.Chunk) error {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Content
	}

	result, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	items := make([]vector.Item, len(batch))
	pairs := make([]models.ChunkKeyPair, len(batch))
	for i, ch := range batch {
		vec := result.Vectors[i]
		if len(vec) != dim {
			return &vector.DimensionMismatchError{Actual: len(vec), Expected: dim}
		}
		meta := map[string]string{
			"doc_id":       ch.DocumentID,
			"chunk_id":     ch.ID,
			"filename":     doc.Filename,
			"upload_id":    doc.UploadID,
			"content_hash": doc.ContentHash,
			"created_at":   ch.CreatedAt.UTC().Format(time.RFC3339),
		}
		if ch.PageNumber != nil {
			meta["page"] = strconv.Itoa(*ch.PageNumber)
		}
		items[i] = vector.Item{ID: ch.VectorID(), Vector: vec, Metadata: meta}
		pairs[i] = models.ChunkKeyPair{ChunkID: ch.ID, EmbeddingKey: ch.VectorID()}
	}

	for start := 0; start < len(items); start += s.upsertBatchSize {
		end := start + s.upsertBatchSize
		if s.upsertBatchSize <= 0 || end > len(items) {
			end = len(items)
		}
		if err := s.vectors.Upsert(ctx, namespace, items[start:end]); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
	}

	// Keys are written only after every vector in the group is acknowledged.
	if err := s.store.SetChunkEmbeddingKeys(ctx, pairs); err != nil {
		return &storeFailure{err: err}
	}
	return nil
}

func (s *IndexerService) finalize(ctx context.Context, documentID, uploadID string,
	succeeded bool, errMsg string, recordOutcome bool) {
	status := models.DocStatusCompleted
	if !succeeded {
		status = models.DocStatusFailed
	}
	if err := s.store.UpdateDocumentStatus(ctx, documentID, status, errMsg); err != nil {
		slog.Error("finalize document status", "document_id", documentID, "error", err)
	}
	if !recordOutcome {
		return
	}
	if _, err := s.store.RecordDocumentOutcome(ctx, uploadID, succeeded); err != nil {
		slog.Error("record document outcome", "upload_id", uploadID, "error", err)
	}
}

// Status reports chunk-level indexing progress for one document.
func (s *IndexerService) Status(ctx context.Context, documentID string) (*IndexingStatus, error) {
	return ComputeIndexingStatus(ctx, s.store, documentID)
}

// ComputeIndexingStatus derives indexing progress from stored chunks. It is
// shared by the worker and the HTTP surface.
func ComputeIndexingStatus(ctx context.Context, store MetadataStore, documentID string) (*IndexingStatus, error) {
	if _, err := store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	chunks, err := store.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	st := &IndexingStatus{TotalChunks: len(chunks)}
	for _, ch := range chunks {
		if ch.EmbeddingKey != "" {
			st.IndexedChunks++
		}
	}
	st.PendingChunks = st.TotalChunks - st.IndexedChunks
	if st.TotalChunks > 0 {
		st.Percent = float64(st.IndexedChunks) / float64(st.TotalChunks) * 100
	}
	return st, nil
}

// DeleteVectors removes vectors for a namespace, waiting out any indexing
// run that could be writing them. A nil id list clears the namespace.
func (s *IndexerService) DeleteVectors(ctx context.Context, namespace string, vectorIDs []string) error {
	s.mu.Lock()
	waiting := make([]chan struct{}, 0, len(s.inflight))
	for _, ch := range s.inflight {
		waiting = append(waiting, ch)
	}
	s.mu.Unlock()
	for _, ch := range waiting {
		<-ch
	}

	if len(vectorIDs) == 0 {
		return s.vectors.DeleteNamespace(ctx, namespace)
	}
	return s.vectors.DeleteByIDs(ctx, namespace, vectorIDs)
}
