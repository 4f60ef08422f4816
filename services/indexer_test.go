package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/vector"
	"docqa-platform/models"
)

func seedIndexableDocument(t *testing.T, s *fakeStore) {
	t.Helper()
	ctx := context.Background()
	page := 2
	require.NoError(t, s.CreateUpload(ctx, &models.Upload{
		ID: "u1", Status: models.UploadStatusProcessing, Total: 1,
	}))
	require.NoError(t, s.CreateDocumentWithChunks(ctx,
		&models.Document{ID: "d1", UploadID: "u1", Filename: "notes.txt", ContentHash: "abc123", Status: models.DocStatusPending},
		[]models.Chunk{
			{ID: "c1", DocumentID: "d1", ChunkIndex: 0, Content: "first chunk text"},
			{ID: "c2", DocumentID: "d1", ChunkIndex: 1, Content: "second chunk text", PageNumber: &page},
			{ID: "c3", DocumentID: "d1", ChunkIndex: 2, Content: "third chunk text"},
		}))
}

func newIndexerFixture(t *testing.T) (*IndexerService, *fakeStore, *fakeEmbedder, *vector.MemoryStore) {
	t.Helper()
	s := newFakeStore()
	em := newFakeEmbedder()
	vs := vector.NewMemoryStore()
	require.NoError(t, vs.EnsureIndex(context.Background(), fakeDim, vector.MetricCosine))
	return NewIndexerService(s, em, vs, 2, 2, 2), s, em, vs
}

func TestIndexDocumentSucceeds(t *testing.T) {
	idx, s, _, vs := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	report, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, &IndexReport{Indexed: 3}, report)

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.Status)

	upload, err := s.GetUpload(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, upload.Succeeded)
	assert.Equal(t, models.UploadStatusCompleted, upload.Status)

	chunks, err := s.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	for _, ch := range chunks {
		assert.Equal(t, "chunk:"+ch.ID, ch.EmbeddingKey)
	}

	matches, err := vs.Fetch(ctx, "upload:u1", []string{"chunk:c1", "chunk:c2", "chunk:c3"})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	byID := map[string]vector.Item{}
	for _, m := range matches {
		byID[m.ID] = m
	}
	assert.Equal(t, "d1", byID["chunk:c1"].Metadata["doc_id"])
	assert.Equal(t, "notes.txt", byID["chunk:c1"].Metadata["filename"])
	assert.Equal(t, "u1", byID["chunk:c1"].Metadata["upload_id"])
	assert.Equal(t, "abc123", byID["chunk:c1"].Metadata["content_hash"])
	assert.Equal(t, "2", byID["chunk:c2"].Metadata["page"])
	_, hasPage := byID["chunk:c1"].Metadata["page"]
	assert.False(t, hasPage)
}

func TestIndexDocumentSkipsIndexedChunks(t *testing.T) {
	idx, s, em, _ := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	_, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	callsAfterFirst := em.calls

	// A redelivered task embeds nothing and does not double-count the outcome.
	report, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, &IndexReport{Indexed: 0, Skipped: 3, Failed: 0}, report)
	assert.Equal(t, callsAfterFirst, em.calls)

	upload, err := s.GetUpload(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, upload.Succeeded)
}

func TestIndexDocumentForceReembedsEverything(t *testing.T) {
	idx, s, em, _ := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	_, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	callsAfterFirst := em.calls

	report, err := idx.IndexDocument(ctx, "d1", "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)
	assert.Zero(t, report.Skipped)
	assert.Greater(t, em.calls, callsAfterFirst)

	// Reindexing a settled document must not bump the upload counters again.
	upload, err := s.GetUpload(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, upload.Succeeded)
}

func TestIndexDocumentMissingDocument(t *testing.T) {
	idx, s, _, _ := newIndexerFixture(t)
	require.NoError(t, s.CreateUpload(context.Background(), &models.Upload{ID: "u1", Total: 1}))

	// Missing documents are dropped without error so the task is not retried.
	report, err := idx.IndexDocument(context.Background(), "ghost", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, &IndexReport{}, report)
}

func TestIndexDocumentEmbeddingFailureCountsChunks(t *testing.T) {
	idx, s, em, _ := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	em.fail = &ai.ProviderError{Op: "embed", Kind: ai.FailExhausted, Err: errors.New("rate limited")}

	report, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, report.Indexed)

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
	assert.NotEmpty(t, doc.ErrorMessage)

	upload, err := s.GetUpload(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, upload.Failed)
	assert.Equal(t, models.UploadStatusFailed, upload.Status)

	// Embedding keys stay unset so a later reindex can repair the gap.
	chunks, err := s.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	for _, ch := range chunks {
		assert.Empty(t, ch.EmbeddingKey)
	}
}

func TestIndexDocumentReindexRepairsFailure(t *testing.T) {
	idx, s, em, _ := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	em.fail = errors.New("provider down")
	_, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)

	em.fail = nil
	report, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Indexed)

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.Status)
	assert.Empty(t, doc.ErrorMessage, "repair must clear the stale failure text")
}

func TestIndexDocumentDimensionMismatch(t *testing.T) {
	idx, s, em, _ := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	em.fixed["first chunk text"] = []float32{1, 0}

	report, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	assert.Positive(t, report.Failed)

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusFailed, doc.Status)
}

func TestComputeIndexingStatus(t *testing.T) {
	idx, s, _, _ := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	before, err := ComputeIndexingStatus(ctx, s, "d1")
	require.NoError(t, err)
	assert.Equal(t, &IndexingStatus{TotalChunks: 3, PendingChunks: 3}, before)

	_, err = idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)

	after, err := ComputeIndexingStatus(ctx, s, "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, after.IndexedChunks)
	assert.Zero(t, after.PendingChunks)
	assert.Equal(t, 100.0, after.Percent)

	_, err = ComputeIndexingStatus(ctx, s, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteVectorsByID(t *testing.T) {
	idx, s, _, vs := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	_, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	require.NoError(t, idx.DeleteVectors(ctx, "upload:u1", []string{"chunk:c1", "chunk:c2"}))

	matches, err := vs.Fetch(ctx, "upload:u1", []string{"chunk:c1", "chunk:c2", "chunk:c3"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "chunk:c3", matches[0].ID)
}

func TestDeleteVectorsNamespace(t *testing.T) {
	idx, s, _, vs := newIndexerFixture(t)
	seedIndexableDocument(t, s)
	ctx := context.Background()

	_, err := idx.IndexDocument(ctx, "d1", "u1", false)
	require.NoError(t, err)
	require.NoError(t, idx.DeleteVectors(ctx, "upload:u1", nil))

	stats, err := vs.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalItems)
}
