package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-platform/internal/config"
	"docqa-platform/internal/tokenizer"
	"docqa-platform/models"
	"docqa-platform/utils"
)

func newIngestionFixture(t *testing.T) (*IngestionService, *fakeStore, *fakeEnqueuer) {
	t.Helper()
	counter, err := tokenizer.Get(tokenizer.HeuristicName)
	require.NoError(t, err)

	cfg := &config.Config{
		MaxDocsPerBatch:   5,
		MaxFileBytes:      1 << 20,
		MaxPages:          1000,
		IngestConcurrency: 3,
		DedupScope:        config.DedupScopeGlobal,
		DedupPolicy:       config.DedupPolicyReject,
	}
	s := newFakeStore()
	enq := &fakeEnqueuer{}
	svc := NewIngestionService(cfg, s,
		NewFileValidator(cfg.MaxFileBytes),
		NewExtractor(cfg.MaxPages),
		NewChunker(counter, 200, 10, 20),
		enq, nil)
	return svc, s, enq
}

func textBody(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("This sentence provides meaningful content for chunking tests. ")
	}
	return sb.String()
}

func TestIngestBatchAcceptsFiles(t *testing.T) {
	svc, s, enq := newIngestionFixture(t)
	ctx := context.Background()

	upload, outcomes, err := svc.IngestBatch(ctx, "batch-1", []IncomingFile{
		incomingFile("one.txt", textBody(5)),
		incomingFile("two.md", "# Heading\n\n"+textBody(3)),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "batch-1", upload.BatchLabel)
	assert.Equal(t, 2, upload.Total)

	for _, o := range outcomes {
		assert.True(t, o.Accepted, o.Error)
		assert.NotEmpty(t, o.DocumentID)
		assert.Positive(t, o.ChunkCount)

		doc, err := s.GetDocument(ctx, o.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusPending, doc.Status)
		assert.NotEmpty(t, doc.ContentHash)

		chunks, err := s.GetChunksByDocument(ctx, o.DocumentID)
		require.NoError(t, err)
		assert.Len(t, chunks, o.ChunkCount)
	}
	assert.Len(t, enq.indexTasks, 2)
}

func TestIngestBatchTooLarge(t *testing.T) {
	svc, _, _ := newIngestionFixture(t)

	files := make([]IncomingFile, 6)
	for i := range files {
		files[i] = incomingFile("f.txt", textBody(1))
	}
	_, _, err := svc.IngestBatch(context.Background(), "", files)
	assert.Equal(t, utils.CodeBatchTooLarge, domainCode(t, err))
}

func TestIngestBatchEmptyBatch(t *testing.T) {
	svc, _, _ := newIngestionFixture(t)
	_, _, err := svc.IngestBatch(context.Background(), "", nil)
	require.Error(t, err)
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	svc, s, enq := newIngestionFixture(t)
	ctx := context.Background()

	upload, outcomes, err := svc.IngestBatch(ctx, "", []IncomingFile{
		incomingFile("good.txt", textBody(4)),
		incomingFile("bad.xlsx", "not supported"),
		incomingFile("empty.txt", ""),
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Accepted)
	assert.False(t, outcomes[1].Accepted)
	assert.Equal(t, utils.CodeFileValidationType, outcomes[1].ErrorCode)
	assert.False(t, outcomes[2].Accepted)
	assert.Equal(t, utils.CodeFileValidationEmpty, outcomes[2].ErrorCode)

	// Rejected files count toward the upload immediately; the accepted one
	// settles when background indexing finishes.
	assert.Equal(t, 2, upload.Failed)
	assert.Equal(t, 0, upload.Succeeded)
	assert.False(t, upload.Terminal())
	assert.Len(t, enq.indexTasks, 1)

	// Rejected files still get document records.
	docs, err := s.ListDocuments(ctx, upload.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestIngestBatchRejectsDuplicates(t *testing.T) {
	svc, _, _ := newIngestionFixture(t)
	ctx := context.Background()

	body := textBody(4)
	_, first, err := svc.IngestBatch(ctx, "", []IncomingFile{incomingFile("orig.txt", body)})
	require.NoError(t, err)
	require.True(t, first[0].Accepted)

	// Same bytes under a different name are a duplicate.
	_, second, err := svc.IngestBatch(ctx, "", []IncomingFile{incomingFile("copy.md", body)})
	require.NoError(t, err)
	assert.False(t, second[0].Accepted)
	assert.Equal(t, utils.CodeDuplicateDocument, second[0].ErrorCode)
}

func TestIngestBatchDedupScopePerUpload(t *testing.T) {
	counter, err := tokenizer.Get(tokenizer.HeuristicName)
	require.NoError(t, err)

	cfg := &config.Config{
		MaxDocsPerBatch:   5,
		MaxFileBytes:      1 << 20,
		MaxPages:          1000,
		IngestConcurrency: 1,
		DedupScope:        config.DedupScopePerUpload,
		DedupPolicy:       config.DedupPolicyReject,
	}
	s := newFakeStore()
	svc := NewIngestionService(cfg, s,
		NewFileValidator(cfg.MaxFileBytes),
		NewExtractor(cfg.MaxPages),
		NewChunker(counter, 200, 10, 20),
		&fakeEnqueuer{}, nil)

	ctx := context.Background()
	body := textBody(4)

	_, first, err := svc.IngestBatch(ctx, "", []IncomingFile{incomingFile("a.txt", body)})
	require.NoError(t, err)
	assert.True(t, first[0].Accepted)

	// The same content in a different upload is allowed under per-upload scope.
	_, second, err := svc.IngestBatch(ctx, "", []IncomingFile{incomingFile("b.txt", body)})
	require.NoError(t, err)
	assert.True(t, second[0].Accepted)
}

func TestDeleteDocumentSchedulesVectorCleanup(t *testing.T) {
	svc, s, enq := newIngestionFixture(t)
	ctx := context.Background()

	_, outcomes, err := svc.IngestBatch(ctx, "", []IncomingFile{incomingFile("doc.txt", textBody(5))})
	require.NoError(t, err)
	docID := outcomes[0].DocumentID

	require.NoError(t, svc.DeleteDocument(ctx, docID))

	_, err = s.GetDocument(ctx, docID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.Len(t, enq.deleteTasks, 1)
	assert.NotEmpty(t, enq.deleteTasks[0].VectorIDs)
	for _, id := range enq.deleteTasks[0].VectorIDs {
		assert.True(t, strings.HasPrefix(id, "chunk:"))
	}
}

func TestDeleteUploadSchedulesNamespaceCleanup(t *testing.T) {
	svc, s, enq := newIngestionFixture(t)
	ctx := context.Background()

	upload, _, err := svc.IngestBatch(ctx, "", []IncomingFile{incomingFile("doc.txt", textBody(5))})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUpload(ctx, upload.ID))

	_, err = s.GetUpload(ctx, upload.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.Len(t, enq.deleteTasks, 1)
	assert.Equal(t, "upload:"+upload.ID, enq.deleteTasks[0].Namespace)
	assert.Empty(t, enq.deleteTasks[0].VectorIDs)
}

func TestDeleteMissingDocument(t *testing.T) {
	svc, _, _ := newIngestionFixture(t)
	err := svc.DeleteDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
