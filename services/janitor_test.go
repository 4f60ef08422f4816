package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa-platform/models"
)

func TestJanitorSweepRequeuesStuckDocuments(t *testing.T) {
	s := newFakeStore()
	enq := &fakeEnqueuer{}
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateDocument(ctx, &models.Document{
		ID: "stuck-pending", UploadID: "u1", Status: models.DocStatusPending, CreatedAt: old,
	}))
	require.NoError(t, s.CreateDocument(ctx, &models.Document{
		ID: "stuck-processing", UploadID: "u1", Status: models.DocStatusProcessing, CreatedAt: old,
	}))
	require.NoError(t, s.CreateDocument(ctx, &models.Document{
		ID: "done", UploadID: "u1", Status: models.DocStatusCompleted, CreatedAt: old,
	}))
	// Recent pending documents are still within the grace window.
	require.NoError(t, s.CreateDocument(ctx, &models.Document{
		ID: "fresh", UploadID: "u1", Status: models.DocStatusPending, CreatedAt: time.Now().UTC(),
	}))

	j := NewJanitor(s, enq, time.Minute, 10*time.Minute)
	require.NoError(t, j.Sweep(ctx))

	require.Len(t, enq.indexTasks, 2)
	got := map[string]bool{}
	for _, task := range enq.indexTasks {
		got[task.DocumentID] = true
		assert.Equal(t, "u1", task.UploadID)
	}
	assert.True(t, got["stuck-pending"])
	assert.True(t, got["stuck-processing"])
}

func TestJanitorSweepEmpty(t *testing.T) {
	j := NewJanitor(newFakeStore(), &fakeEnqueuer{}, time.Minute, 10*time.Minute)
	assert.NoError(t, j.Sweep(context.Background()))
}
