// Package queue defines the asynq task types and their handlers. The API
// process enqueues, the worker process consumes.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"docqa-platform/services"
)

const (
	TaskIndexDocument = "index:document"
	TaskDeleteVectors = "vectors:delete"
)

const (
	QueueIndexing = "indexing"
	QueueCleanup  = "cleanup"
)

type IndexDocumentPayload struct {
	DocumentID string `json:"document_id"`
	UploadID   string `json:"upload_id"`
	Force      bool   `json:"force,omitempty"`
}

type DeleteVectorsPayload struct {
	Namespace string   `json:"namespace"`
	VectorIDs []string `json:"vector_ids,omitempty"`
}

// NewIndexDocumentTask creates the embedding task for one document.
func NewIndexDocumentTask(documentID, uploadID string, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(IndexDocumentPayload{
		DocumentID: documentID,
		UploadID:   uploadID,
		Force:      force,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIndexDocument,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(QueueIndexing),
	), nil
}

// NewDeleteVectorsTask creates the vector cleanup task. A nil id list clears
// the whole namespace.
func NewDeleteVectorsTask(namespace string, vectorIDs []string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeleteVectorsPayload{
		Namespace: namespace,
		VectorIDs: vectorIDs,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskDeleteVectors,
		payload,
		asynq.MaxRetry(10),
		asynq.Timeout(5*time.Minute),
		asynq.Queue(QueueCleanup),
	), nil
}

// Enqueuer is the services.TaskEnqueuer implementation backed by an asynq
// client.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueIndexDocument(ctx context.Context, documentID, uploadID string, force bool) error {
	task, err := NewIndexDocumentTask(documentID, uploadID, force)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskIndexDocument, err)
	}
	slog.Debug("task enqueued", "type", TaskIndexDocument, "task_id", info.ID, "document_id", documentID)
	return nil
}

func (e *Enqueuer) EnqueueDeleteVectors(ctx context.Context, namespace string, vectorIDs []string) error {
	task, err := NewDeleteVectorsTask(namespace, vectorIDs)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskDeleteVectors, err)
	}
	slog.Debug("task enqueued", "type", TaskDeleteVectors, "task_id", info.ID, "namespace", namespace)
	return nil
}

// TaskProcessor holds the worker-side handlers.
type TaskProcessor struct {
	indexer *services.IndexerService
}

// NewTaskProcessor creates the handler set around the indexer.
func NewTaskProcessor(indexer *services.IndexerService) *TaskProcessor {
	return &TaskProcessor{indexer: indexer}
}

// Register binds the handlers onto an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIndexDocument, p.HandleIndexDocument)
	mux.HandleFunc(TaskDeleteVectors, p.HandleDeleteVectors)
}

func (p *TaskProcessor) HandleIndexDocument(ctx context.Context, t *asynq.Task) error {
	var payload IndexDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", TaskIndexDocument, err, asynq.SkipRetry)
	}
	_, err := p.indexer.IndexDocument(ctx, payload.DocumentID, payload.UploadID, payload.Force)
	return err
}

func (p *TaskProcessor) HandleDeleteVectors(ctx context.Context, t *asynq.Task) error {
	var payload DeleteVectorsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", TaskDeleteVectors, err, asynq.SkipRetry)
	}
	return p.indexer.DeleteVectors(ctx, payload.Namespace, payload.VectorIDs)
}
