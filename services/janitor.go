package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Janitor periodically re-enqueues documents stuck in a non-terminal status,
// covering tasks lost to enqueue failures or worker crashes.
type Janitor struct {
	store     MetadataStore
	enqueuer  TaskEnqueuer
	scheduler *gocron.Scheduler
	interval  time.Duration
	grace     time.Duration
}

// NewJanitor creates a janitor that scans every interval for documents older
// than grace that never reached a terminal status.
func NewJanitor(store MetadataStore, enqueuer TaskEnqueuer, interval, grace time.Duration) *Janitor {
	return &Janitor{
		store:     store,
		enqueuer:  enqueuer,
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		grace:     grace,
	}
}

// Start schedules the sweep and returns immediately.
func (j *Janitor) Start() error {
	_, err := j.scheduler.Every(j.interval).Tag("stuck-documents").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := j.Sweep(ctx); err != nil {
			slog.Error("janitor sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	j.scheduler.StartAsync()
	slog.Info("janitor started", "interval", j.interval, "grace", j.grace)
	return nil
}

// Stop halts the scheduler.
func (j *Janitor) Stop() {
	j.scheduler.Stop()
}

// Sweep re-enqueues every stuck document once.
func (j *Janitor) Sweep(ctx context.Context) error {
	docs, err := j.store.ListPendingDocuments(ctx, j.grace)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	requeued := 0
	for _, doc := range docs {
		if err := j.enqueuer.EnqueueIndexDocument(ctx, doc.ID, doc.UploadID, false); err != nil {
			slog.Error("janitor re-enqueue failed", "document_id", doc.ID, "error", err)
			continue
		}
		requeued++
	}
	slog.Info("janitor sweep", "stuck", len(docs), "requeued", requeued)
	return nil
}
