package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docqa-platform/internal/config"
	"docqa-platform/models"
	"docqa-platform/utils"
)

// CorpusInvalidator is notified whenever the chunk corpus changes so cached
// keyword indexes can rebuild.
type CorpusInvalidator interface {
	Invalidate()
}

// IngestionService runs the upload pipeline: validate, dedupe, extract,
// chunk, persist, then hand off to the background indexer. Files in a batch
// are processed in parallel and fail independently.
type IngestionService struct {
	store       MetadataStore
	validator   *FileValidator
	extractor   *Extractor
	chunker     *Chunker
	enqueuer    TaskEnqueuer
	invalidator CorpusInvalidator

	maxDocsPerBatch int
	concurrency     int
	dedupScope      string
	dedupPolicy     string
	storageDir      string
}

// NewIngestionService wires the upload pipeline.
func NewIngestionService(cfg *config.Config, store MetadataStore, validator *FileValidator,
	extractor *Extractor, chunker *Chunker, enqueuer TaskEnqueuer, invalidator CorpusInvalidator) *IngestionService {
	scope := cfg.DedupScope
	policy := cfg.DedupPolicy
	if policy == config.DedupPolicySkipEmbed {
		// Deterministic vector IDs make re-embedding idempotent already, so
		// the cheaper policy behaves the same as rejecting.
		slog.Warn("dedup policy skip_embed treated as reject")
		policy = config.DedupPolicyReject
	}
	return &IngestionService{
		store:           store,
		validator:       validator,
		extractor:       extractor,
		chunker:         chunker,
		enqueuer:        enqueuer,
		invalidator:     invalidator,
		maxDocsPerBatch: cfg.MaxDocsPerBatch,
		concurrency:     cfg.IngestConcurrency,
		dedupScope:      scope,
		dedupPolicy:     policy,
		storageDir:      cfg.FileStorageDir,
	}
}

// FileOutcome reports what happened to one file of a batch.
type FileOutcome struct {
	Filename   string          `json:"filename"`
	DocumentID string          `json:"document_id,omitempty"`
	Accepted   bool            `json:"accepted"`
	ChunkCount int             `json:"chunk_count,omitempty"`
	ErrorCode  utils.ErrorCode `json:"error_code,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// IngestBatch accepts a batch of files, persists accepted documents with
// their chunks, and enqueues each for background embedding. One bad file
// never sinks the batch.
func (s *IngestionService) IngestBatch(ctx context.Context, batchLabel string, files []IncomingFile) (*models.Upload, []FileOutcome, error) {
	if len(files) == 0 {
		return nil, nil, utils.NewDomainError(utils.CodeInvalidQuery, "batch contains no files")
	}
	if len(files) > s.maxDocsPerBatch {
		return nil, nil, utils.NewDomainError(utils.CodeBatchTooLarge,
			fmt.Sprintf("batch has %d files, limit is %d", len(files), s.maxDocsPerBatch))
	}

	upload := &models.Upload{
		ID:         uuid.NewString(),
		BatchLabel: batchLabel,
		Status:     models.UploadStatusProcessing,
		Total:      len(files),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateUpload(ctx, upload); err != nil {
		return nil, nil, utils.WrapDomainError(utils.CodeInternal, "create upload", err)
	}

	outcomes := make([]FileOutcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			outcomes[i] = s.ingestFile(gctx, upload, file)
			return nil
		})
	}
	// Workers report failures through outcomes, never through the group.
	_ = g.Wait()

	fresh, err := s.store.GetUpload(ctx, upload.ID)
	if err != nil {
		return upload, outcomes, nil
	}
	return fresh, outcomes, nil
}

func (s *IngestionService) ingestFile(ctx context.Context, upload *models.Upload, file IncomingFile) FileOutcome {
	outcome, err := s.tryIngestFile(ctx, upload, file)
	if err == nil {
		return outcome
	}

	var de *utils.DomainError
	if !errors.As(err, &de) {
		de = utils.WrapDomainError(utils.CodeInternal, "ingestion failed", err)
	}
	slog.Warn("file rejected",
		"upload_id", upload.ID,
		"filename", file.Filename,
		"code", de.Code,
		"error", de.Error())

	// A rejected file still gets a document record so the batch report is
	// complete, except when we could not even persist one.
	doc := &models.Document{
		ID:           uuid.NewString(),
		UploadID:     upload.ID,
		Filename:     utils.SanitizeFilename(file.Filename),
		ByteSize:     file.Size,
		Status:       models.DocStatusFailed,
		ErrorMessage: de.Message,
		CreatedAt:    time.Now().UTC(),
	}
	if ft, ftErr := fileTypeOf(file.Filename); ftErr == nil {
		doc.FileType = ft
	}
	if createErr := s.store.CreateDocument(ctx, doc); createErr != nil {
		slog.Error("record failed document", "error", createErr)
	}
	if _, recErr := s.store.RecordDocumentOutcome(ctx, upload.ID, false); recErr != nil {
		slog.Error("record document outcome", "error", recErr)
	}

	return FileOutcome{
		Filename:   file.Filename,
		DocumentID: doc.ID,
		Accepted:   false,
		ErrorCode:  de.Code,
		Error:      de.Message,
	}
}

func (s *IngestionService) tryIngestFile(ctx context.Context, upload *models.Upload, file IncomingFile) (FileOutcome, error) {
	validated, err := s.validator.Validate(file)
	if err != nil {
		return FileOutcome{}, err
	}

	dedupScope := ""
	if s.dedupScope == config.DedupScopePerUpload {
		dedupScope = upload.ID
	}
	existing, err := s.store.FindDocumentByHash(ctx, validated.ContentHash, dedupScope)
	switch {
	case err == nil:
		return FileOutcome{}, utils.NewDomainError(utils.CodeDuplicateDocument,
			fmt.Sprintf("identical content already ingested as document %s", existing.ID))
	case !errors.Is(err, models.ErrNotFound):
		return FileOutcome{}, utils.WrapDomainError(utils.CodeInternal, "duplicate lookup", err)
	}

	r, err := file.Open()
	if err != nil {
		return FileOutcome{}, utils.WrapDomainError(utils.CodeInternal, "open uploaded file", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return FileOutcome{}, utils.WrapDomainError(utils.CodeInternal, "read uploaded file", err)
	}

	extracted, err := s.extractor.Extract(validated.FileType, data)
	if err != nil {
		return FileOutcome{}, err
	}

	spans := s.chunker.Chunk(extracted.Text)
	if len(spans) == 0 {
		return FileOutcome{}, utils.NewDomainError(utils.CodeEmptyDocument, "no extractable text content")
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:          uuid.NewString(),
		UploadID:    upload.ID,
		Filename:    utils.SanitizeFilename(file.Filename),
		FileType:    validated.FileType,
		ByteSize:    validated.ByteSize,
		PageCount:   extracted.PageCount,
		ContentHash: validated.ContentHash,
		Status:      models.DocStatusPending,
		CreatedAt:   now,
	}

	if path, err := s.storeOriginal(doc, data); err != nil {
		slog.Warn("store original file", "document_id", doc.ID, "error", err)
	} else {
		doc.StoragePath = path
	}

	chunks := make([]models.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = models.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    span.Text,
			TokenCount: span.TokenCount,
			StartChar:  span.StartRune,
			EndChar:    span.EndRune,
			PageNumber: extracted.PageNumberAt(span.StartRune),
			CreatedAt:  now,
		}
	}

	if err := s.store.CreateDocumentWithChunks(ctx, doc, chunks); err != nil {
		return FileOutcome{}, utils.WrapDomainError(utils.CodeInternal, "persist document", err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}

	if err := s.enqueuer.EnqueueIndexDocument(ctx, doc.ID, upload.ID, false); err != nil {
		// The janitor re-enqueues pending documents, so this is not fatal.
		slog.Error("enqueue index task", "document_id", doc.ID, "error", err)
	}

	slog.Info("document accepted",
		"upload_id", upload.ID,
		"document_id", doc.ID,
		"filename", doc.Filename,
		"chunks", len(chunks),
		"pages", doc.PageCount)

	return FileOutcome{
		Filename:   file.Filename,
		DocumentID: doc.ID,
		Accepted:   true,
		ChunkCount: len(chunks),
	}, nil
}

func (s *IngestionService) storeOriginal(doc *models.Document, data []byte) (string, error) {
	if s.storageDir == "" {
		return "", nil
	}
	dir := filepath.Join(s.storageDir, doc.UploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	// Prefix with the document id so identical filenames in one upload
	// cannot collide.
	path := filepath.Join(dir, doc.ID+"_"+doc.Filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// DeleteDocument removes a document, its chunks, and schedules vector
// cleanup for its namespace.
func (s *IngestionService) DeleteDocument(ctx context.Context, id string) error {
	doc, chunkIDs, err := s.store.DeleteDocumentCascade(ctx, id)
	if err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	if doc.StoragePath != "" {
		if err := os.Remove(doc.StoragePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove stored file", "path", doc.StoragePath, "error", err)
		}
	}

	vectorIDs := make([]string, len(chunkIDs))
	for i, cid := range chunkIDs {
		vectorIDs[i] = "chunk:" + cid
	}
	namespace := "upload:" + doc.UploadID
	if err := s.enqueuer.EnqueueDeleteVectors(ctx, namespace, vectorIDs); err != nil {
		return utils.WrapDomainError(utils.CodeInternal, "enqueue vector cleanup", err)
	}
	return nil
}

// DeleteUpload removes an upload with all its documents and chunks, and
// schedules deletion of the whole vector namespace.
func (s *IngestionService) DeleteUpload(ctx context.Context, id string) error {
	upload, err := s.store.DeleteUploadCascade(ctx, id)
	if err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	if err := s.enqueuer.EnqueueDeleteVectors(ctx, upload.Namespace(), nil); err != nil {
		return utils.WrapDomainError(utils.CodeInternal, "enqueue vector cleanup", err)
	}
	return nil
}
