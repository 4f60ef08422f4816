package services

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"docqa-platform/internal/ai"
	"docqa-platform/models"
)

// fakeStore is an in-memory MetadataStore for tests.
type fakeStore struct {
	mu        sync.Mutex
	uploads   map[string]*models.Upload
	documents map[string]*models.Document
	chunks    map[string]*models.Chunk
	queries   map[string]*models.Query
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		uploads:   map[string]*models.Upload{},
		documents: map[string]*models.Document{},
		chunks:    map[string]*models.Chunk{},
		queries:   map[string]*models.Query{},
	}
}

func (s *fakeStore) CreateUpload(_ context.Context, u *models.Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.uploads[u.ID] = &cp
	return nil
}

func (s *fakeStore) GetUpload(_ context.Context, id string) (*models.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) ListUploads(_ context.Context, limit, offset int64) ([]models.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Upload
	for _, u := range s.uploads {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) UpdateUploadStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[id]
	if !ok {
		return models.ErrNotFound
	}
	u.Status = status
	return nil
}

func (s *fakeStore) RecordDocumentOutcome(_ context.Context, uploadID string, succeeded bool) (*models.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if succeeded {
		u.Succeeded++
	} else {
		u.Failed++
	}
	if u.Succeeded+u.Failed >= u.Total && !u.Terminal() {
		switch {
		case u.Succeeded == 0:
			u.Status = models.UploadStatusFailed
		case u.Failed > 0:
			u.Status = models.UploadStatusPartial
		default:
			u.Status = models.UploadStatusCompleted
		}
		now := time.Now().UTC()
		u.CompletedAt = &now
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) CreateDocumentWithChunks(_ context.Context, doc *models.Document, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.documents[doc.ID] = &cp
	for _, ch := range chunks {
		c := ch
		s.chunks[ch.ID] = &c
	}
	return nil
}

func (s *fakeStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *fakeStore) ListDocuments(_ context.Context, uploadID string, limit, offset int64) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Document
	for _, d := range s.documents {
		if uploadID != "" && d.UploadID != uploadID {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) FindDocumentByHash(_ context.Context, hash, uploadID string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.documents {
		if d.ContentHash != hash || d.Status == models.DocStatusFailed {
			continue
		}
		if uploadID != "" && d.UploadID != uploadID {
			continue
		}
		cp := *d
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (s *fakeStore) UpdateDocumentStatus(_ context.Context, id, status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	d.Status = status
	d.ErrorMessage = errorMessage
	return nil
}

func (s *fakeStore) ListPendingDocuments(_ context.Context, age time.Duration) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-age)
	var out []models.Document
	for _, d := range s.documents {
		if d.Status != models.DocStatusPending && d.Status != models.DocStatusProcessing {
			continue
		}
		if d.CreatedAt.Before(cutoff) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) DeleteDocumentCascade(_ context.Context, id string) (*models.Document, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, nil, models.ErrNotFound
	}
	var chunkIDs []string
	for cid, ch := range s.chunks {
		if ch.DocumentID == id {
			chunkIDs = append(chunkIDs, cid)
			delete(s.chunks, cid)
		}
	}
	sort.Strings(chunkIDs)
	delete(s.documents, id)
	cp := *d
	return &cp, chunkIDs, nil
}

func (s *fakeStore) DeleteUploadCascade(_ context.Context, uploadID string) (*models.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[uploadID]
	if !ok {
		return nil, models.ErrNotFound
	}
	for did, d := range s.documents {
		if d.UploadID != uploadID {
			continue
		}
		for cid, ch := range s.chunks {
			if ch.DocumentID == did {
				delete(s.chunks, cid)
			}
		}
		delete(s.documents, did)
	}
	delete(s.uploads, uploadID)
	cp := *u
	return &cp, nil
}

func (s *fakeStore) GetChunksByDocument(_ context.Context, docID string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chunk
	for _, ch := range s.chunks {
		if ch.DocumentID == docID {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *fakeStore) GetChunksByIDs(_ context.Context, ids []string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chunk
	for _, id := range ids {
		if ch, ok := s.chunks[id]; ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (s *fakeStore) ListChunksForCorpus(_ context.Context, uploadID string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chunk
	for _, ch := range s.chunks {
		doc, ok := s.documents[ch.DocumentID]
		if !ok || doc.Status == models.DocStatusFailed {
			continue
		}
		if uploadID != "" && doc.UploadID != uploadID {
			continue
		}
		out = append(out, *ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SetChunkEmbeddingKeys(_ context.Context, pairs []models.ChunkKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		if ch, ok := s.chunks[p.ChunkID]; ok {
			ch.EmbeddingKey = p.EmbeddingKey
		}
	}
	return nil
}

func (s *fakeStore) SaveQuery(_ context.Context, q *models.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *q
	s.queries[q.ID] = &cp
	return nil
}

func (s *fakeStore) GetQuery(_ context.Context, id string) (*models.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *q
	return &cp, nil
}

func (s *fakeStore) ListQueries(_ context.Context, limit, offset int64) ([]models.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Query
	for _, q := range s.queries {
		out = append(out, *q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// fakeEmbedder returns deterministic vectors. Fixed returns override the
// hash-derived default for specific texts.
type fakeEmbedder struct {
	mu    sync.Mutex
	fixed map[string][]float32
	fail  error
	calls int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fixed: map[string][]float32{}}
}

const fakeDim = 4

func (e *fakeEmbedder) vectorFor(text string) []float32 {
	if v, ok := e.fixed[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	sum := h.Sum64()
	vec := make([]float32, fakeDim)
	norm := 0.0
	for i := range vec {
		vec[i] = float32((sum>>(i*8))&0xff) + 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) (*ai.EmbedResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail != nil {
		return nil, e.fail
	}
	vectors := make([][]float32, len(texts))
	tokens := 0
	for i, t := range texts {
		vectors[i] = e.vectorFor(t)
		tokens += len(t) / 4
	}
	return &ai.EmbedResult{Vectors: vectors, Model: "fake-embed", TokenTotal: tokens}, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Vectors[0], nil
}

func (e *fakeEmbedder) Dimension() int      { return fakeDim }
func (e *fakeEmbedder) ModelName() string   { return "fake-embed" }
func (e *fakeEmbedder) MaxInputTokens() int { return 8192 }

// fakeGenerator returns a canned answer.
type fakeGenerator struct {
	answer string
	fail   error
	prompt string
	system string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, params ai.GenerateParams) (*ai.GenerateResult, error) {
	if g.fail != nil {
		return nil, g.fail
	}
	g.prompt = prompt
	g.system = params.SystemPrompt
	return &ai.GenerateResult{Text: g.answer, PromptTokens: 100, OutputTokens: 20}, nil
}

func (g *fakeGenerator) ModelName() string { return "fake-gen" }

// fakeEnqueuer records enqueued work.
type fakeEnqueuer struct {
	mu          sync.Mutex
	indexTasks  []IndexTask
	deleteTasks []DeleteTask
	fail        error
}

type IndexTask struct {
	DocumentID string
	UploadID   string
	Force      bool
}

type DeleteTask struct {
	Namespace string
	VectorIDs []string
}

func (e *fakeEnqueuer) EnqueueIndexDocument(_ context.Context, documentID, uploadID string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.indexTasks = append(e.indexTasks, IndexTask{DocumentID: documentID, UploadID: uploadID, Force: force})
	return nil
}

func (e *fakeEnqueuer) EnqueueDeleteVectors(_ context.Context, namespace string, vectorIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return e.fail
	}
	e.deleteTasks = append(e.deleteTasks, DeleteTask{Namespace: namespace, VectorIDs: vectorIDs})
	return nil
}
