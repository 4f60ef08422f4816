// Package store persists uploads, documents, chunks and query history in
// MongoDB. Chunk text is compressed at rest and transparently decompressed
// on every read path.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"docqa-platform/models"
	"docqa-platform/utils"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = models.ErrNotFound

// Chunk text below this size is stored uncompressed.
const compressMinBytes = 200

// MongoStore is the metadata store backed by a single MongoDB database.
type MongoStore struct {
	client    *mongo.Client
	db        *mongo.Database
	uploads   *mongo.Collection
	documents *mongo.Collection
	chunks    *mongo.Collection
	queries   *mongo.Collection
}

// NewMongoStore connects to MongoDB and binds the collections.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(dbName)
	return &MongoStore{
		client:    client,
		db:        db,
		uploads:   db.Collection("uploads"),
		documents: db.Collection("documents"),
		chunks:    db.Collection("chunks"),
		queries:   db.Collection("queries"),
	}, nil
}

// EnsureIndexes creates the indexes every query path depends on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	// content_hash stays non-unique: duplicate scope is configurable and a
	// failed ingest may be retried under the same hash. The scoped lookup in
	// the ingestion pipeline enforces the dedup policy.
	_, err := s.documents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "upload_id", Value: 1}}},
		{Keys: bson.D{{Key: "content_hash", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("document indexes: %w", err)
	}

	_, err = s.chunks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "embedding_key", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("chunk indexes: %w", err)
	}

	_, err = s.uploads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("upload indexes: %w", err)
	}

	_, err = s.queries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("query indexes: %w", err)
	}
	return nil
}

// --- uploads ---

func (s *MongoStore) CreateUpload(ctx context.Context, upload *models.Upload) error {
	if _, err := s.uploads.InsertOne(ctx, upload); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (s *MongoStore) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	var upload models.Upload
	err := s.uploads.FindOne(ctx, bson.M{"_id": id}).Decode(&upload)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find upload: %w", err)
	}
	return &upload, nil
}

func (s *MongoStore) ListUploads(ctx context.Context, limit, offset int64) ([]models.Upload, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)
	cur, err := s.uploads.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer cur.Close(ctx)

	var uploads []models.Upload
	if err := cur.All(ctx, &uploads); err != nil {
		return nil, fmt.Errorf("decode uploads: %w", err)
	}
	return uploads, nil
}

func (s *MongoStore) UpdateUploadStatus(ctx context.Context, id, status string) error {
	set := bson.M{"status": status}
	res, err := s.uploads.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDocumentOutcome bumps the upload's succeeded or failed counter and,
// once every file is accounted for, settles the terminal status.
func (s *MongoStore) RecordDocumentOutcome(ctx context.Context, uploadID string, succeeded bool) (*models.Upload, error) {
	inc := bson.M{"failed": 1}
	if succeeded {
		inc = bson.M{"succeeded": 1}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var upload models.Upload
	err := s.uploads.FindOneAndUpdate(ctx, bson.M{"_id": uploadID}, bson.M{"$inc": inc}, opts).Decode(&upload)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("record document outcome: %w", err)
	}

	if upload.Succeeded+upload.Failed >= upload.Total && !upload.Terminal() {
		status := models.UploadStatusCompleted
		switch {
		case upload.Succeeded == 0:
			status = models.UploadStatusFailed
		case upload.Failed > 0:
			status = models.UploadStatusPartial
		}
		now := time.Now().UTC()
		_, err := s.uploads.UpdateOne(ctx, bson.M{"_id": uploadID},
			bson.M{"$set": bson.M{"status": status, "completed_at": now}})
		if err != nil {
			return nil, fmt.Errorf("finalize upload: %w", err)
		}
		upload.Status = status
		upload.CompletedAt = &now
	}
	return &upload, nil
}

// --- documents ---

// CreateDocumentWithChunks writes a document and all its chunks in one
// transaction, so a crash never leaves a document with a partial chunk set.
func (s *MongoStore) CreateDocumentWithChunks(ctx context.Context, doc *models.Document, chunks []models.Chunk) error {
	stored := make([]interface{}, 0, len(chunks))
	for _, ch := range chunks {
		compressed, algo, err := utils.CompressText(ch.Content, compressMinBytes)
		if err != nil {
			return fmt.Errorf("compress chunk %s: %w", ch.ID, err)
		}
		if algo != "" {
			ch.Compressed = compressed
			ch.Compression = string(algo)
			ch.Content = ""
		}
		stored = append(stored, ch)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := s.documents.InsertOne(sc, doc); err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			if _, err := s.chunks.InsertMany(sc, stored); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("create document with chunks: %w", err)
	}
	return nil
}

// CreateDocument inserts a document without chunks, used to record failures.
func (s *MongoStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *MongoStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns documents, optionally restricted to one upload.
func (s *MongoStore) ListDocuments(ctx context.Context, uploadID string, limit, offset int64) ([]models.Document, error) {
	filter := bson.M{}
	if uploadID != "" {
		filter["upload_id"] = uploadID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)
	cur, err := s.documents.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cur.Close(ctx)

	var docs []models.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// FindDocumentByHash locates a non-failed document with the same content
// hash. An empty uploadID searches across all uploads.
func (s *MongoStore) FindDocumentByHash(ctx context.Context, hash, uploadID string) (*models.Document, error) {
	filter := bson.M{
		"content_hash": hash,
		"status":       bson.M{"$ne": models.DocStatusFailed},
	}
	if uploadID != "" {
		filter["upload_id"] = uploadID
	}

	var doc models.Document
	err := s.documents.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document by hash: %w", err)
	}
	return &doc, nil
}

func (s *MongoStore) UpdateDocumentStatus(ctx context.Context, id, status, errorMessage string) error {
	// error_message is written unconditionally so a successful reindex
	// clears the text left by an earlier failure.
	set := bson.M{"status": status, "error_message": errorMessage}
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPendingDocuments returns documents stuck in pending or processing for
// longer than age. The janitor re-enqueues these.
func (s *MongoStore) ListPendingDocuments(ctx context.Context, age time.Duration) ([]models.Document, error) {
	cutoff := time.Now().UTC().Add(-age)
	filter := bson.M{
		"status":     bson.M{"$in": []string{models.DocStatusPending, models.DocStatusProcessing}},
		"created_at": bson.M{"$lt": cutoff},
	}
	cur, err := s.documents.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	defer cur.Close(ctx)

	var docs []models.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode pending documents: %w", err)
	}
	return docs, nil
}

// DeleteDocumentCascade removes a document and its chunks, returning the
// chunk IDs so the caller can clear the vector index.
func (s *MongoStore) DeleteDocumentCascade(ctx context.Context, id string) (*models.Document, []string, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	chunkIDs, err := s.chunkIDsByDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": id}); err != nil {
		return nil, nil, fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := s.documents.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return nil, nil, fmt.Errorf("delete document: %w", err)
	}

	slog.Info("document deleted", "document_id", id, "chunks", len(chunkIDs))
	return doc, chunkIDs, nil
}

// DeleteUploadCascade removes an upload, its documents and their chunks.
func (s *MongoStore) DeleteUploadCascade(ctx context.Context, uploadID string) (*models.Upload, error) {
	upload, err := s.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	docs, err := s.ListDocuments(ctx, uploadID, 0, 0)
	if err != nil {
		return nil, err
	}
	docIDs := make([]string, len(docs))
	for i, d := range docs {
		docIDs[i] = d.ID
	}

	if len(docIDs) > 0 {
		if _, err := s.chunks.DeleteMany(ctx, bson.M{"document_id": bson.M{"$in": docIDs}}); err != nil {
			return nil, fmt.Errorf("delete chunks: %w", err)
		}
		if _, err := s.documents.DeleteMany(ctx, bson.M{"upload_id": uploadID}); err != nil {
			return nil, fmt.Errorf("delete documents: %w", err)
		}
	}
	if _, err := s.uploads.DeleteOne(ctx, bson.M{"_id": uploadID}); err != nil {
		return nil, fmt.Errorf("delete upload: %w", err)
	}

	slog.Info("upload deleted", "upload_id", uploadID, "documents", len(docIDs))
	return upload, nil
}

func (s *MongoStore) chunkIDsByDocument(ctx context.Context, docID string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.chunks.Find(ctx, bson.M{"document_id": docID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode chunk id: %w", err)
		}
		ids = append(ids, row.ID)
	}
	return ids, cur.Err()
}

// --- chunks ---

func (s *MongoStore) GetChunksByDocument(ctx context.Context, docID string) ([]models.Chunk, error) {
	opts := options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}})
	cur, err := s.chunks.Find(ctx, bson.M{"document_id": docID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer cur.Close(ctx)
	return s.decodeChunks(ctx, cur)
}

func (s *MongoStore) GetChunksByIDs(ctx context.Context, ids []string) ([]models.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.chunks.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find chunks: %w", err)
	}
	defer cur.Close(ctx)
	return s.decodeChunks(ctx, cur)
}

// ListChunksForCorpus returns every chunk belonging to live documents,
// optionally scoped to one upload. This feeds the keyword index. Lexical
// search does not wait for embedding, so pending and processing documents
// are included; only failed ones stay out.
func (s *MongoStore) ListChunksForCorpus(ctx context.Context, uploadID string) ([]models.Chunk, error) {
	docFilter := bson.M{"status": bson.M{"$in": []string{
		models.DocStatusPending,
		models.DocStatusProcessing,
		models.DocStatusCompleted,
	}}}
	if uploadID != "" {
		docFilter["upload_id"] = uploadID
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.documents.Find(ctx, docFilter, opts)
	if err != nil {
		return nil, fmt.Errorf("list corpus documents: %w", err)
	}
	var docIDs []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			cur.Close(ctx)
			return nil, fmt.Errorf("decode document id: %w", err)
		}
		docIDs = append(docIDs, row.ID)
	}
	cur.Close(ctx)
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	chunkCur, err := s.chunks.Find(ctx, bson.M{"document_id": bson.M{"$in": docIDs}})
	if err != nil {
		return nil, fmt.Errorf("list corpus chunks: %w", err)
	}
	defer chunkCur.Close(ctx)
	return s.decodeChunks(ctx, chunkCur)
}

// SetChunkEmbeddingKeys records the vector IDs written for each chunk.
func (s *MongoStore) SetChunkEmbeddingKeys(ctx context.Context, pairs []models.ChunkKeyPair) error {
	if len(pairs) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, len(pairs))
	for i, p := range pairs {
		writes[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": p.ChunkID}).
			SetUpdate(bson.M{"$set": bson.M{"embedding_key": p.EmbeddingKey}})
	}
	if _, err := s.chunks.BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("set embedding keys: %w", err)
	}
	return nil
}

func (s *MongoStore) decodeChunks(ctx context.Context, cur *mongo.Cursor) ([]models.Chunk, error) {
	var chunks []models.Chunk
	if err := cur.All(ctx, &chunks); err != nil {
		return nil, fmt.Errorf("decode chunks: %w", err)
	}
	for i := range chunks {
		if chunks[i].Compression == "" {
			continue
		}
		text, err := utils.DecompressText(chunks[i].Compressed, utils.CompressionAlgorithm(chunks[i].Compression))
		if err != nil {
			return nil, fmt.Errorf("decompress chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Content = text
		chunks[i].Compressed = nil
		chunks[i].Compression = ""
	}
	return chunks, nil
}

// --- queries ---

func (s *MongoStore) SaveQuery(ctx context.Context, q *models.Query) error {
	if _, err := s.queries.InsertOne(ctx, q); err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

func (s *MongoStore) GetQuery(ctx context.Context, id string) (*models.Query, error) {
	var q models.Query
	err := s.queries.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find query: %w", err)
	}
	return &q, nil
}

func (s *MongoStore) ListQueries(ctx context.Context, limit, offset int64) ([]models.Query, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)
	cur, err := s.queries.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer cur.Close(ctx)

	var queries []models.Query
	if err := cur.All(ctx, &queries); err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}
	return queries, nil
}

// --- lifecycle ---

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
