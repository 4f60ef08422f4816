package models

import "time"

// Chunk is a token-bounded slice of a document. Content may be stored
// compressed at rest; the store layer is responsible for making Content
// populated on every read path.
type Chunk struct {
	ID           string    `bson:"_id" json:"id"`
	DocumentID   string    `bson:"document_id" json:"document_id"`
	ChunkIndex   int       `bson:"chunk_index" json:"chunk_index"`
	Content      string    `bson:"content,omitempty" json:"content"`
	Compressed   []byte    `bson:"content_compressed,omitempty" json:"-"`
	Compression  string    `bson:"compression,omitempty" json:"-"`
	TokenCount   int       `bson:"token_count" json:"token_count"`
	StartChar    int       `bson:"start_char" json:"start_char"`
	EndChar      int       `bson:"end_char" json:"end_char"`
	PageNumber   *int      `bson:"page_number,omitempty" json:"page_number,omitempty"`
	EmbeddingKey string    `bson:"embedding_key,omitempty" json:"embedding_key,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// VectorID returns the deterministic external vector id for this chunk.
func (k *Chunk) VectorID() string {
	return "chunk:" + k.ID
}

// ChunkKeyPair binds a chunk id to its external embedding key.
type ChunkKeyPair struct {
	ChunkID      string
	EmbeddingKey string
}
