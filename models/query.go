package models

import "time"

// Retrieval methods
const (
	RetrievalSemantic = "semantic"
	RetrievalKeyword  = "keyword"
	RetrievalHybrid   = "hybrid"
)

// Citation maps a [Source N] reference in the answer to the cited chunk.
type Citation struct {
	SourceIndex int    `bson:"source_index" json:"source_index"`
	DocumentID  string `bson:"document_id" json:"document_id"`
	PageNumber  *int   `bson:"page_number,omitempty" json:"page_number,omitempty"`
	Snippet     string `bson:"snippet" json:"snippet"`
	ChunkID     string `bson:"chunk_id" json:"chunk_id"`
}

// RetrievalStats records how retrieval behaved for one query.
type RetrievalStats struct {
	TopK            int    `bson:"top_k" json:"top_k"`
	ChunksRetrieved int    `bson:"chunks_retrieved" json:"chunks_retrieved"`
	ChunksUsed      int    `bson:"chunks_used" json:"chunks_used"`
	RetrievalMethod string `bson:"retrieval_method" json:"retrieval_method"`
}

// Query is one answered question. Immutable once persisted.
type Query struct {
	ID             string         `bson:"_id" json:"id"`
	QueryText      string         `bson:"query_text" json:"query_text"`
	UploadFilter   string         `bson:"upload_filter,omitempty" json:"upload_filter,omitempty"`
	AnswerText     string         `bson:"answer_text" json:"answer_text"`
	Citations      []Citation     `bson:"citations" json:"citations"`
	UsedChunkIDs   []string       `bson:"used_chunk_ids" json:"used_chunk_ids"`
	RetrievalMs    int64          `bson:"retrieval_ms" json:"retrieval_ms"`
	GenerationMs   int64          `bson:"generation_ms" json:"generation_ms"`
	LatencyMs      int64          `bson:"latency_ms" json:"latency_ms"`
	RetrievalStats RetrievalStats `bson:"retrieval_stats" json:"retrieval_stats"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
}
