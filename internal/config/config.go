package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Provider and store selection enums
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	VectorStorePgvector = "pgvector"
	VectorStoreMemory   = "memory"

	DedupScopeGlobal    = "global"
	DedupScopePerUpload = "per-upload"

	DedupPolicyReject    = "reject"
	DedupPolicySkipEmbed = "skip_embed"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Metadata store
	MongoURI string
	DBName   string

	// Redis (queue + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Vector store
	VectorStore     string // pgvector | memory
	PostgresDSN     string
	VectorIndexName string
	VectorMetric    string
	VectorDimension int // 0 = take from embedding provider

	// Providers
	EmbeddingProvider    string
	LLMProvider          string
	GeminiAPIKey         string
	GeminiEmbedModel     string
	GeminiGenModel       string
	OpenAIAPIKey         string
	OpenAIEmbedModel     string
	OpenAIGenModel       string
	TokenizerName        string
	Temperature          float64

	// Ingestion limits
	MaxDocsPerBatch  int
	MaxFileBytes     int64
	MaxPages         int
	MaxChunkTokens   int
	MinChunkTokens   int
	OverlapTokens    int
	MaxContextTokens int
	FileStorageDir   string
	DedupScope       string
	DedupPolicy      string
	CompressMinBytes int

	// Retrieval
	TopK            int
	MMRLambda       float64
	RetrievalMethod string
	RRFk            int
	BM25k1          float64
	BM25b           float64
	BM25CacheTTLSec int
	BM25Stopwords   bool

	// Concurrency / retry
	IngestConcurrency int
	IndexConcurrency  int
	EmbedBatchSize    int
	UpsertBatchSize   int
	EmbedRetryMax     int
	EmbedRetryDelayMs int
	LLMTimeoutSeconds int

	// HTTP rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Janitor
	JanitorIntervalMin int
	JanitorGraceMin    int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/docqa"),
		DBName:   getEnv("DB_NAME", "docqa"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		VectorStore:     getEnv("VECTOR_STORE", VectorStorePgvector),
		PostgresDSN:     getEnv("POSTGRES_DSN", "postgres://localhost:5432/docqa_vectors"),
		VectorIndexName: getEnv("VECTOR_INDEX_NAME", "chunk_vectors"),
		VectorMetric:    getEnv("VECTOR_METRIC", "cosine"),
		VectorDimension: getEnvInt("VECTOR_DIMENSION", 0),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", ProviderGemini),
		LLMProvider:       getEnv("LLM_PROVIDER", ProviderGemini),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiEmbedModel:  getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		GeminiGenModel:    getEnv("GEMINI_GEN_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbedModel:  getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		OpenAIGenModel:    getEnv("OPENAI_GEN_MODEL", "gpt-4o-mini"),
		TokenizerName:     getEnv("TOKENIZER_NAME", "cl100k_base"),
		Temperature:       getEnvFloat("LLM_TEMPERATURE", 0.1),

		MaxDocsPerBatch:  getEnvInt("MAX_DOCS_PER_BATCH", 20),
		MaxFileBytes:     getEnvInt64("MAX_FILE_BYTES", 50<<20),
		MaxPages:         getEnvInt("MAX_PAGES", 1000),
		MaxChunkTokens:   getEnvInt("MAX_CHUNK_TOKENS", 1000),
		MinChunkTokens:   getEnvInt("MIN_CHUNK_TOKENS", 100),
		OverlapTokens:    getEnvInt("OVERLAP_TOKENS", 150),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 6000),
		FileStorageDir:   getEnv("FILE_STORAGE_DIR", "./storage"),
		DedupScope:       getEnv("DEDUP_SCOPE", DedupScopeGlobal),
		DedupPolicy:      getEnv("DEDUP_POLICY", DedupPolicyReject),
		CompressMinBytes: getEnvInt("COMPRESS_MIN_BYTES", 2048),

		TopK:            getEnvInt("TOP_K", 10),
		MMRLambda:       getEnvFloat("MMR_LAMBDA", 0.5),
		RetrievalMethod: getEnv("RETRIEVAL_METHOD", "hybrid"),
		RRFk:            getEnvInt("RRF_K", 60),
		BM25k1:          getEnvFloat("BM25_K1", 1.2),
		BM25b:           getEnvFloat("BM25_B", 0.75),
		BM25CacheTTLSec: getEnvInt("BM25_CACHE_TTL_SECONDS", 300),
		BM25Stopwords:   getEnvBool("BM25_STOPWORDS", false),

		IngestConcurrency: getEnvInt("INGEST_CONCURRENCY", 5),
		IndexConcurrency:  getEnvInt("INDEX_CONCURRENCY", 2),
		EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 32),
		UpsertBatchSize:   getEnvInt("UPSERT_BATCH_SIZE", 100),
		EmbedRetryMax:     getEnvInt("EMBED_RETRY_MAX", 3),
		EmbedRetryDelayMs: getEnvInt("EMBED_RETRY_DELAY_MS", 500),
		LLMTimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 30),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		JanitorIntervalMin: getEnvInt("JANITOR_INTERVAL_MINUTES", 10),
		JanitorGraceMin:    getEnvInt("JANITOR_GRACE_MINUTES", 15),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.EmbeddingProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for embedding provider %q", c.EmbeddingProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for embedding provider %q", c.EmbeddingProvider)
		}
	default:
		return fmt.Errorf("unknown embedding provider: %s", c.EmbeddingProvider)
	}

	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for LLM provider %q", c.LLMProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for LLM provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM provider: %s", c.LLMProvider)
	}

	switch c.DedupScope {
	case DedupScopeGlobal, DedupScopePerUpload:
	default:
		return fmt.Errorf("unknown dedup scope: %s", c.DedupScope)
	}

	switch c.DedupPolicy {
	case DedupPolicyReject, DedupPolicySkipEmbed:
	default:
		return fmt.Errorf("unknown dedup policy: %s", c.DedupPolicy)
	}

	if c.MinChunkTokens <= 0 || c.MaxChunkTokens < c.MinChunkTokens {
		return fmt.Errorf("invalid chunk token bounds: min=%d max=%d", c.MinChunkTokens, c.MaxChunkTokens)
	}
	if c.OverlapTokens >= c.MaxChunkTokens {
		return fmt.Errorf("OVERLAP_TOKENS (%d) must be below MAX_CHUNK_TOKENS (%d)", c.OverlapTokens, c.MaxChunkTokens)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
