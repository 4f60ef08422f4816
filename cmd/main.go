package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/config"
	"docqa-platform/internal/logger"
	"docqa-platform/internal/queue"
	"docqa-platform/internal/store"
	"docqa-platform/internal/telemetry"
	"docqa-platform/internal/tokenizer"
	"docqa-platform/internal/vector"
	"docqa-platform/middleware"
	"docqa-platform/routes"
	"docqa-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("docqa-platform")
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		slog.Warn("metrics disabled", "error", err)
	}

	// Chunk boundaries and context budgets are meaningless under the wrong
	// tokenizer, so a missing one refuses to start.
	counter, err := tokenizer.Get(cfg.TokenizerName)
	if err != nil {
		log.Fatal("Tokenizer unavailable:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	meta, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.DBName)
	cancel()
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		meta.Close(ctx)
	}()
	if err := meta.EnsureIndexes(context.Background()); err != nil {
		log.Fatal("Failed to create indexes:", err)
	}

	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	generator, err := ai.NewGenerator(cfg)
	if err != nil {
		log.Fatal("Failed to initialize generator:", err)
	}

	dim := cfg.VectorDimension
	if dim == 0 {
		dim = embedder.Dimension()
	}
	// A dimension conflict with an existing index is unrecoverable.
	vectors, err := vector.NewStore(context.Background(), cfg, dim)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}
	defer vectors.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()
	enqueuer := queue.NewEnqueuer(queueClient)

	keyword := services.NewKeywordIndex(meta, cfg.BM25k1, cfg.BM25b,
		time.Duration(cfg.BM25CacheTTLSec)*time.Second, cfg.BM25Stopwords)
	validator := services.NewFileValidator(cfg.MaxFileBytes)
	extractor := services.NewExtractor(cfg.MaxPages)
	chunker := services.NewChunker(counter, cfg.MaxChunkTokens, cfg.MinChunkTokens, cfg.OverlapTokens)
	ingestion := services.NewIngestionService(cfg, meta, validator, extractor, chunker, enqueuer, keyword)
	retrieval := services.NewRetrievalService(meta, embedder, vectors, keyword, cfg.RRFk, cfg.MMRLambda)
	engine := services.NewQueryEngine(meta, retrieval, generator, counter,
		cfg.MaxContextTokens, cfg.TopK, cfg.RetrievalMethod, cfg.Temperature)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	router.GET("/health", routes.HandleHealth())
	router.GET("/ready", routes.HandleReady(meta, vectors))
	router.GET("/stats", routes.HandleStats(vectors))

	api := router.Group("/api")
	{
		// The batch limit bounds the whole multipart body, with headroom
		// for form framing.
		uploadBodyLimit := cfg.MaxFileBytes*int64(cfg.MaxDocsPerBatch) + 1<<20
		api.POST("/uploads", middleware.RequestSizeLimit(uploadBodyLimit), routes.HandleCreateUpload(ingestion))
		api.GET("/uploads", routes.HandleListUploads(meta))
		api.GET("/uploads/:id", routes.HandleGetUpload(meta))
		api.GET("/uploads/:id/progress", routes.HandleGetUploadProgress(meta))
		api.DELETE("/uploads/:id", routes.HandleDeleteUpload(ingestion))

		api.GET("/documents", routes.HandleListDocuments(meta))
		api.GET("/documents/:id", routes.HandleGetDocument(meta))
		api.GET("/documents/:id/chunks", routes.HandleGetDocumentChunks(meta))
		api.GET("/documents/:id/indexing-status", routes.HandleGetIndexingStatus(meta))
		api.POST("/documents/:id/reindex", routes.HandleReindexDocument(meta, enqueuer))
		api.DELETE("/documents/:id", routes.HandleDeleteDocument(ingestion))

		api.POST("/queries", routes.HandleAsk(engine))
		api.GET("/queries", routes.HandleListQueries(meta))
		api.GET("/queries/:id", routes.HandleGetQuery(meta))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "embedder", embedder.ModelName(), "dimension", dim)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	slog.Info("server exited")
}
