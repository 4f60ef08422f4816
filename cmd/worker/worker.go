package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"docqa-platform/internal/ai"
	"docqa-platform/internal/config"
	"docqa-platform/internal/logger"
	"docqa-platform/internal/queue"
	"docqa-platform/internal/store"
	"docqa-platform/internal/telemetry"
	"docqa-platform/internal/vector"
	"docqa-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("docqa-worker")
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

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

	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}

	dim := cfg.VectorDimension
	if dim == 0 {
		dim = embedder.Dimension()
	}
	vectors, err := vector.NewStore(context.Background(), cfg, dim)
	if err != nil {
		log.Fatal("Failed to initialize vector store:", err)
	}
	defer vectors.Close()

	indexer := services.NewIndexerService(meta, embedder, vectors,
		cfg.IndexConcurrency, cfg.EmbedBatchSize, cfg.UpsertBatchSize)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.IndexConcurrency + 2,
			Queues: map[string]int{
				queue.QueueIndexing: 3,
				queue.QueueCleanup:  1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				slog.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	queue.NewTaskProcessor(indexer).Register(mux)

	// The janitor re-enqueues documents whose tasks were lost.
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()
	janitor := services.NewJanitor(meta, queue.NewEnqueuer(queueClient),
		time.Duration(cfg.JanitorIntervalMin)*time.Minute,
		time.Duration(cfg.JanitorGraceMin)*time.Minute)
	if err := janitor.Start(); err != nil {
		log.Fatal("Failed to start janitor:", err)
	}
	defer janitor.Stop()

	go func() {
		slog.Info("worker starting",
			"queues", "indexing,cleanup",
			"index_concurrency", cfg.IndexConcurrency,
			"redis", cfg.RedisURL)
		if err := server.Run(mux); err != nil {
			log.Fatalf("Failed to start worker: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down worker")
	server.Shutdown()
	slog.Info("worker exited")
}
