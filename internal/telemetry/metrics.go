package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	DocumentsIngested  metric.Int64Counter
	ChunksIndexed      metric.Int64Counter
	EmbedTokensUsed    metric.Int64Counter
	EmbedDuration      metric.Float64Histogram
	RetrievalDuration  metric.Float64Histogram
	GenerationDuration metric.Float64Histogram
	QueriesAnswered    metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("docqa-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	documentsIngested, err := meter.Int64Counter(
		"ingest.documents.total",
		metric.WithDescription("Documents ingested, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"index.chunks.total",
		metric.WithDescription("Chunks embedded and upserted"),
	)
	if err != nil {
		return nil, err
	}

	embedTokensUsed, err := meter.Int64Counter(
		"embed.tokens.total",
		metric.WithDescription("Tokens consumed by embedding calls"),
	)
	if err != nil {
		return nil, err
	}

	embedDuration, err := meter.Float64Histogram(
		"embed.batch.duration",
		metric.WithDescription("Embedding batch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"query.retrieval.duration",
		metric.WithDescription("Retrieval stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationDuration, err := meter.Float64Histogram(
		"query.generation.duration",
		metric.WithDescription("Generation stage duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queriesAnswered, err := meter.Int64Counter(
		"query.answered.total",
		metric.WithDescription("Queries answered, by retrieval method"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:     requestCounter,
		RequestDuration:    requestDuration,
		DocumentsIngested:  documentsIngested,
		ChunksIndexed:      chunksIndexed,
		EmbedTokensUsed:    embedTokensUsed,
		EmbedDuration:      embedDuration,
		RetrievalDuration:  retrievalDuration,
		GenerationDuration: generationDuration,
		QueriesAnswered:    queriesAnswered,
	}, nil
}

// RecordRequest records one HTTP request observation.
func (m *Metrics) RecordRequest(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), seconds, attrs)
}
