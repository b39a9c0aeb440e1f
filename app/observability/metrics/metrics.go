package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	ChatQueriesTotal          metric.Int64Counter
	ChatQueryDurationSeconds  metric.Float64Histogram
	ChatQueryErrorsTotal      metric.Int64Counter
	EmbeddingRequestsTotal    metric.Int64Counter
	EmbeddingDurationSeconds  metric.Float64Histogram
	GenerationDurationSeconds metric.Float64Histogram
	IndexBuildsTotal          metric.Int64Counter
	DbQueryErrorsTotal        metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments only once.
// It gets the Meter from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("travelmate")
		var err error
		m := &AppMetrics{}

		m.ChatQueriesTotal, err = meter.Int64Counter(
			"chat_queries_total",
			metric.WithDescription("Total number of chat pipeline queries completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create chat_queries_total: %v", err)
		}

		m.ChatQueryDurationSeconds, err = meter.Float64Histogram(
			"chat_query_duration_seconds",
			metric.WithDescription("End-to-end duration of chat pipeline queries in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create chat_query_duration_seconds: %v", err)
		}

		m.ChatQueryErrorsTotal, err = meter.Int64Counter(
			"chat_query_errors_total",
			metric.WithDescription("Total number of failed chat pipeline queries"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create chat_query_errors_total: %v", err)
		}

		m.EmbeddingRequestsTotal, err = meter.Int64Counter(
			"embedding_requests_total",
			metric.WithDescription("Total number of embedding backend calls"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create embedding_requests_total: %v", err)
		}

		m.EmbeddingDurationSeconds, err = meter.Float64Histogram(
			"embedding_duration_seconds",
			metric.WithDescription("Duration of embedding backend calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create embedding_duration_seconds: %v", err)
		}

		m.GenerationDurationSeconds, err = meter.Float64Histogram(
			"generation_duration_seconds",
			metric.WithDescription("Duration of generation backend calls in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create generation_duration_seconds: %v", err)
		}

		m.IndexBuildsTotal, err = meter.Int64Counter(
			"index_builds_total",
			metric.WithDescription("Total number of catalog index builds (cache misses)"),
			metric.WithUnit("{build}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create index_builds_total: %v", err)
		}

		m.DbQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
