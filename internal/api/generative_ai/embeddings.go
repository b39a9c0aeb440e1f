package generativeAI

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/types"
)

const defaultEmbeddingModel = "text-embedding-004"

// EmbeddingService generates text embeddings via the Gemini API.
type EmbeddingService struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewEmbeddingService(ctx context.Context, model string, logger *slog.Logger) (*EmbeddingService, error) {
	ctx, span := otel.Tracer("EmbeddingService").Start(ctx, "NewEmbeddingService")
	defer span.End()

	apiKey := os.Getenv("GOOGLE_GEMINI_API_KEY")
	if apiKey == "" {
		err := types.NewAPIKeyError("GOOGLE_GEMINI_API_KEY environment variable is not set")
		span.RecordError(err)
		span.SetStatus(codes.Error, "API key not set")
		return nil, err
	}

	if model == "" {
		model = defaultEmbeddingModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create Gemini client")
		return nil, types.NewEmbeddingsError("failed to initialize embedding backend", err)
	}

	span.SetStatus(codes.Ok, "Embedding service created successfully")
	return &EmbeddingService{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Embed maps text to a fixed-dimension vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("EmbeddingService").Start(ctx, "Embed")
	defer span.End()

	start := time.Now()
	resp, err := s.client.Models.EmbedContent(ctx, s.model, genai.Text(text), nil)
	metrics.Get().EmbeddingRequestsTotal.Add(ctx, 1)
	metrics.Get().EmbeddingDurationSeconds.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Embedding request failed")
		return nil, types.NewEmbeddingsError("embedding request failed", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		err := fmt.Errorf("empty embedding response from model %s", s.model)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Empty embedding response")
		return nil, types.NewEmbeddingsError("empty embedding response", err)
	}

	span.SetAttributes(attribute.Int("embedding.dimensions", len(resp.Embeddings[0].Values)))
	span.SetStatus(codes.Ok, "Embedding generated")
	return resp.Embeddings[0].Values, nil
}

// OpenAIEmbedder is an embedding provider using an OpenAI-compatible API.
// Selected with ai.provider=openai in config.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	logger *slog.Logger
}

func NewOpenAIEmbedder(baseURL, model string, logger *slog.Logger) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, types.NewAPIKeyError("OPENAI_API_KEY environment variable is not set")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(model),
		logger: logger,
	}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("EmbeddingService").Start(ctx, "EmbedOpenAI")
	defer span.End()

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	metrics.Get().EmbeddingRequestsTotal.Add(ctx, 1)
	metrics.Get().EmbeddingDurationSeconds.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Embedding request failed")
		return nil, types.NewEmbeddingsError("embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, types.NewEmbeddingsError("empty embedding response", nil)
	}

	span.SetStatus(codes.Ok, "Embedding generated")
	return resp.Data[0].Embedding, nil
}
