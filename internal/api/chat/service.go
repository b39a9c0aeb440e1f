package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/api/filters"
	"github.com/safar-labs/travelmate/internal/types"
)

// Generator is the slice of the AI client the pipeline needs.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, config *genai.GenerateContentConfig) (string, error)
}

var _ Service = (*ServiceImpl)(nil)

// Service answers conversational place queries and manages the per-session
// message log around them.
type Service interface {
	// Answer runs the pipeline for one turn without persisting anything.
	Answer(ctx context.Context, sessionID uuid.UUID, query string, maxPlaces int) (*types.QueryResponse, error)
	// ProcessQuery validates the session, persists the human turn, answers,
	// persists the assistant turn and returns it.
	ProcessQuery(ctx context.Context, sessionID uuid.UUID, query string, maxPlaces int) (*types.ChatMessage, error)
	GetHistory(ctx context.Context, sessionID uuid.UUID) ([]types.ChatMessage, error)
}

type ServiceImpl struct {
	logger       *slog.Logger
	repo         Repository
	retriever    *Retriever
	extractor    *filters.Extractor
	generator    Generator
	historyLimit int
	maxPlaces    int
	temperature  float32
}

func NewServiceImpl(repo Repository, retriever *Retriever, extractor *filters.Extractor, generator Generator, historyLimit, maxPlaces int, temperature float32, logger *slog.Logger) *ServiceImpl {
	if historyLimit <= 0 {
		historyLimit = 6
	}
	if maxPlaces <= 0 {
		maxPlaces = 5
	}
	return &ServiceImpl{
		logger:       logger,
		repo:         repo,
		retriever:    retriever,
		extractor:    extractor,
		generator:    generator,
		historyLimit: historyLimit,
		maxPlaces:    maxPlaces,
		temperature:  temperature,
	}
}

func (s *ServiceImpl) Answer(ctx context.Context, sessionID uuid.UUID, query string, maxPlaces int) (*types.QueryResponse, error) {
	ctx, span := otel.Tracer("ChatService").Start(ctx, "Answer", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()
	metrics.Get().ChatQueriesTotal.Add(ctx, 1)

	if isBlank(query) {
		span.SetStatus(codes.Error, "Empty query")
		return nil, types.NewInvalidInputError("query must not be empty", nil)
	}
	if maxPlaces <= 0 {
		maxPlaces = s.maxPlaces
	}

	carried, _, err := s.repo.GetLastAppliedFilters(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	history, err := s.recentTurns(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	applied, action := s.resolveFilters(query, carried)
	span.SetAttributes(attribute.String("filter.action", string(action)))

	places, err := s.retriever.Retrieve(ctx, query, applied, maxPlaces)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Retrieval failed")
		return nil, err
	}

	placesContext := buildPlacesContext(places)
	prompt := buildAnswerPrompt(query, placesContext, applied, history, maxPlaces)

	raw, err := s.generator.GenerateContent(ctx, prompt, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.temperature),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Generation failed")
		return nil, err
	}

	resp, err := parseQueryResponse(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Unparseable model reply")
		return nil, err
	}

	// The pipeline, not the model, owns filter state and the set of places
	// that may be shown.
	resp.Places = keepRetrieved(resp.Places, places)
	resp.AppliedFilters = applied
	resp.FilterAction = action
	resp.Context = &placesContext

	span.SetAttributes(attribute.Int("places", len(resp.Places)))
	span.SetStatus(codes.Ok, "Query answered")
	return resp, nil
}

func (s *ServiceImpl) ProcessQuery(ctx context.Context, sessionID uuid.UUID, query string, maxPlaces int) (*types.ChatMessage, error) {
	ctx, span := otel.Tracer("ChatService").Start(ctx, "ProcessQuery", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.Get().ChatQueryDurationSeconds.Record(ctx, time.Since(start).Seconds())
	}()

	if isBlank(query) {
		span.SetStatus(codes.Error, "Empty query")
		return nil, types.NewInvalidInputError("query must not be empty", nil)
	}

	if err := s.repo.TouchSession(ctx, sessionID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	humanContent, err := json.Marshal(types.HumanContent{Message: query})
	if err != nil {
		span.RecordError(err)
		return nil, types.NewInvalidInputError("failed to encode query", err)
	}
	if _, err := s.repo.SaveMessage(ctx, types.ChatMessage{
		SessionID:    sessionID,
		Role:         types.RoleHuman,
		Content:      humanContent,
		FilterAction: types.FilterActionKeep,
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp, err := s.Answer(ctx, sessionID, query, maxPlaces)
	if err != nil {
		metrics.Get().ChatQueryErrorsTotal.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Pipeline failed")
		return nil, err
	}

	assistantContent, err := json.Marshal(resp)
	if err != nil {
		span.RecordError(err)
		return nil, types.NewResponseGenerationError("failed to encode response", err)
	}
	message := types.ChatMessage{
		SessionID:      sessionID,
		Role:           types.RoleAssistant,
		Content:        assistantContent,
		AppliedFilters: resp.AppliedFilters,
		FilterAction:   resp.FilterAction,
	}
	messageID, err := s.repo.SaveMessage(ctx, message)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	message.MessageID = messageID

	span.SetStatus(codes.Ok, "Turn persisted")
	return &message, nil
}

func (s *ServiceImpl) GetHistory(ctx context.Context, sessionID uuid.UUID) ([]types.ChatMessage, error) {
	ctx, span := otel.Tracer("ChatService").Start(ctx, "GetHistory", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	if err := s.repo.TouchSession(ctx, sessionID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return s.repo.GetAllMessages(ctx, sessionID)
}

// resolveFilters applies the reset-dominance rule, then merges this turn's
// extracted intent into the carried filters.
func (s *ServiceImpl) resolveFilters(query string, carried types.FilterSet) (types.FilterSet, types.FilterAction) {
	if s.extractor.ShouldClear(query) {
		return types.FilterSet{}, types.FilterActionClear
	}
	extracted := s.extractor.Extract(query, carried)
	if filtersEqual(extracted, carried) {
		return carried, types.FilterActionKeep
	}
	return extracted, types.FilterActionUpdate
}

func (s *ServiceImpl) recentTurns(ctx context.Context, sessionID uuid.UUID) ([]types.ConversationTurn, error) {
	messages, err := s.repo.GetRecentMessages(ctx, sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	turns := make([]types.ConversationTurn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, types.ConversationTurn{
			Role:      msg.Role,
			Content:   transcriptText(msg),
			Timestamp: msg.Timestamp,
		})
	}
	return turns, nil
}

// transcriptText reduces a stored message to the text placed in the prompt
// transcript. Human turns unwrap to the raw query; assistant turns keep the
// whole serialized response so prior recommendations stay visible to the
// model on follow-up turns.
func transcriptText(msg types.ChatMessage) string {
	if msg.Role == types.RoleHuman {
		var content types.HumanContent
		if err := json.Unmarshal(msg.Content, &content); err == nil && content.Message != "" {
			return content.Message
		}
	}
	return string(msg.Content)
}

// keepRetrieved drops any place the model named that retrieval did not
// return, and substitutes the canonical retrieved record for those it kept.
func keepRetrieved(proposed, retrieved []types.PlaceResponse) []types.PlaceResponse {
	byID := make(map[string]types.PlaceResponse, len(retrieved))
	for _, p := range retrieved {
		byID[p.PlaceID] = p
	}
	kept := make([]types.PlaceResponse, 0, len(proposed))
	seen := make(map[string]bool, len(proposed))
	for _, p := range proposed {
		canonical, ok := byID[p.PlaceID]
		if !ok || seen[p.PlaceID] {
			continue
		}
		seen[p.PlaceID] = true
		kept = append(kept, canonical)
	}
	return kept
}

func filtersEqual(a, b types.FilterSet) bool {
	return ptrEq(a.City, b.City) &&
		ptrEq(a.MainCategory, b.MainCategory) &&
		ptrEq(a.Types, b.Types) &&
		ptrEq(a.MinRating, b.MinRating)
}

func ptrEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
