package chat

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/safar-labs/travelmate/internal/api"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	ProcessChatQuery(w http.ResponseWriter, r *http.Request)
	GetChatHistory(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	chatService Service
	logger      *slog.Logger
}

func NewHandlerImpl(chatService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		chatService: chatService,
		logger:      logger,
	}
}

// ChatQueryRequest is the request body for ProcessChatQuery.
type ChatQueryRequest struct {
	Query     string `json:"query"`
	MaxPlaces int    `json:"max_places,omitempty"`
}

// ProcessChatQuery handles POST /chat/query/{sessionID}.
func (h *HandlerImpl) ProcessChatQuery(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ChatHandler").Start(r.Context(), "ProcessChatQuery", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat/query/{sessionID}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "ProcessChatQuery"))

	sessionIDStr := chi.URLParam(r, "sessionID")
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		l.ErrorContext(ctx, "Invalid session ID format", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid session ID format")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID format in URL")
		return
	}
	span.SetAttributes(attribute.String("session.id", sessionID.String()))
	l = l.With(slog.String("sessionID", sessionID.String()))

	var req ChatQueryRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Invalid request body", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.chatService.ProcessQuery(ctx, sessionID, req.Query, req.MaxPlaces)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			l.WarnContext(ctx, "Session not found")
			span.SetStatus(codes.Error, "Session not found")
			api.ErrorResponse(w, r, http.StatusNotFound, "Chat session not found")
			return
		}
		l.ErrorContext(ctx, "Failed to process chat query", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to process chat query")
		api.ErrorResponseFromErr(w, r, err)
		return
	}

	span.SetStatus(codes.Ok, "Query processed")
	api.WriteJSONResponse(w, r, http.StatusOK, message)
}

// GetChatHistory handles GET /chat/history/{sessionID}.
func (h *HandlerImpl) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("ChatHandler").Start(r.Context(), "GetChatHistory", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat/history/{sessionID}"),
	))
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetChatHistory"))

	sessionIDStr := chi.URLParam(r, "sessionID")
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		l.ErrorContext(ctx, "Invalid session ID format", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid session ID format")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID format in URL")
		return
	}
	span.SetAttributes(attribute.String("session.id", sessionID.String()))

	messages, err := h.chatService.GetHistory(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			span.SetStatus(codes.Error, "Session not found")
			api.ErrorResponse(w, r, http.StatusNotFound, "Chat session not found")
			return
		}
		l.ErrorContext(ctx, "Failed to fetch chat history", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch chat history")
		api.ErrorResponseFromErr(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("messages", len(messages)))
	span.SetStatus(codes.Ok, "History fetched")
	api.WriteJSONResponse(w, r, http.StatusOK, messages)
}
