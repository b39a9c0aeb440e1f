package session

import (
	"context"
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

	appMiddleware "github.com/safar-labs/travelmate/app/middleware"
	"github.com/safar-labs/travelmate/internal/api"
)

var _ Handler = (*HandlerImpl)(nil)

type Handler interface {
	CreateSession(w http.ResponseWriter, r *http.Request)
	GetSessions(w http.ResponseWriter, r *http.Request)
	RenameSession(w http.ResponseWriter, r *http.Request)
	DeactivateSession(w http.ResponseWriter, r *http.Request)
}

type HandlerImpl struct {
	sessionService Service
	logger         *slog.Logger
}

func NewHandlerImpl(sessionService Service, logger *slog.Logger) *HandlerImpl {
	return &HandlerImpl{
		sessionService: sessionService,
		logger:         logger,
	}
}

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

func (h *HandlerImpl) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SessionHandler").Start(r.Context(), "CreateSession", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat/sessions"),
	))
	defer span.End()

	userID, ok := authenticatedUser(ctx, w, r, span)
	if !ok {
		return
	}

	var req createSessionRequest
	if r.ContentLength > 0 {
		if err := api.DecodeJSONBody(w, r, &req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Invalid request body")
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	session, err := h.sessionService.CreateSession(ctx, userID, req.Title)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to create session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		api.ErrorResponseFromErr(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("session.id", session.ID.String()))
	span.SetStatus(codes.Ok, "Session created")
	api.WriteJSONResponse(w, r, http.StatusCreated, session)
}

func (h *HandlerImpl) GetSessions(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SessionHandler").Start(r.Context(), "GetSessions", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat/sessions"),
	))
	defer span.End()

	userID, ok := authenticatedUser(ctx, w, r, span)
	if !ok {
		return
	}

	sessions, err := h.sessionService.GetSessions(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to fetch sessions", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch sessions")
		api.ErrorResponseFromErr(w, r, err)
		return
	}

	span.SetAttributes(attribute.Int("sessions", len(sessions)))
	span.SetStatus(codes.Ok, "Sessions fetched")
	api.WriteJSONResponse(w, r, http.StatusOK, sessions)
}

func (h *HandlerImpl) RenameSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SessionHandler").Start(r.Context(), "RenameSession", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat/sessions/{sessionID}"),
	))
	defer span.End()

	userID, ok := authenticatedUser(ctx, w, r, span)
	if !ok {
		return
	}

	sessionID, ok := sessionIDParam(w, r, span)
	if !ok {
		return
	}

	var req renameSessionRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessionService.RenameSession(ctx, userID, sessionID, req.Title); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			span.SetStatus(codes.Error, "Session not found")
			api.ErrorResponse(w, r, http.StatusNotFound, "Chat session not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to rename session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to rename session")
		api.ErrorResponseFromErr(w, r, err)
		return
	}

	span.SetStatus(codes.Ok, "Session renamed")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func (h *HandlerImpl) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("SessionHandler").Start(r.Context(), "DeactivateSession", trace.WithAttributes(
		semconv.HTTPRequestMethodKey.String(r.Method),
		semconv.HTTPRouteKey.String("/chat/sessions/{sessionID}"),
	))
	defer span.End()

	userID, ok := authenticatedUser(ctx, w, r, span)
	if !ok {
		return
	}

	sessionID, ok := sessionIDParam(w, r, span)
	if !ok {
		return
	}

	if err := h.sessionService.DeactivateSession(ctx, userID, sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			span.SetStatus(codes.Error, "Session not found")
			api.ErrorResponse(w, r, http.StatusNotFound, "Chat session not found")
			return
		}
		h.logger.ErrorContext(ctx, "Failed to deactivate session", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to deactivate session")
		api.ErrorResponseFromErr(w, r, err)
		return
	}

	span.SetStatus(codes.Ok, "Session deactivated")
	api.WriteJSONResponse(w, r, http.StatusNoContent, nil)
}

func authenticatedUser(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span) (uuid.UUID, bool) {
	userIDStr, ok := appMiddleware.GetUserIDFromContext(ctx)
	if !ok || userIDStr == "" {
		span.SetStatus(codes.Error, "Missing authenticated user")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid user ID format")
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Invalid authenticated user")
		return uuid.Nil, false
	}
	span.SetAttributes(semconv.EnduserIDKey.String(userID.String()))
	return userID, true
}

func sessionIDParam(w http.ResponseWriter, r *http.Request, span trace.Span) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid session ID format")
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid session ID format in URL")
		return uuid.Nil, false
	}
	span.SetAttributes(attribute.String("session.id", sessionID.String()))
	return sessionID, true
}
