package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/safar-labs/travelmate/internal/types"
)

const defaultTitle = "New conversation"

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	CreateSession(ctx context.Context, userID uuid.UUID, title string) (*types.ChatSession, error)
	GetSessions(ctx context.Context, userID uuid.UUID) ([]types.ChatSession, error)
	RenameSession(ctx context.Context, userID, sessionID uuid.UUID, title string) error
	DeactivateSession(ctx context.Context, userID, sessionID uuid.UUID) error
}

type ServiceImpl struct {
	logger *slog.Logger
	repo   Repository
}

func NewServiceImpl(repo Repository, logger *slog.Logger) *ServiceImpl {
	return &ServiceImpl{
		logger: logger,
		repo:   repo,
	}
}

func (s *ServiceImpl) CreateSession(ctx context.Context, userID uuid.UUID, title string) (*types.ChatSession, error) {
	ctx, span := otel.Tracer("SessionService").Start(ctx, "CreateSession", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}

	session, err := s.repo.CreateSession(ctx, userID, title)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create session")
		return nil, err
	}

	s.logger.InfoContext(ctx, "Chat session created",
		slog.String("sessionID", session.ID.String()),
		slog.String("userID", userID.String()))
	span.SetStatus(codes.Ok, "Session created")
	return session, nil
}

func (s *ServiceImpl) GetSessions(ctx context.Context, userID uuid.UUID) ([]types.ChatSession, error) {
	ctx, span := otel.Tracer("SessionService").Start(ctx, "GetSessions", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	return s.repo.GetSessions(ctx, userID)
}

func (s *ServiceImpl) RenameSession(ctx context.Context, userID, sessionID uuid.UUID, title string) error {
	ctx, span := otel.Tracer("SessionService").Start(ctx, "RenameSession", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	title = strings.TrimSpace(title)
	if title == "" {
		return types.NewInvalidInputError("session title must not be empty", nil)
	}
	return s.repo.RenameSession(ctx, userID, sessionID, title)
}

func (s *ServiceImpl) DeactivateSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	ctx, span := otel.Tracer("SessionService").Start(ctx, "DeactivateSession", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	return s.repo.DeactivateSession(ctx, userID, sessionID)
}
