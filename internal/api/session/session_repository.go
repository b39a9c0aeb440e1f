package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/api"
	"github.com/safar-labs/travelmate/internal/types"
)

// ErrSessionNotFound reports an unknown session or one owned by another user.
var ErrSessionNotFound = errors.New("chat session not found")

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	CreateSession(ctx context.Context, userID uuid.UUID, title string) (*types.ChatSession, error)
	GetSessions(ctx context.Context, userID uuid.UUID) ([]types.ChatSession, error)
	RenameSession(ctx context.Context, userID, sessionID uuid.UUID, title string) error
	DeactivateSession(ctx context.Context, userID, sessionID uuid.UUID) error
}

type RepositoryImpl struct {
	logger *slog.Logger
	pgpool api.PGXPool
}

func NewRepositoryImpl(pgpool api.PGXPool, logger *slog.Logger) *RepositoryImpl {
	return &RepositoryImpl{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *RepositoryImpl) CreateSession(ctx context.Context, userID uuid.UUID, title string) (*types.ChatSession, error) {
	ctx, span := otel.Tracer("SessionRepo").Start(ctx, "CreateSession", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "chat_sessions"),
	))
	defer span.End()

	query := `
        INSERT INTO chat_sessions (user_id, title)
        VALUES ($1, $2)
        RETURNING id, user_id, title, is_active, created_at, updated_at
    `

	var session types.ChatSession
	err := r.pgpool.QueryRow(ctx, query, userID, title).Scan(
		&session.ID, &session.UserID, &session.Title,
		&session.IsActive, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert session")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to create chat session", err)
	}

	span.SetAttributes(attribute.String("session.id", session.ID.String()))
	span.SetStatus(codes.Ok, "Session created")
	return &session, nil
}

func (r *RepositoryImpl) GetSessions(ctx context.Context, userID uuid.UUID) ([]types.ChatSession, error) {
	ctx, span := otel.Tracer("SessionRepo").Start(ctx, "GetSessions", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "chat_sessions"),
	))
	defer span.End()

	query := `
        SELECT id, user_id, title, is_active, created_at, updated_at
        FROM chat_sessions
        WHERE user_id = $1 AND is_active = TRUE
        ORDER BY updated_at DESC
    `

	rows, err := r.pgpool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query sessions")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to fetch chat sessions", err)
	}
	defer rows.Close()

	var sessions []types.ChatSession
	for rows.Next() {
		var session types.ChatSession
		if err := rows.Scan(
			&session.ID, &session.UserID, &session.Title,
			&session.IsActive, &session.CreatedAt, &session.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to scan session row")
			return nil, types.NewDatabaseError("failed to scan chat session", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, types.NewDatabaseError("failed to iterate chat sessions", err)
	}

	span.SetAttributes(attribute.Int("sessions", len(sessions)))
	span.SetStatus(codes.Ok, "Sessions fetched")
	return sessions, nil
}

func (r *RepositoryImpl) RenameSession(ctx context.Context, userID, sessionID uuid.UUID, title string) error {
	ctx, span := otel.Tracer("SessionRepo").Start(ctx, "RenameSession", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "chat_sessions"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`UPDATE chat_sessions SET title = $1, updated_at = CURRENT_TIMESTAMP
         WHERE id = $2 AND user_id = $3 AND is_active = TRUE`,
		title, sessionID, userID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to rename session")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.NewDatabaseError("failed to rename chat session", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Session not found")
		return ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "Session renamed")
	return nil
}

func (r *RepositoryImpl) DeactivateSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	ctx, span := otel.Tracer("SessionRepo").Start(ctx, "DeactivateSession", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "chat_sessions"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`UPDATE chat_sessions SET is_active = FALSE, updated_at = CURRENT_TIMESTAMP
         WHERE id = $1 AND user_id = $2 AND is_active = TRUE`,
		sessionID, userID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to deactivate session")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.NewDatabaseError("failed to deactivate chat session", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Session not found")
		return ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "Session deactivated")
	return nil
}
