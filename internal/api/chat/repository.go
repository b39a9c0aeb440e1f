package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/api"
	"github.com/safar-labs/travelmate/internal/types"
)

// ErrSessionNotFound reports an unknown or inactive chat session.
var ErrSessionNotFound = errors.New("chat session not found")

var _ Repository = (*RepositoryImpl)(nil)

// Repository is the collaborator store surface the pipeline reads from and
// the chat handler writes to.
type Repository interface {
	// TouchSession bumps the session's activity timestamp and reports
	// ErrSessionNotFound when the session does not exist.
	TouchSession(ctx context.Context, sessionID uuid.UUID) error
	SaveMessage(ctx context.Context, message types.ChatMessage) (int64, error)
	// GetRecentMessages returns the most recent limit turns in chronological
	// order.
	GetRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error)
	// GetLastAppliedFilters returns the latest assistant-authored filter
	// snapshot for the session, independent of any history window.
	GetLastAppliedFilters(ctx context.Context, sessionID uuid.UUID) (types.FilterSet, bool, error)
	GetAllMessages(ctx context.Context, sessionID uuid.UUID) ([]types.ChatMessage, error)
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

func (r *RepositoryImpl) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "TouchSession", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "chat_sessions"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND is_active = TRUE`,
		sessionID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to update session activity")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.NewDatabaseError("failed to update session activity", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "Session not found")
		return ErrSessionNotFound
	}

	span.SetStatus(codes.Ok, "Session touched")
	return nil
}

func (r *RepositoryImpl) SaveMessage(ctx context.Context, message types.ChatMessage) (int64, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "SaveMessage", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "messages"),
		attribute.String("session.id", message.SessionID.String()),
		attribute.String("message.role", string(message.Role)),
	))
	defer span.End()

	filtersJSON, err := json.Marshal(message.AppliedFilters)
	if err != nil {
		span.RecordError(err)
		return 0, types.NewDatabaseError("failed to marshal applied filters", err)
	}

	filterAction := message.FilterAction
	if filterAction == "" {
		filterAction = types.FilterActionKeep
	}

	query := `
        INSERT INTO messages (session_id, role, content, applied_filters, filter_action)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING message_id
    `

	var messageID int64
	err = r.pgpool.QueryRow(ctx, query,
		message.SessionID,
		message.Role,
		message.Content,
		filtersJSON,
		filterAction,
	).Scan(&messageID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert message")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return 0, types.NewDatabaseError("failed to save message", err)
	}

	span.SetAttributes(attribute.Int64("message.id", messageID))
	span.SetStatus(codes.Ok, "Message saved")
	return messageID, nil
}

func (r *RepositoryImpl) GetRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "GetRecentMessages", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "messages"),
		attribute.String("session.id", sessionID.String()),
		attribute.Int("limit", limit),
	))
	defer span.End()

	query := `
        SELECT message_id, session_id, role, timestamp, content, applied_filters, filter_action
        FROM messages
        WHERE session_id = $1
        ORDER BY timestamp DESC
        LIMIT $2
    `

	rows, err := r.pgpool.Query(ctx, query, sessionID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query messages")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to fetch chat history", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to scan messages")
		return nil, types.NewDatabaseError("failed to scan chat history", err)
	}

	// The store orders newest-first; reverse so callers see chronological
	// order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	span.SetAttributes(attribute.Int("messages", len(messages)))
	span.SetStatus(codes.Ok, "History fetched")
	return messages, nil
}

func (r *RepositoryImpl) GetLastAppliedFilters(ctx context.Context, sessionID uuid.UUID) (types.FilterSet, bool, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "GetLastAppliedFilters", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "messages"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	query := `
        SELECT applied_filters
        FROM messages
        WHERE session_id = $1 AND role = 'assistant'
        ORDER BY timestamp DESC
        LIMIT 1
    `

	var filtersJSON []byte
	err := r.pgpool.QueryRow(ctx, query, sessionID).Scan(&filtersJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Ok, "No prior filters")
		return types.FilterSet{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query last filters")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.FilterSet{}, false, types.NewDatabaseError("failed to fetch last applied filters", err)
	}

	var filters types.FilterSet
	if err := json.Unmarshal(filtersJSON, &filters); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to decode last filters")
		return types.FilterSet{}, false, types.NewDatabaseError("failed to decode last applied filters", err)
	}

	span.SetStatus(codes.Ok, "Last filters fetched")
	return filters, true, nil
}

func (r *RepositoryImpl) GetAllMessages(ctx context.Context, sessionID uuid.UUID) ([]types.ChatMessage, error) {
	ctx, span := otel.Tracer("ChatRepo").Start(ctx, "GetAllMessages", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "messages"),
		attribute.String("session.id", sessionID.String()),
	))
	defer span.End()

	query := `
        SELECT message_id, session_id, role, timestamp, content, applied_filters, filter_action
        FROM messages
        WHERE session_id = $1
        ORDER BY timestamp ASC
    `

	rows, err := r.pgpool.Query(ctx, query, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query messages")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to fetch chat history", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to scan messages")
		return nil, types.NewDatabaseError("failed to scan chat history", err)
	}

	span.SetAttributes(attribute.Int("messages", len(messages)))
	span.SetStatus(codes.Ok, "History fetched")
	return messages, nil
}

func scanMessages(rows pgx.Rows) ([]types.ChatMessage, error) {
	var messages []types.ChatMessage
	for rows.Next() {
		var (
			msg         types.ChatMessage
			filtersJSON []byte
		)
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Timestamp, &msg.Content, &filtersJSON, &msg.FilterAction); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if len(filtersJSON) > 0 {
			if err := json.Unmarshal(filtersJSON, &msg.AppliedFilters); err != nil {
				return nil, fmt.Errorf("failed to decode applied filters: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
