package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/api"
	"github.com/safar-labs/travelmate/internal/types"
)

const uniqueViolation = "23505"

var _ Repository = (*RepositoryImpl)(nil)

type Repository interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	StoreRefreshToken(ctx context.Context, token, userID uuid.UUID, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, token uuid.UUID) (*RefreshToken, error)
	InvalidateRefreshToken(ctx context.Context, token uuid.UUID) error
	InvalidateAllUserRefreshTokens(ctx context.Context, userID uuid.UUID) error
	GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error)
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

func (r *RepositoryImpl) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	query := `
        INSERT INTO users (username, email, password_hash)
        VALUES ($1, $2, $3)
        RETURNING id, username, email, password_hash, created_at
    `

	var user User
	err := r.pgpool.QueryRow(ctx, query, username, email, passwordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			span.SetStatus(codes.Error, "Email already registered")
			return nil, ErrConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to insert user")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to create user", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID.String()))
	span.SetStatus(codes.Ok, "User created")
	return &user, nil
}

func (r *RepositoryImpl) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByEmail", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	var user User
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE email = $1`,
		email).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "User not found")
		return nil, ErrUnauthenticated
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query user")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to fetch user", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return &user, nil
}

func (r *RepositoryImpl) GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	var user User
	err := r.pgpool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1`,
		userID).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "User not found")
		return nil, ErrUnauthenticated
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query user")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to fetch user", err)
	}

	span.SetStatus(codes.Ok, "User fetched")
	return &user, nil
}

func (r *RepositoryImpl) StoreRefreshToken(ctx context.Context, token, userID uuid.UUID, expiresAt time.Time) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "StoreRefreshToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "refresh_tokens"),
	))
	defer span.End()

	_, err := r.pgpool.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to store refresh token")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.NewDatabaseError("failed to store refresh token", err)
	}

	span.SetStatus(codes.Ok, "Refresh token stored")
	return nil
}

func (r *RepositoryImpl) GetRefreshToken(ctx context.Context, token uuid.UUID) (*RefreshToken, error) {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "GetRefreshToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "refresh_tokens"),
	))
	defer span.End()

	var rt RefreshToken
	err := r.pgpool.QueryRow(ctx,
		`SELECT token, user_id, expires_at, invalidated_at FROM refresh_tokens WHERE token = $1`,
		token).Scan(&rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.InvalidatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "Refresh token not found")
		return nil, ErrUnauthenticated
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to query refresh token")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return nil, types.NewDatabaseError("failed to fetch refresh token", err)
	}

	span.SetStatus(codes.Ok, "Refresh token fetched")
	return &rt, nil
}

func (r *RepositoryImpl) InvalidateRefreshToken(ctx context.Context, token uuid.UUID) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "InvalidateRefreshToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "refresh_tokens"),
	))
	defer span.End()

	_, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens SET invalidated_at = CURRENT_TIMESTAMP WHERE token = $1 AND invalidated_at IS NULL`,
		token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to invalidate refresh token")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.NewDatabaseError("failed to invalidate refresh token", err)
	}

	span.SetStatus(codes.Ok, "Refresh token invalidated")
	return nil
}

func (r *RepositoryImpl) InvalidateAllUserRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("AuthRepo").Start(ctx, "InvalidateAllUserRefreshTokens", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "refresh_tokens"),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	_, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens SET invalidated_at = CURRENT_TIMESTAMP WHERE user_id = $1 AND invalidated_at IS NULL`,
		userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to invalidate refresh tokens")
		metrics.Get().DbQueryErrorsTotal.Add(ctx, 1)
		return types.NewDatabaseError("failed to invalidate refresh tokens", err)
	}

	span.SetStatus(codes.Ok, "Refresh tokens invalidated")
	return nil
}
