package auth

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	appMiddleware "github.com/safar-labs/travelmate/app/middleware"
	"github.com/safar-labs/travelmate/internal/types"
)

const minPasswordLength = 8

var _ Service = (*ServiceImpl)(nil)

type Service interface {
	Register(ctx context.Context, username, email, password string) (*User, error)
	Login(ctx context.Context, email, password string) (*TokenResponse, error)
	// RefreshSession rotates the refresh token and issues a new pair.
	RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

type ServiceImpl struct {
	logger          *slog.Logger
	repo            Repository
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewServiceImpl(repo Repository, accessTokenTTL, refreshTokenTTL time.Duration, logger *slog.Logger) *ServiceImpl {
	if accessTokenTTL <= 0 {
		accessTokenTTL = 15 * time.Minute
	}
	if refreshTokenTTL <= 0 {
		refreshTokenTTL = 7 * 24 * time.Hour
	}
	return &ServiceImpl{
		logger:          logger,
		repo:            repo,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

func (s *ServiceImpl) Register(ctx context.Context, username, email, password string) (*User, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register")
	defer span.End()

	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return nil, types.NewInvalidInputError("username is required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, types.NewInvalidInputError("invalid email address", err)
	}
	if len(password) < minPasswordLength {
		return nil, types.NewInvalidInputError("password must be at least 8 characters", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to hash password")
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, username, email, string(hash))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create user")
		return nil, err
	}

	s.logger.InfoContext(ctx, "User registered", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "User registered")
	return user, nil
}

func (s *ServiceImpl) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		span.SetStatus(codes.Error, "Unknown email")
		return nil, ErrUnauthenticated
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "Password mismatch")
		return nil, ErrUnauthenticated
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to issue tokens")
		return nil, err
	}

	s.logger.InfoContext(ctx, "User logged in", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "Login succeeded")
	return tokens, nil
}

func (s *ServiceImpl) RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "RefreshSession")
	defer span.End()

	token, err := uuid.Parse(refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "Malformed refresh token")
		return nil, ErrUnauthenticated
	}

	stored, err := s.repo.GetRefreshToken(ctx, token)
	if err != nil {
		span.SetStatus(codes.Error, "Unknown refresh token")
		return nil, ErrUnauthenticated
	}
	if stored.InvalidatedAt != nil {
		// Reuse of a rotated token means it leaked somewhere. Revoke the
		// whole family for that user.
		span.SetStatus(codes.Error, "Refresh token reuse detected")
		if err := s.repo.InvalidateAllUserRefreshTokens(ctx, stored.UserID); err != nil {
			span.RecordError(err)
		}
		return nil, ErrUnauthenticated
	}
	if time.Now().After(stored.ExpiresAt) {
		span.SetStatus(codes.Error, "Expired refresh token")
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.GetUserByID(ctx, stored.UserID)
	if err != nil {
		span.SetStatus(codes.Error, "Token user missing")
		return nil, ErrUnauthenticated
	}

	// Rotate: the presented token is spent whether or not issuing succeeds.
	if err := s.repo.InvalidateRefreshToken(ctx, token); err != nil {
		span.RecordError(err)
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to issue tokens")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Session refreshed")
	return tokens, nil
}

func (s *ServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Logout")
	defer span.End()

	token, err := uuid.Parse(refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "Malformed refresh token")
		return ErrUnauthenticated
	}
	return s.repo.InvalidateRefreshToken(ctx, token)
}

func (s *ServiceImpl) issueTokens(ctx context.Context, user *User) (*TokenResponse, error) {
	accessToken, err := generateAccessToken(user, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	refreshToken := uuid.New()
	expiresAt := time.Now().Add(s.refreshTokenTTL)
	if err := s.repo.StoreRefreshToken(ctx, refreshToken, user.ID, expiresAt); err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.String(),
	}, nil
}

func generateAccessToken(user *User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := appMiddleware.Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(appMiddleware.JwtSecretKey)
}
