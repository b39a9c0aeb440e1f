package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safar-labs/travelmate/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// MockRepository is a mock implementation of the Repository interface.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateSession(ctx context.Context, userID uuid.UUID, title string) (*types.ChatSession, error) {
	args := m.Called(ctx, userID, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ChatSession), args.Error(1)
}

func (m *MockRepository) GetSessions(ctx context.Context, userID uuid.UUID) ([]types.ChatSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ChatSession), args.Error(1)
}

func (m *MockRepository) RenameSession(ctx context.Context, userID, sessionID uuid.UUID, title string) error {
	args := m.Called(ctx, userID, sessionID, title)
	return args.Error(0)
}

func (m *MockRepository) DeactivateSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	args := m.Called(ctx, userID, sessionID)
	return args.Error(0)
}

func TestCreateSession_DefaultsTitle(t *testing.T) {
	userID := uuid.New()
	repo := new(MockRepository)
	repo.On("CreateSession", mock.Anything, userID, "New conversation").Return(&types.ChatSession{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "New conversation",
		CreatedAt: time.Now(),
	}, nil)

	service := NewServiceImpl(repo, testLogger)
	session, err := service.CreateSession(context.Background(), userID, "   ")
	require.NoError(t, err)
	assert.Equal(t, "New conversation", session.Title)
	repo.AssertExpectations(t)
}

func TestCreateSession_TrimsTitle(t *testing.T) {
	userID := uuid.New()
	repo := new(MockRepository)
	repo.On("CreateSession", mock.Anything, userID, "Lahore food tour").Return(&types.ChatSession{
		ID:     uuid.New(),
		UserID: userID,
		Title:  "Lahore food tour",
	}, nil)

	service := NewServiceImpl(repo, testLogger)
	_, err := service.CreateSession(context.Background(), userID, "  Lahore food tour  ")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRenameSession_EmptyTitle(t *testing.T) {
	service := NewServiceImpl(new(MockRepository), testLogger)
	err := service.RenameSession(context.Background(), uuid.New(), uuid.New(), "  ")
	require.Error(t, err)
	assert.Equal(t, types.CodeInvalidInput, types.CodeOf(err))
}

func TestRenameSession_UnknownSession(t *testing.T) {
	userID, sessionID := uuid.New(), uuid.New()
	repo := new(MockRepository)
	repo.On("RenameSession", mock.Anything, userID, sessionID, "Trip notes").Return(ErrSessionNotFound)

	service := NewServiceImpl(repo, testLogger)
	err := service.RenameSession(context.Background(), userID, sessionID, "Trip notes")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeactivateSession(t *testing.T) {
	userID, sessionID := uuid.New(), uuid.New()
	repo := new(MockRepository)
	repo.On("DeactivateSession", mock.Anything, userID, sessionID).Return(nil)

	service := NewServiceImpl(repo, testLogger)
	require.NoError(t, service.DeactivateSession(context.Background(), userID, sessionID))
	repo.AssertExpectations(t)
}
