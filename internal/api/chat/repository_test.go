package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/types"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *RepositoryImpl) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewRepositoryImpl(mockPool, testLogger)
}

func TestTouchSession(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	sessionID := uuid.New()

	mockPool.ExpectExec(regexp.QuoteMeta("UPDATE chat_sessions")).
		WithArgs(sessionID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.TouchSession(context.Background(), sessionID))
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestTouchSession_NotFound(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	sessionID := uuid.New()

	mockPool.ExpectExec(regexp.QuoteMeta("UPDATE chat_sessions")).
		WithArgs(sessionID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.TouchSession(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSaveMessage(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	sessionID := uuid.New()

	content, err := json.Marshal(types.HumanContent{Message: "best restaurants in Lahore"})
	require.NoError(t, err)

	mockPool.ExpectQuery(regexp.QuoteMeta("INSERT INTO messages")).
		WithArgs(sessionID, types.RoleHuman, json.RawMessage(content), []byte(`{}`), types.FilterActionKeep).
		WillReturnRows(pgxmock.NewRows([]string{"message_id"}).AddRow(int64(41)))

	messageID, err := repo.SaveMessage(context.Background(), types.ChatMessage{
		SessionID: sessionID,
		Role:      types.RoleHuman,
		Content:   content,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(41), messageID)
	require.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGetRecentMessages_ReturnsChronologicalOrder(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	sessionID := uuid.New()
	now := time.Now()

	// The query returns newest-first; the repository reverses to
	// chronological order.
	rows := pgxmock.NewRows([]string{"message_id", "session_id", "role", "timestamp", "content", "applied_filters", "filter_action"}).
		AddRow(int64(3), sessionID, types.RoleAssistant, now, json.RawMessage(`{"message":"two"}`), []byte(`{"city":"Lahore"}`), types.FilterActionUpdate).
		AddRow(int64(2), sessionID, types.RoleHuman, now.Add(-time.Minute), json.RawMessage(`{"message":"one"}`), []byte(`{}`), types.FilterActionKeep)

	mockPool.ExpectQuery(regexp.QuoteMeta("FROM messages")).
		WithArgs(sessionID, 6).
		WillReturnRows(rows)

	messages, err := repo.GetRecentMessages(context.Background(), sessionID, 6)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(2), messages[0].MessageID, "oldest message first")
	assert.Equal(t, int64(3), messages[1].MessageID)
	require.NotNil(t, messages[1].AppliedFilters.City)
	assert.Equal(t, "Lahore", *messages[1].AppliedFilters.City)
}

func TestGetLastAppliedFilters(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	sessionID := uuid.New()

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT applied_filters")).
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"applied_filters"}).
			AddRow([]byte(`{"city":"Lahore","min_rating":4}`)))

	filters, found, err := repo.GetLastAppliedFilters(context.Background(), sessionID)
	require.NoError(t, err)
	assert.True(t, found)
	require.NotNil(t, filters.City)
	assert.Equal(t, "Lahore", *filters.City)
	require.NotNil(t, filters.MinRating)
	assert.Equal(t, 4.0, *filters.MinRating)
}

func TestGetLastAppliedFilters_NoAssistantTurnYet(t *testing.T) {
	mockPool, repo := newMockRepo(t)
	sessionID := uuid.New()

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT applied_filters")).
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"applied_filters"}))

	filters, found, err := repo.GetLastAppliedFilters(context.Background(), sessionID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, filters.IsEmpty())
}
