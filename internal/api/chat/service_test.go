package chat

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/safar-labs/travelmate/internal/api/catalog"
	"github.com/safar-labs/travelmate/internal/api/filters"
	"github.com/safar-labs/travelmate/internal/api/index"
	"github.com/safar-labs/travelmate/internal/types"
)

// MockRepository is a mock implementation of the Repository interface.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockRepository) SaveMessage(ctx context.Context, message types.ChatMessage) (int64, error) {
	args := m.Called(ctx, message)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]types.ChatMessage, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ChatMessage), args.Error(1)
}

func (m *MockRepository) GetLastAppliedFilters(ctx context.Context, sessionID uuid.UUID) (types.FilterSet, bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(types.FilterSet), args.Bool(1), args.Error(2)
}

func (m *MockRepository) GetAllMessages(ctx context.Context, sessionID uuid.UUID) ([]types.ChatMessage, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ChatMessage), args.Error(1)
}

// stubGenerator returns a canned reply and records the prompt it received.
type stubGenerator struct {
	reply  string
	err    error
	prompt string
}

func (g *stubGenerator) GenerateContent(_ context.Context, prompt string, _ *genai.GenerateContentConfig) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// fakeEmbedder keeps vectors deterministic so ranking does not depend on a
// remote model.
type fakeEmbedder struct{}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "alpha"):
		return []float32{1, 0}, nil
	case strings.Contains(lower, "beta"):
		return []float32{0.8, 0.2}, nil
	case strings.Contains(lower, "gamma"):
		return []float32{0, 1}, nil
	default:
		return []float32{0.5, 0.5}, nil
	}
}

func ratingPtr(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func serviceTestCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Places: []types.Place{
			{ID: "p1", DisplayName: "Alpha Karahi", FormattedAddress: "Lakshmi Chowk", Lat: 31.57, Lng: 74.32,
				City: "Lahore", MainCategory: "restaurants", Rating: ratingPtr(4.5)},
			{ID: "p2", DisplayName: "Beta Grill", FormattedAddress: "Mall Road", Lat: 31.55, Lng: 74.33,
				City: "Lahore", MainCategory: "restaurants", Rating: ratingPtr(3.8)},
			{ID: "p3", DisplayName: "Gamma Park", FormattedAddress: "Clifton", Lat: 24.79, Lng: 67.02,
				City: "Karachi", MainCategory: "public places"},
		},
		Cities:     []string{"Lahore", "Karachi"},
		Categories: []string{"restaurants", "public places"},
	}
}

func newTestService(t *testing.T, repo Repository, generator Generator) *ServiceImpl {
	t.Helper()

	catalogPath := filepath.Join(t.TempDir(), "places.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte("service-test-catalog-"+t.Name()), 0o644))

	cat := serviceTestCatalog()
	ix, err := index.BuildOrLoad(context.Background(), cat, catalogPath, t.TempDir(), &fakeEmbedder{}, testLogger)
	require.NoError(t, err)

	retriever := NewRetriever(ix, testLogger)
	extractor := filters.NewExtractor(cat.Cities, cat.Types)
	return NewServiceImpl(repo, retriever, extractor, generator, 6, 5, 0.1, testLogger)
}

func assistantReply(places ...types.PlaceResponse) string {
	resp := types.QueryResponse{
		Message:      "Here is what I found.",
		Places:       places,
		FilterAction: types.FilterActionKeep,
	}
	data, _ := json.Marshal(resp)
	return "```json\n" + string(data) + "\n```"
}

func TestAnswer_EmptyQuery(t *testing.T) {
	service := newTestService(t, new(MockRepository), &stubGenerator{})

	_, err := service.Answer(context.Background(), uuid.New(), "   ", 5)
	require.Error(t, err)
	assert.Equal(t, types.CodeInvalidInput, types.CodeOf(err))
}

func TestAnswer_ExtractsFiltersAndDropsLowRated(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(types.FilterSet{}, false, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	generator := &stubGenerator{reply: assistantReply(types.PlaceResponse{PlaceID: "p1", Name: "Alpha Karahi"})}
	service := newTestService(t, repo, generator)

	resp, err := service.Answer(context.Background(), sessionID, "best restaurants in Lahore", 5)
	require.NoError(t, err)

	require.NotNil(t, resp.AppliedFilters.City)
	assert.Equal(t, "Lahore", *resp.AppliedFilters.City)
	require.NotNil(t, resp.AppliedFilters.MainCategory)
	assert.Equal(t, "restaurants", *resp.AppliedFilters.MainCategory)
	require.NotNil(t, resp.AppliedFilters.MinRating)
	assert.Equal(t, 4.0, *resp.AppliedFilters.MinRating)
	assert.Equal(t, types.FilterActionUpdate, resp.FilterAction)

	// The 3.8-rated place is excluded by the rating post-filter, so only
	// the 4.5-rated one can appear.
	require.Len(t, resp.Places, 1)
	assert.Equal(t, "p1", resp.Places[0].PlaceID)
	assert.Equal(t, "Lakshmi Chowk", resp.Places[0].Address, "canonical record substituted")
}

func TestAnswer_DropsPlacesNotRetrieved(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(types.FilterSet{}, false, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	generator := &stubGenerator{reply: assistantReply(
		types.PlaceResponse{PlaceID: "p1", Name: "Alpha Karahi"},
		types.PlaceResponse{PlaceID: "ghost", Name: "Invented Diner"},
	)}
	service := newTestService(t, repo, generator)

	resp, err := service.Answer(context.Background(), sessionID, "best restaurants in Lahore", 5)
	require.NoError(t, err)

	require.Len(t, resp.Places, 1, "invented place must be dropped")
	assert.Equal(t, "p1", resp.Places[0].PlaceID)
}

func TestAnswer_ResetClearsCarriedFilters(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	carried := types.FilterSet{City: strPtr("Lahore"), MinRating: ratingPtr(4.0)}
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(carried, true, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	generator := &stubGenerator{reply: assistantReply()}
	service := newTestService(t, repo, generator)

	resp, err := service.Answer(context.Background(), sessionID, "ok, show everything", 5)
	require.NoError(t, err)

	assert.True(t, resp.AppliedFilters.IsEmpty())
	assert.Equal(t, types.FilterActionClear, resp.FilterAction)
}

func TestAnswer_KeepsFiltersWhenNothingExtracted(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	carried := types.FilterSet{City: strPtr("Lahore")}
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(carried, true, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	generator := &stubGenerator{reply: assistantReply()}
	service := newTestService(t, repo, generator)

	resp, err := service.Answer(context.Background(), sessionID, "anything else nearby?", 5)
	require.NoError(t, err)

	require.NotNil(t, resp.AppliedFilters.City)
	assert.Equal(t, "Lahore", *resp.AppliedFilters.City)
	assert.Equal(t, types.FilterActionKeep, resp.FilterAction)
}

func TestAnswer_HistoryCarriesPriorRecommendations(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(types.FilterSet{}, false, nil)

	humanContent, err := json.Marshal(types.HumanContent{Message: "best restaurants in Lahore"})
	require.NoError(t, err)
	priorContent, err := json.Marshal(types.QueryResponse{
		Message: "Here is what I found.",
		Places: []types.PlaceResponse{
			{PlaceID: "p1", Name: "Alpha Karahi", City: "Lahore"},
			{PlaceID: "p2", Name: "Beta Grill", City: "Lahore"},
		},
		FilterAction: types.FilterActionUpdate,
	})
	require.NoError(t, err)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{
		{MessageID: 1, SessionID: sessionID, Role: types.RoleHuman, Content: humanContent},
		{MessageID: 2, SessionID: sessionID, Role: types.RoleAssistant, Content: priorContent},
	}, nil)

	generator := &stubGenerator{reply: assistantReply()}
	service := newTestService(t, repo, generator)

	_, err = service.Answer(context.Background(), sessionID, "tell me more about the second one", 5)
	require.NoError(t, err)

	assert.Contains(t, generator.prompt, "best restaurants in Lahore")
	// The assistant turn enters the transcript as its full serialized
	// response, so the model can resolve references to earlier picks.
	assert.Contains(t, generator.prompt, `"place_id":"p1"`)
	assert.Contains(t, generator.prompt, `"place_id":"p2"`)
	assert.Contains(t, generator.prompt, "Beta Grill")
}

func TestAnswer_PropagatesStoreError(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	dbErr := types.NewDatabaseError("connection lost", nil)
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(types.FilterSet{}, false, dbErr)

	service := newTestService(t, repo, &stubGenerator{reply: assistantReply()})

	_, err := service.Answer(context.Background(), sessionID, "best restaurants", 5)
	require.Error(t, err)
	assert.Equal(t, types.CodeDatabase, types.CodeOf(err))
}

func TestAnswer_UnparseableModelReply(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(types.FilterSet{}, false, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	service := newTestService(t, repo, &stubGenerator{reply: "sorry, plain prose only"})

	_, err := service.Answer(context.Background(), sessionID, "best restaurants", 5)
	require.Error(t, err)
	assert.Equal(t, types.CodeResponseGeneration, types.CodeOf(err))
}

func TestAnswer_EmptyRetrievalMarksContext(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	// Carry a city no catalog place matches.
	carried := types.FilterSet{City: strPtr("Atlantis")}
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(carried, true, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	generator := &stubGenerator{reply: assistantReply()}
	service := newTestService(t, repo, generator)

	resp, err := service.Answer(context.Background(), sessionID, "anything at all?", 5)
	require.NoError(t, err)

	assert.Empty(t, resp.Places)
	require.NotNil(t, resp.Context)
	assert.Equal(t, "No places found", *resp.Context)
	assert.Contains(t, generator.prompt, "No places found")
}

func TestProcessQuery_PersistsBothTurns(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	repo.On("TouchSession", mock.Anything, sessionID).Return(nil)
	repo.On("GetLastAppliedFilters", mock.Anything, sessionID).Return(types.FilterSet{}, false, nil)
	repo.On("GetRecentMessages", mock.Anything, sessionID, 6).Return([]types.ChatMessage{}, nil)

	var saved []types.ChatMessage
	repo.On("SaveMessage", mock.Anything, mock.AnythingOfType("types.ChatMessage")).
		Run(func(args mock.Arguments) {
			saved = append(saved, args.Get(1).(types.ChatMessage))
		}).
		Return(int64(7), nil)

	generator := &stubGenerator{reply: assistantReply(types.PlaceResponse{PlaceID: "p1", Name: "Alpha Karahi"})}
	service := newTestService(t, repo, generator)

	message, err := service.ProcessQuery(context.Background(), sessionID, "best restaurants in Lahore", 5)
	require.NoError(t, err)

	require.Len(t, saved, 2)
	assert.Equal(t, types.RoleHuman, saved[0].Role)
	assert.Equal(t, types.RoleAssistant, saved[1].Role)
	assert.Equal(t, types.RoleAssistant, message.Role)
	assert.Equal(t, int64(7), message.MessageID)
	assert.Equal(t, types.FilterActionUpdate, message.FilterAction)
	require.NotNil(t, message.AppliedFilters.City)
	assert.Equal(t, "Lahore", *message.AppliedFilters.City)
}

func TestProcessQuery_UnknownSession(t *testing.T) {
	repo := new(MockRepository)
	sessionID := uuid.New()
	repo.On("TouchSession", mock.Anything, sessionID).Return(ErrSessionNotFound)

	service := newTestService(t, repo, &stubGenerator{reply: assistantReply()})

	_, err := service.ProcessQuery(context.Background(), sessionID, "hello", 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	repo.AssertNotCalled(t, "SaveMessage", mock.Anything, mock.Anything)
}
