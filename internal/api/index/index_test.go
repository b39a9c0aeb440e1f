package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/api/catalog"
	"github.com/safar-labs/travelmate/internal/types"
)

func TestMain(m *testing.M) {
	metrics.InitAppMetrics()
	os.Exit(m.Run())
}

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeEmbedder returns fixed vectors keyed by marker words and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

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

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ratingPtr(v float64) *float64 { return &v }

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Places: []types.Place{
			{ID: "p1", DisplayName: "Alpha Cafe", FormattedAddress: "addr 1", Lat: 1, Lng: 1,
				City: "Lahore", MainCategory: "restaurants", Rating: ratingPtr(4.5)},
			{ID: "p2", DisplayName: "Beta Grill", FormattedAddress: "addr 2", Lat: 2, Lng: 2,
				City: "Lahore", MainCategory: "restaurants", Rating: ratingPtr(3.8)},
			{ID: "p3", DisplayName: "Gamma Park", FormattedAddress: "addr 3", Lat: 3, Lng: 3,
				City: "Karachi", MainCategory: "public places"},
		},
		Cities:     []string{"Lahore", "Karachi"},
		Categories: []string{"restaurants", "public places"},
	}
}

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildOrLoad_BuildsAndPersists(t *testing.T) {
	embedder := &fakeEmbedder{}
	catalogPath := writeCatalogFile(t, "persist-test-catalog")
	embeddingsDir := t.TempDir()

	ix, err := BuildOrLoad(context.Background(), testCatalog(), catalogPath, embeddingsDir, embedder, testLogger)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Size())
	assert.Equal(t, 3, embedder.callCount())

	hash, err := ContentHash(catalogPath)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(embeddingsDir, "places_index_"+hash+".gob"))
	assert.NoError(t, err, "index gob should be persisted under the content hash")
}

func TestBuildOrLoad_ReusesPersistedIndex(t *testing.T) {
	catalogPath := writeCatalogFile(t, "reuse-test-catalog")
	embeddingsDir := t.TempDir()

	first := &fakeEmbedder{}
	_, err := BuildOrLoad(context.Background(), testCatalog(), catalogPath, embeddingsDir, first, testLogger)
	require.NoError(t, err)
	require.Equal(t, 3, first.callCount())

	// Second load for the same content hash must not embed anything.
	second := &fakeEmbedder{}
	ix, err := BuildOrLoad(context.Background(), testCatalog(), catalogPath, embeddingsDir, second, testLogger)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Size())
	assert.Equal(t, 0, second.callCount())
}

func TestBuildOrLoad_ConcurrentBuildsShareOneEmbedPass(t *testing.T) {
	embedder := &fakeEmbedder{}
	catalogPath := writeCatalogFile(t, "concurrent-test-catalog")
	embeddingsDir := t.TempDir()

	var wg sync.WaitGroup
	indexes := make([]*Index, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			indexes[i], errs[i] = BuildOrLoad(context.Background(), testCatalog(), catalogPath, embeddingsDir, embedder, testLogger)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 3, indexes[i].Size())
	}
	assert.Equal(t, 3, embedder.callCount(), "same content hash must embed at most once")
}

func TestBuildOrLoad_EmptyCatalog(t *testing.T) {
	catalogPath := writeCatalogFile(t, "empty-test-catalog")

	_, err := BuildOrLoad(context.Background(), &catalog.Catalog{}, catalogPath, t.TempDir(), &fakeEmbedder{}, testLogger)
	require.Error(t, err)
	assert.Equal(t, types.CodeDataLoad, types.CodeOf(err))
}

func buildTestIndex(t *testing.T) (*Index, *fakeEmbedder) {
	t.Helper()
	embedder := &fakeEmbedder{}
	catalogPath := writeCatalogFile(t, "search-test-catalog-"+t.Name())
	ix, err := BuildOrLoad(context.Background(), testCatalog(), catalogPath, t.TempDir(), embedder, testLogger)
	require.NoError(t, err)
	return ix, embedder
}

func TestSearch_RanksBySimilarityAndBoundsK(t *testing.T) {
	ix, _ := buildTestIndex(t)

	docs, err := ix.Search(context.Background(), "something alpha flavored", nil, 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p1", docs[0].Place.ID)
	assert.Equal(t, "p2", docs[1].Place.ID)
}

func TestSearch_MetadataFilterRestrictsCandidates(t *testing.T) {
	ix, _ := buildTestIndex(t)

	docs, err := ix.Search(context.Background(), "anything alpha", map[string]string{"city": "Karachi"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p3", docs[0].Place.ID)
}

func TestSearch_UnmatchableFilterReturnsEmpty(t *testing.T) {
	ix, _ := buildTestIndex(t)

	docs, err := ix.Search(context.Background(), "alpha", map[string]string{"city": "Atlantis"}, 5)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSearch_RejectsMinRatingKey(t *testing.T) {
	ix, _ := buildTestIndex(t)

	_, err := ix.Search(context.Background(), "alpha", map[string]string{"min_rating": "4.0"}, 5)
	require.Error(t, err)
	assert.Equal(t, types.CodeSearch, types.CodeOf(err))
}

func TestSearch_NonPositiveK(t *testing.T) {
	ix, _ := buildTestIndex(t)

	docs, err := ix.Search(context.Background(), "alpha", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSearch_QueryEmbeddingCached(t *testing.T) {
	ix, embedder := buildTestIndex(t)
	buildCalls := embedder.callCount()

	_, err := ix.Search(context.Background(), "repeated query alpha", nil, 1)
	require.NoError(t, err)
	_, err = ix.Search(context.Background(), "repeated query alpha", nil, 1)
	require.NoError(t, err)

	assert.Equal(t, buildCalls+1, embedder.callCount(), "second identical query should hit the cache")
}
