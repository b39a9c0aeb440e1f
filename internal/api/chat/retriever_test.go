package chat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar-labs/travelmate/internal/api/index"
	"github.com/safar-labs/travelmate/internal/types"
)

func newTestRetriever(t *testing.T) *Retriever {
	t.Helper()

	catalogPath := filepath.Join(t.TempDir(), "places.csv")
	require.NoError(t, os.WriteFile(catalogPath, []byte("retriever-test-catalog-"+t.Name()), 0o644))

	ix, err := index.BuildOrLoad(context.Background(), serviceTestCatalog(), catalogPath, t.TempDir(), &fakeEmbedder{}, testLogger)
	require.NoError(t, err)
	return NewRetriever(ix, testLogger)
}

func TestRetrieve_NonPositiveKReturnsNothing(t *testing.T) {
	retriever := newTestRetriever(t)

	for _, k := range []int{0, -3} {
		places, err := retriever.Retrieve(context.Background(), "alpha", types.FilterSet{}, k)
		require.NoError(t, err)
		assert.Empty(t, places, "k=%d must not return any places", k)
	}
}

func TestRetrieve_BoundsResultToK(t *testing.T) {
	retriever := newTestRetriever(t)

	places, err := retriever.Retrieve(context.Background(), "alpha", types.FilterSet{}, 2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(places), 2)
}
