package index

import (
	"context"
	"crypto/md5"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/safar-labs/travelmate/app/observability/metrics"
	"github.com/safar-labs/travelmate/internal/api/catalog"
	"github.com/safar-labs/travelmate/internal/types"
)

// Embedder maps text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the content-addressed vector index over the place catalog.
// Read-only after construction; safe for concurrent readers.
type Index struct {
	embedder   Embedder
	docs       []Document
	queryCache *cache.Cache
	logger     *slog.Logger
}

// buildGroup collapses concurrent builds for the same content hash so at most
// one embedding pass runs per catalog version.
var buildGroup singleflight.Group

// ContentHash fingerprints the catalog file. A changed catalog byte changes
// the hash and invalidates the persisted index.
func ContentHash(catalogPath string) (string, error) {
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return "", types.NewDataLoadError(fmt.Sprintf("failed to read catalog file: %s", catalogPath), err)
	}
	return fmt.Sprintf("%x", md5.Sum(data)), nil
}

// BuildOrLoad loads the persisted index for the catalog's current content
// hash, or builds and persists one when the hash is new.
func BuildOrLoad(ctx context.Context, cat *catalog.Catalog, catalogPath, embeddingsDir string, embedder Embedder, logger *slog.Logger) (*Index, error) {
	ctx, span := otel.Tracer("CatalogIndex").Start(ctx, "BuildOrLoad", trace.WithAttributes(
		attribute.String("catalog.path", catalogPath),
	))
	defer span.End()

	hash, err := ContentHash(catalogPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to hash catalog")
		return nil, err
	}
	span.SetAttributes(attribute.String("catalog.hash", hash))

	v, err, _ := buildGroup.Do(hash, func() (interface{}, error) {
		return buildOrLoadLocked(ctx, cat, hash, embeddingsDir, embedder, logger)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Index build failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Index ready")
	return v.(*Index), nil
}

func buildOrLoadLocked(ctx context.Context, cat *catalog.Catalog, hash, embeddingsDir string, embedder Embedder, logger *slog.Logger) (*Index, error) {
	indexPath := filepath.Join(embeddingsDir, fmt.Sprintf("places_index_%s.gob", hash))

	ix := &Index{
		embedder:   embedder,
		queryCache: cache.New(1*time.Hour, 10*time.Minute),
		logger:     logger,
	}

	docs, err := loadDocuments(indexPath)
	if err == nil {
		logger.Info("Loaded persisted catalog index",
			slog.String("path", indexPath),
			slog.Int("documents", len(docs)),
		)
		ix.docs = docs
		return ix, nil
	}
	logger.Info("Building catalog index",
		slog.String("reason", err.Error()),
		slog.String("hash", hash),
		slog.Int("places", len(cat.Places)),
	)

	if len(cat.Places) == 0 {
		return nil, types.NewDataLoadError("catalog has no places to index", nil)
	}

	metrics.Get().IndexBuildsTotal.Add(ctx, 1)

	docs = make([]Document, 0, len(cat.Places))
	for _, place := range cat.Places {
		content := buildContent(place)
		vector, err := embedder.Embed(ctx, content)
		if err != nil {
			return nil, types.NewEmbeddingsError(fmt.Sprintf("failed to embed place %s", place.ID), err)
		}
		docs = append(docs, Document{
			Content:  content,
			Metadata: buildMetadata(place),
			Place:    place,
			Vector:   vector,
		})
	}
	ix.docs = docs

	if err := saveDocuments(indexPath, docs); err != nil {
		// A failed persist only costs a rebuild on next start.
		logger.Warn("Failed to persist catalog index", slog.Any("error", err), slog.String("path", indexPath))
	} else {
		logger.Info("Persisted catalog index", slog.String("path", indexPath))
	}

	return ix, nil
}

// Size returns the number of indexed documents.
func (ix *Index) Size() int { return len(ix.docs) }

// Search returns up to k nearest documents by embedding similarity,
// restricted to documents whose metadata exactly matches every key in
// metadataFilter. min_rating is a range filter, not an equality filter, and
// must never be passed here.
func (ix *Index) Search(ctx context.Context, query string, metadataFilter map[string]string, k int) ([]Document, error) {
	ctx, span := otel.Tracer("CatalogIndex").Start(ctx, "Search", trace.WithAttributes(
		attribute.Int("k", k),
		attribute.Int("filter.keys", len(metadataFilter)),
	))
	defer span.End()

	if k <= 0 {
		return nil, nil
	}
	if _, ok := metadataFilter["min_rating"]; ok {
		err := types.NewSearchError("min_rating is not an equality filter; post-filter it instead", nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Invalid metadata filter")
		return nil, err
	}

	queryVector, err := ix.embedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Query embedding failed")
		return nil, types.NewSearchError("failed to embed query", err)
	}

	type scored struct {
		doc   Document
		score float64
	}
	candidates := make([]scored, 0, len(ix.docs))
	for _, doc := range ix.docs {
		if !doc.matches(metadataFilter) {
			continue
		}
		candidates = append(candidates, scored{doc: doc, score: cosineSimilarity(queryVector, doc.Vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Document, len(candidates))
	for i, c := range candidates {
		results[i] = c.doc
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	span.SetStatus(codes.Ok, "Search completed")
	return results, nil
}

// embedQuery embeds the query text, reusing a cached vector for repeated
// queries within the cache TTL.
func (ix *Index) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if cached, found := ix.queryCache.Get(query); found {
		return cached.([]float32), nil
	}
	vector, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	ix.queryCache.Set(query, vector, cache.DefaultExpiration)
	return vector, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func loadDocuments(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("no persisted index at %s", path)
	}
	defer f.Close()

	var docs []Document
	if err := gob.NewDecoder(f).Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to decode persisted index: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("persisted index at %s is empty", path)
	}
	return docs, nil
}

func saveDocuments(path string, docs []Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create embeddings dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(docs); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return nil
}
