package chat

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/safar-labs/travelmate/internal/api/index"
	"github.com/safar-labs/travelmate/internal/types"
)

// Retriever runs fused retrieval against the catalog index: equality-keyed
// metadata filtering during the vector search, then a rating threshold
// applied as a post-filter since the index cannot express range predicates.
type Retriever struct {
	index  *index.Index
	logger *slog.Logger
}

func NewRetriever(ix *index.Index, logger *slog.Logger) *Retriever {
	return &Retriever{
		index:  ix,
		logger: logger,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, filters types.FilterSet, k int) ([]types.PlaceResponse, error) {
	ctx, span := otel.Tracer("ChatRetriever").Start(ctx, "Retrieve")
	defer span.End()

	if k <= 0 {
		span.SetStatus(codes.Ok, "Retrieval complete")
		return []types.PlaceResponse{}, nil
	}

	metadataFilter := make(map[string]string)
	if filters.City != nil {
		metadataFilter["city"] = *filters.City
	}
	if filters.MainCategory != nil {
		metadataFilter["main_category"] = *filters.MainCategory
	}

	// Over-fetch so the rating post-filter still has k candidates to keep.
	fetchK := k
	if filters.MinRating != nil {
		fetchK = k * 2
	}
	span.SetAttributes(
		attribute.Int("k", k),
		attribute.Int("fetch.k", fetchK),
		attribute.Int("filter.keys", len(metadataFilter)),
	)

	docs, err := r.index.Search(ctx, query, metadataFilter, fetchK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Index search failed")
		return nil, err
	}

	places := make([]types.PlaceResponse, 0, k)
	for _, doc := range docs {
		if filters.MinRating != nil {
			if doc.Place.Rating == nil || *doc.Place.Rating < *filters.MinRating {
				continue
			}
		}
		places = append(places, toPlaceResponse(doc.Place))
		if len(places) == k {
			break
		}
	}

	span.SetAttributes(attribute.Int("places", len(places)))
	span.SetStatus(codes.Ok, "Retrieval complete")
	r.logger.DebugContext(ctx, "Retrieved places",
		slog.String("query", query),
		slog.Int("candidates", len(docs)),
		slog.Int("kept", len(places)))
	return places, nil
}

func toPlaceResponse(p types.Place) types.PlaceResponse {
	lat := p.Lat
	lng := p.Lng
	return types.PlaceResponse{
		PlaceID:      p.ID,
		Name:         p.DisplayName,
		Address:      p.FormattedAddress,
		Lat:          &lat,
		Lng:          &lng,
		City:         p.City,
		MainCategory: p.MainCategory,
		Types:        p.Types,
		Rating:       p.Rating,
		ReviewCount:  p.UserRatingCount,
	}
}
