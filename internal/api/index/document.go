package index

import (
	"fmt"
	"strconv"

	"github.com/safar-labs/travelmate/internal/types"
)

// Document is one indexed place: the textual summary that was embedded, the
// flattened metadata used for equality filtering, and the vector itself.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Place    types.Place       `json:"place"`
	Vector   []float32         `json:"vector"`
}

// buildContent renders the place summary handed to the embedding backend.
func buildContent(p types.Place) string {
	typesStr := "Not specified"
	if p.Types != nil {
		typesStr = *p.Types
	}
	ratingStr := "No rating"
	if p.Rating != nil {
		ratingStr = strconv.FormatFloat(*p.Rating, 'f', 1, 64)
	}
	reviewCount := 0
	if p.UserRatingCount != nil {
		reviewCount = *p.UserRatingCount
	}
	return fmt.Sprintf("Name: %s\nAddress: %s\nCity: %s\nmain_category: %s\nType: %s\nRating: %s (%d reviews)",
		p.DisplayName, p.FormattedAddress, p.City, p.MainCategory, typesStr, ratingStr, reviewCount)
}

// buildMetadata flattens the place fields into the equality-filterable record.
// Range-style filters (min_rating) are deliberately not representable here;
// they are post-filtered by the retriever.
func buildMetadata(p types.Place) map[string]string {
	m := map[string]string{
		"id":            p.ID,
		"city":          p.City,
		"main_category": p.MainCategory,
	}
	if p.Types != nil {
		m["types"] = *p.Types
	}
	return m
}

// matches reports whether every key in filter equals the document metadata.
func (d Document) matches(filter map[string]string) bool {
	for key, want := range filter {
		if d.Metadata[key] != want {
			return false
		}
	}
	return true
}
