package filters

import (
	"strings"

	"github.com/safar-labs/travelmate/internal/types"
)

// categoryEntry maps a canonical main category to the phrases that trigger it.
type categoryEntry struct {
	Category string
	Synonyms []string
}

// categoryTable is scanned in declaration order and the first entry whose
// category name or any synonym appears in the query wins. The order is part
// of the contract: a query matching two entries resolves to the earlier one.
var categoryTable = []categoryEntry{
	{
		Category: "public places",
		Synonyms: []string{
			"park", "parks", "garden", "gardens", "plaza", "square", "museum",
			"gallery", "beach", "beaches", "landmark", "monuments", "library",
			"public space", "community center", "playground",
		},
	},
	{
		Category: "restaurants",
		Synonyms: []string{
			"eatery", "cafe", "diner", "dining", "bistro", "food", "fast food",
			"pizzeria", "steakhouse", "bakery", "coffee shop", "bar", "pub",
			"buffet", "grill", "bbq", "seafood place",
		},
	},
	{
		Category: "hotels",
		Synonyms: []string{
			"motel", "inn", "resort", "lodge", "accommodation", "stay", "hostel",
			"guesthouse", "bed and breakfast", "b&b", "airbnb", "apartment",
			"lodging", "place to stay",
		},
	},
	{
		Category: "mosques",
		Synonyms: []string{
			"masjid", "mosque", "islamic center", "prayer hall", "prayer room",
			"jummah", "religious place", "worship place",
		},
	},
}

// resetPhrases clear all accumulated filters when present in a query.
var resetPhrases = []string{
	"show everything", "any place", "all places", "reset", "start over", "clear filters",
}

// ratingKeywords set min_rating to ratingThreshold.
var ratingKeywords = []string{"best", "top", "highest rated"}

const ratingThreshold = 4.0

// Extractor derives filter state from query text against the vocabularies
// discovered from the catalog. It never fails: unknown input yields no new
// key, never an error.
type Extractor struct {
	cities     []string
	placeTypes []string
}

// NewExtractor creates an extractor over catalog-discovered vocabularies.
// Slice order is preserved; vocabulary scans are first-match-wins.
func NewExtractor(cities, placeTypes []string) *Extractor {
	return &Extractor{
		cities:     cities,
		placeTypes: placeTypes,
	}
}

// ShouldClear reports whether the query asks to reset accumulated filters.
// This check takes priority over extraction.
func (e *Extractor) ShouldClear(query string) bool {
	queryLower := strings.ToLower(query)
	for _, phrase := range resetPhrases {
		if strings.Contains(queryLower, phrase) {
			return true
		}
	}
	return false
}

// Extract merges filters detected in the query into a copy of current.
// Keys with no match in the query retain their previous value; that is the
// mechanism that lets filters persist across turns.
func (e *Extractor) Extract(query string, current types.FilterSet) types.FilterSet {
	queryLower := strings.ToLower(query)
	result := current.Copy()

	if category, ok := detectCategory(queryLower); ok {
		result.MainCategory = &category
	}

	// City and type values are matched by case-insensitive substring
	// containment. A short catalog value that is also a common word can
	// false-positive here; accepted, not corrected.
	if city, ok := firstContained(queryLower, e.cities); ok {
		result.City = &city
	}
	if placeType, ok := firstContained(queryLower, e.placeTypes); ok {
		result.Types = &placeType
	}

	for _, keyword := range ratingKeywords {
		if strings.Contains(queryLower, keyword) {
			threshold := ratingThreshold
			result.MinRating = &threshold
			break
		}
	}

	return result
}

func detectCategory(queryLower string) (string, bool) {
	for _, entry := range categoryTable {
		if strings.Contains(queryLower, entry.Category) {
			return entry.Category, true
		}
		for _, synonym := range entry.Synonyms {
			if strings.Contains(queryLower, synonym) {
				return entry.Category, true
			}
		}
	}
	return "", false
}

func firstContained(queryLower string, vocabulary []string) (string, bool) {
	for _, value := range vocabulary {
		if strings.Contains(queryLower, strings.ToLower(value)) {
			return value, true
		}
	}
	return "", false
}
