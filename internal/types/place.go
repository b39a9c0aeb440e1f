package types

// Place is one row of the source catalog. Immutable once loaded.
type Place struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"display_name"`
	FormattedAddress string   `json:"formatted_address"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Types            *string  `json:"types,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingCount  *int     `json:"user_rating_count,omitempty"`
	City             string   `json:"city"`
	MainCategory     string   `json:"main_category"`
}

// PlaceResponse is the projection of Place fields selected for display.
type PlaceResponse struct {
	PlaceID      string   `json:"place_id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	City         string   `json:"city"`
	MainCategory string   `json:"main_category"`
	Types        *string  `json:"types"`
	Rating       *float64 `json:"rating"`
	ReviewCount  *int     `json:"review_count"`
}

// FilterSet is the accumulated conversational intent carried across turns.
// A nil field means the filter is not set.
type FilterSet struct {
	City         *string  `json:"city,omitempty"`
	MainCategory *string  `json:"main_category,omitempty"`
	Types        *string  `json:"types,omitempty"`
	MinRating    *float64 `json:"min_rating,omitempty"`
}

// Copy returns an independent copy so extraction never mutates the carried
// filter state of a previous turn.
func (f FilterSet) Copy() FilterSet {
	out := FilterSet{}
	if f.City != nil {
		v := *f.City
		out.City = &v
	}
	if f.MainCategory != nil {
		v := *f.MainCategory
		out.MainCategory = &v
	}
	if f.Types != nil {
		v := *f.Types
		out.Types = &v
	}
	if f.MinRating != nil {
		v := *f.MinRating
		out.MinRating = &v
	}
	return out
}

func (f FilterSet) IsEmpty() bool {
	return f.City == nil && f.MainCategory == nil && f.Types == nil && f.MinRating == nil
}

// FilterAction describes how the current turn changed filter state.
type FilterAction string

const (
	FilterActionUpdate FilterAction = "update"
	FilterActionClear  FilterAction = "clear"
	FilterActionKeep   FilterAction = "keep"
)

// QueryResponse is the structured pipeline output. Produced fresh per query
// and not mutated after creation.
type QueryResponse struct {
	Message        string          `json:"message"`
	Places         []PlaceResponse `json:"places"`
	Context        *string         `json:"context,omitempty"`
	AppliedFilters FilterSet       `json:"applied_filters"`
	FilterAction   FilterAction    `json:"filter_action"`
}
