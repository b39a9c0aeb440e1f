package catalog

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/safar-labs/travelmate/internal/types"
)

// Catalog is the fixed dataset of places plus the vocabularies discovered
// from it. Immutable once loaded; safe for concurrent readers.
type Catalog struct {
	Places []types.Place

	// Vocabularies preserve first-seen order. Filter extraction scans them
	// first-match-wins, so iteration order is part of the contract.
	Cities     []string
	Categories []string
	Types      []string
}

// Load reads the place catalog CSV and discovers its vocabularies.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewDataLoadError(fmt.Sprintf("catalog file not found: %s", path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, types.NewDataLoadError("invalid catalog CSV format", err)
	}
	if len(records) == 0 {
		return nil, types.NewDataLoadError("catalog file is empty", nil)
	}
	if len(records) == 1 {
		return nil, types.NewDataLoadError("catalog file has no data rows", nil)
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"id", "displayName", "formattedAddress", "lat", "lng", "city", "main_category"} {
		if _, ok := cols[required]; !ok {
			return nil, types.NewDataLoadError(fmt.Sprintf("catalog is missing required column %q", required), nil)
		}
	}

	c := &Catalog{}
	seenCities := make(map[string]bool)
	seenCategories := make(map[string]bool)
	seenTypes := make(map[string]bool)

	for rowNum, row := range records[1:] {
		place, err := parseRow(row, cols)
		if err != nil {
			return nil, types.NewDataLoadError(fmt.Sprintf("malformed catalog row %d", rowNum+2), err)
		}
		c.Places = append(c.Places, place)

		if !seenCities[place.City] {
			seenCities[place.City] = true
			c.Cities = append(c.Cities, place.City)
		}
		if !seenCategories[place.MainCategory] {
			seenCategories[place.MainCategory] = true
			c.Categories = append(c.Categories, place.MainCategory)
		}
		if place.Types != nil && !seenTypes[*place.Types] {
			seenTypes[*place.Types] = true
			c.Types = append(c.Types, *place.Types)
		}
	}

	logger.Info("Catalog loaded",
		slog.String("path", path),
		slog.Int("places", len(c.Places)),
		slog.Int("cities", len(c.Cities)),
		slog.Int("categories", len(c.Categories)),
	)
	return c, nil
}

func parseRow(row []string, cols map[string]int) (types.Place, error) {
	get := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	lat, err := strconv.ParseFloat(get("lat"), 64)
	if err != nil {
		return types.Place{}, fmt.Errorf("invalid lat %q: %w", get("lat"), err)
	}
	lng, err := strconv.ParseFloat(get("lng"), 64)
	if err != nil {
		return types.Place{}, fmt.Errorf("invalid lng %q: %w", get("lng"), err)
	}

	place := types.Place{
		ID:               get("id"),
		DisplayName:      get("displayName"),
		FormattedAddress: get("formattedAddress"),
		Lat:              lat,
		Lng:              lng,
		City:             get("city"),
		MainCategory:     get("main_category"),
	}
	if place.ID == "" {
		return types.Place{}, fmt.Errorf("row has empty id")
	}

	if v := get("types"); v != "" {
		place.Types = &v
	}
	if v := get("rating"); v != "" {
		rating, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return types.Place{}, fmt.Errorf("invalid rating %q: %w", v, err)
		}
		place.Rating = &rating
	}
	if v := get("userRatingCount"); v != "" {
		// Some exports store counts as floats ("73.0").
		countF, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return types.Place{}, fmt.Errorf("invalid userRatingCount %q: %w", v, err)
		}
		count := int(countF)
		place.UserRatingCount = &count
	}

	return place, nil
}
