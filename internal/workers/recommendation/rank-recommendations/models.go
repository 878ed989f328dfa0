// internal/workers/recommendation/rank-recommendations/models.go
package rankrecommendations

import (
	"encoding/json"

	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/finisher"
	"recommend-workers/internal/recommendation/pipeline"
)

// Input mirrors the process variables. TasteProfile is kept raw so both the
// list and the map tag forms are accepted.
type Input struct {
	Category     string          `json:"category"`
	Limit        int             `json:"limit"`
	Offset       int             `json:"offset"`
	Query        string          `json:"query"`
	SeenIDs      []string        `json:"seenIds"`
	Lat          *float64        `json:"lat"`
	Lng          *float64        `json:"lng"`
	RadiusMeters *float64        `json:"radiusMeters"`
	SortBy       string          `json:"sortBy"`
	Mode         string          `json:"mode"`
	TasteProfile json.RawMessage `json:"tasteProfile,omitempty"`
	UserID       string          `json:"userId"`
	Moods        []string        `json:"moods"`
	MaxPrice     *int            `json:"maxPrice"`
	MaxMinutes   *int            `json:"maxMinutes"`

	// Sections switches to the multi-section browsing view.
	Sections    bool     `json:"sections"`
	SectionKeys []string `json:"sectionKeys"`
}

// Output flattens the page into {results,total,offset,limit,hasMore}. The page
// is nil in sections mode so only the sections variable is written.
type Output struct {
	RequestID string `json:"requestId"`
	*finisher.Page
	Sections    map[string]pipeline.Section `json:"sections,omitempty"`
	ResultCount int                         `json:"resultCount"`
}

func (in *Input) toRequest(taste map[models.Category]models.CategoryTaste) pipeline.Request {
	return pipeline.Request{
		Category:     in.Category,
		Limit:        in.Limit,
		Offset:       in.Offset,
		Query:        in.Query,
		SeenIDs:      in.SeenIDs,
		Lat:          in.Lat,
		Lng:          in.Lng,
		RadiusMeters: in.RadiusMeters,
		SortBy:       in.SortBy,
		Mode:         in.Mode,
		TasteProfile: taste,
		UserID:       in.UserID,
		Moods:        in.Moods,
		MaxPrice:     in.MaxPrice,
		MaxMinutes:   in.MaxMinutes,
	}
}
