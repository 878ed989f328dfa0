package pipeline

import (
	"fmt"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/finisher"
)

// Request is one ranked-page request. TasteProfile, when set, overrides the
// stored profile's tastes.
type Request struct {
	Category     string                                   `json:"category"`
	Limit        int                                      `json:"limit,omitempty"`
	Offset       int                                      `json:"offset,omitempty"`
	Query        string                                   `json:"query,omitempty"`
	SeenIDs      []string                                 `json:"seenIds,omitempty"`
	Lat          *float64                                 `json:"lat,omitempty"`
	Lng          *float64                                 `json:"lng,omitempty"`
	RadiusMeters *float64                                 `json:"radiusMeters,omitempty"`
	SortBy       string                                   `json:"sortBy,omitempty"`
	Mode         string                                   `json:"mode,omitempty"`
	TasteProfile map[models.Category]models.CategoryTaste `json:"tasteProfile,omitempty"`
	UserID       string                                   `json:"userId,omitempty"`
	Moods        []string                                 `json:"moods,omitempty"`
	MaxPrice     *int                                     `json:"maxPrice,omitempty"`
	MaxMinutes   *int                                     `json:"maxMinutes,omitempty"`
}

type Response struct {
	RequestID string `json:"requestId"`
	finisher.Page
}

// SectionsRequest shares everything but category, query and paging across
// the configured sections.
type SectionsRequest struct {
	Request
	// Keys restricts the run to these sections; empty runs all of them.
	Keys []string `json:"keys,omitempty"`
}

type Section struct {
	Title string                `json:"title"`
	Emoji string                `json:"emoji,omitempty"`
	Items []models.RankedResult `json:"items"`
}

type SectionsResponse struct {
	RequestID string             `json:"requestId"`
	Sections  map[string]Section `json:"sections"`
}

// SectionSpec configures one row of the browsing view.
type SectionSpec struct {
	Key      string
	Title    string
	Emoji    string
	Category models.Category
	Query    string
}

type normalized struct {
	category models.Category
	limit    int
	offset   int
	sortBy   finisher.SortBy
	mode     models.Mode
}

func (p *Pipeline) validate(req *Request) (normalized, error) {
	var n normalized
	if req == nil {
		return n, apperrors.NewInvalidRequestError("request is required")
	}

	if req.Category == "" {
		return n, apperrors.NewInvalidRequestError("category is required")
	}
	category, ok := models.ParseCategory(req.Category)
	if !ok {
		return n, apperrors.NewInvalidCategoryError(req.Category)
	}
	n.category = category

	switch {
	case req.Limit == 0:
		n.limit = p.opts.DefaultLimit
	case req.Limit < 0 || req.Limit > p.opts.MaxLimit:
		return n, apperrors.NewInvalidRequestError(fmt.Sprintf("limit must be between 1 and %d", p.opts.MaxLimit))
	default:
		n.limit = req.Limit
	}

	if req.Offset < 0 {
		return n, apperrors.NewInvalidRequestError("offset must not be negative")
	}
	n.offset = req.Offset

	sortBy, err := finisher.ParseSort(req.SortBy)
	if err != nil {
		return n, err
	}
	n.sortBy = sortBy

	switch models.Mode(req.Mode) {
	case "":
		n.mode = models.ModeDiscover
	case models.ModeDiscover, models.ModeDecide, models.ModeFeed:
		n.mode = models.Mode(req.Mode)
	default:
		return n, apperrors.NewInvalidRequestError(fmt.Sprintf("unknown mode %q", req.Mode))
	}

	if (req.Lat == nil) != (req.Lng == nil) {
		return n, apperrors.NewInvalidRequestError("lat and lng must be given together")
	}
	if req.Lat != nil && (*req.Lat < -90 || *req.Lat > 90 || *req.Lng < -180 || *req.Lng > 180) {
		return n, apperrors.NewInvalidRequestError("lat/lng out of range")
	}
	if req.RadiusMeters != nil && *req.RadiusMeters < 0 {
		return n, apperrors.NewInvalidRequestError("radius_meters must not be negative")
	}

	return n, nil
}
