// Package finisher applies the caller's sort order, assigns final ranks and
// cuts the requested page.
package finisher

import (
	"sort"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/models"
)

type SortBy string

const (
	SortPersonalized SortBy = "personalized_score"
	SortDistance     SortBy = "distance"
	SortRating       SortBy = "rating"
	SortReviews      SortBy = "reviews"
)

// ParseSort maps an empty value to SortPersonalized and rejects unknown ones.
func ParseSort(raw string) (SortBy, error) {
	switch s := SortBy(raw); s {
	case "":
		return SortPersonalized, nil
	case SortPersonalized, SortDistance, SortRating, SortReviews:
		return s, nil
	default:
		return "", apperrors.NewInvalidSortError(raw)
	}
}

type Page struct {
	Results []models.RankedResult `json:"results"`
	Total   int                   `json:"total"`
	Offset  int                   `json:"offset"`
	Limit   int                   `json:"limit"`
	HasMore bool                  `json:"hasMore"`
}

// Finish sorts results in place, ranks them densely from 1 and returns the
// window [offset, offset+limit).
func Finish(results []models.RankedResult, sortBy SortBy, offset, limit int) Page {
	switch sortBy {
	case SortDistance:
		sort.SliceStable(results, func(i, j int) bool {
			di, dj := results[i].Distance, results[j].Distance
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			return *di < *dj
		})
	case SortRating:
		sort.SliceStable(results, func(i, j int) bool {
			return rating(results[i].Object) > rating(results[j].Object)
		})
	case SortReviews:
		sort.SliceStable(results, func(i, j int) bool {
			return reviews(results[i].Object) > reviews(results[j].Object)
		})
	}

	for i := range results {
		results[i].Rank = i + 1
	}

	total := len(results)
	if offset < 0 {
		offset = 0
	}
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]models.RankedResult, end-start)
	copy(page, results[start:end])

	return Page{
		Results: page,
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+limit < total,
	}
}

func rating(c models.Candidate) float64 {
	switch {
	case c.Rating != nil:
		return *c.Rating
	case c.VoteAverage != nil:
		return *c.VoteAverage
	case len(c.ExternalRatings) > 0:
		return c.ExternalRatings[0].Score
	}
	return 0
}

func reviews(c models.Candidate) int {
	switch {
	case c.ReviewCount != nil:
		return *c.ReviewCount
	case c.VoteCount != nil:
		return *c.VoteCount
	case len(c.ExternalRatings) > 0:
		return c.ExternalRatings[0].Count
	}
	return 0
}
