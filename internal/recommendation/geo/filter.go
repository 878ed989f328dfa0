package geo

import (
	"recommend-workers/internal/models"
)

// RadiusTolerance widens the requested radius; upstream providers do not
// strictly honor it.
const RadiusTolerance = 2.0

// Filter annotates every result with its distance from user and, for
// location-bound categories with a requested radius, drops results farther than
// radiusMiles × RadiusTolerance. Results without a computable distance are kept.
// A nil user leaves results untouched.
func Filter(results []models.RankedResult, user *models.Coordinates, category models.Category, radiusMiles *float64) []models.RankedResult {
	if user == nil {
		return results
	}

	applyRadius := radiusMiles != nil && *radiusMiles > 0 && category.IsLocationBound()
	maxDistance := 0.0
	if applyRadius {
		maxDistance = *radiusMiles * RadiusTolerance
	}

	out := make([]models.RankedResult, 0, len(results))
	for _, r := range results {
		d, ok := DistanceMiles(user, &r.Object)
		if !ok {
			r.Distance = nil
			out = append(out, r)
			continue
		}
		if applyRadius && d > maxDistance {
			continue
		}
		dist := d
		r.Distance = &dist
		out = append(out, r)
	}
	return out
}
