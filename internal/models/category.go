// internal/models/category.go
package models

import "strings"

type Category string

const (
	CategoryRestaurants Category = "restaurants"
	CategoryMovies      Category = "movies"
	CategoryShows       Category = "shows"
	CategoryVideos      Category = "videos"
	CategoryBooks       Category = "books"
	CategoryActivities  Category = "activities"
)

var AllCategories = []Category{
	CategoryRestaurants,
	CategoryMovies,
	CategoryShows,
	CategoryVideos,
	CategoryBooks,
	CategoryActivities,
}

// ParseCategory normalizes a raw category value and reports whether it is known.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// IsLocationBound reports whether radius filtering applies to the category.
func (c Category) IsLocationBound() bool {
	return c == CategoryRestaurants || c == CategoryActivities
}

func (c Category) String() string {
	return string(c)
}
