// internal/models/candidate.go
package models

import "time"

type Candidate struct {
	ID              string           `json:"id"`
	Category        Category         `json:"category"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Tags            []string         `json:"tags,omitempty"`
	MoodTags        []string         `json:"moodTags,omitempty"`
	ExternalRatings []ExternalRating `json:"externalRatings,omitempty"`
	PriceLevel      *int             `json:"priceLevel,omitempty"`
	Location        *Location        `json:"location,omitempty"`
	TimeCommitment  *TimeCommitment  `json:"timeCommitment,omitempty"`
	CreatedAt       *time.Time       `json:"createdAt,omitempty"`

	// Source-native rating fields, kept for sorting.
	Rating      *float64 `json:"rating,omitempty"`
	VoteAverage *float64 `json:"voteAverage,omitempty"`
	ReviewCount *int     `json:"reviewCount,omitempty"`
	VoteCount   *int     `json:"voteCount,omitempty"`

	ImageURL string `json:"imageUrl,omitempty"`
	Source   string `json:"source,omitempty"`
}

type ExternalRating struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Count  int     `json:"count"`
}

type Location struct {
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"` // [lng, lat]
	Address     string    `json:"address,omitempty"`
	City        string    `json:"city,omitempty"`
	State       string    `json:"state,omitempty"`
	PostalCode  string    `json:"postalCode,omitempty"`
}

type TimeCommitment struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Typical int `json:"typical"`
}
