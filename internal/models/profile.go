// internal/models/profile.go
package models

import "errors"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type UserProfile struct {
	ID           string                     `json:"id"`
	Location     *Coordinates               `json:"location,omitempty"`
	TasteProfile map[Category]CategoryTaste `json:"tasteProfile,omitempty"`
}

type CategoryTaste struct {
	Tags          []TagWeight `json:"tags"`
	AvgPriceRated *float64    `json:"avgPriceRated,omitempty"`
}

type TagWeight struct {
	Tag    string  `json:"tag"`
	Weight float64 `json:"weight"`
}

type FriendRating struct {
	UserID      string  `json:"userId"`
	FriendName  string  `json:"friendName,omitempty"`
	CandidateID string  `json:"candidateId"`
	Score       float64 `json:"score"`
}

// Taste returns the taste entry for a category, if the profile has one.
func (p *UserProfile) Taste(c Category) (CategoryTaste, bool) {
	if p == nil || p.TasteProfile == nil {
		return CategoryTaste{}, false
	}
	t, ok := p.TasteProfile[c]
	return t, ok
}

// ErrProfileNotFound is returned by profile stores for unknown users.
var ErrProfileNotFound = errors.New("profile not found")
