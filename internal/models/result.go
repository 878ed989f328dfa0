// internal/models/result.go
package models

type RankedResult struct {
	Rank              int             `json:"rank"`
	Object            Candidate       `json:"object"`
	PersonalizedScore float64         `json:"personalizedScore"`
	Explanation       *Explanation    `json:"explanation,omitempty"`
	Distance          *float64        `json:"distance,omitempty"`
	Breakdown         *ScoreBreakdown `json:"breakdown,omitempty"`
}

type Explanation struct {
	Hook            string             `json:"hook,omitempty"`
	WhyYoullLike    string             `json:"whyYoullLike,omitempty"`
	FriendCallout   string             `json:"friendCallout,omitempty"`
	Caveats         string             `json:"caveats,omitempty"`
	DetailedRatings map[string]float64 `json:"detailedRatings,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	Tagline         string             `json:"tagline,omitempty"`
}

type ScoreBreakdown struct {
	Friend   float64 `json:"friend"`
	Taste    float64 `json:"taste"`
	External float64 `json:"external"`
	Recency  float64 `json:"recency"`
	Context  float64 `json:"context"`
}

type Mode string

const (
	ModeDiscover Mode = "discover"
	ModeDecide   Mode = "decide"
	ModeFeed     Mode = "feed"
)

// RankContext carries the request-scoped preferences the scorers read.
type RankContext struct {
	Category   Category     `json:"category"`
	Mode       Mode         `json:"mode"`
	User       *Coordinates `json:"user,omitempty"`
	Moods      []string     `json:"moods,omitempty"`
	MaxPrice   *int         `json:"maxPrice,omitempty"`
	MaxMinutes *int         `json:"maxMinutes,omitempty"`
	QueryText  string       `json:"query,omitempty"`
}
