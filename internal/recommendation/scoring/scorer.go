// Package scoring implements the deterministic multi-signal scoring model.
// It is the primary ranking path when no language model is configured and
// the fallback whenever the model call fails.
package scoring

import (
	"math"
	"strings"
	"time"

	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/geo"
)

const (
	WeightFriend   = 0.40
	WeightTaste    = 0.25
	WeightExternal = 0.15
	WeightRecency  = 0.10
	WeightContext  = 0.10

	neutralScore = 5.0
	maxScore     = 10.0
)

var sourceTrust = map[string]float64{
	"yelp":            1.0,
	"google":          0.9,
	"tmdb":            1.0,
	"imdb":            0.8,
	"rotten_tomatoes": 0.7,
}

const unknownSourceTrust = 0.5

// SourceTrust returns the weight given to ratings from source.
func SourceTrust(source string) float64 {
	if w, ok := sourceTrust[strings.ToLower(source)]; ok {
		return w
	}
	return unknownSourceTrust
}

// Signals is everything the scorer reads besides the candidate itself.
type Signals struct {
	Profile *models.UserProfile
	// Friends holds friend ratings keyed by candidate ID.
	Friends map[string][]models.FriendRating
	Context models.RankContext
}

type Score struct {
	Personalized float64
	Breakdown    models.ScoreBreakdown
}

type Scorer struct {
	now func() time.Time
}

func New() *Scorer {
	return &Scorer{now: time.Now}
}

// WithClock pins the reference time used for recency.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score is a pure function of its inputs and the scorer clock.
func (s *Scorer) Score(c models.Candidate, sig Signals) Score {
	b := models.ScoreBreakdown{
		Friend:   friendScore(sig.Friends[c.ID]),
		Taste:    tasteScore(c, sig.Profile),
		External: externalScore(c.ExternalRatings),
		Recency:  recencyScore(c.CreatedAt, s.now()),
		Context:  contextScore(c, sig.Context),
	}

	total := b.Friend*WeightFriend +
		b.Taste*WeightTaste +
		b.External*WeightExternal +
		b.Recency*WeightRecency +
		b.Context*WeightContext

	return Score{
		Personalized: round1(clamp(total)),
		Breakdown: models.ScoreBreakdown{
			Friend:   round2(b.Friend),
			Taste:    round2(b.Taste),
			External: round2(b.External),
			Recency:  b.Recency,
			Context:  b.Context,
		},
	}
}

func friendScore(ratings []models.FriendRating) float64 {
	if len(ratings) == 0 {
		return neutralScore
	}
	sum := 0.0
	for _, r := range ratings {
		sum += r.Score
	}
	return clamp(sum / float64(len(ratings)))
}

func tasteScore(c models.Candidate, profile *models.UserProfile) float64 {
	taste, ok := profile.Taste(c.Category)
	if !ok {
		return neutralScore
	}

	weights := make(map[string]float64, len(taste.Tags))
	for _, tw := range taste.Tags {
		weights[strings.ToLower(tw.Tag)] = tw.Weight
	}

	score := neutralScore
	matched, sum := 0, 0.0
	for _, tag := range c.Tags {
		if w, ok := weights[strings.ToLower(tag)]; ok {
			sum += w
			matched++
		}
	}
	if matched > 0 {
		score = math.Min(sum/float64(matched)*10, maxScore)
	}

	if c.PriceLevel != nil && taste.AvgPriceRated != nil {
		score -= 0.5 * math.Abs(float64(*c.PriceLevel)-*taste.AvgPriceRated)
	}
	return clamp(score)
}

func externalScore(ratings []models.ExternalRating) float64 {
	weighted, total := 0.0, 0.0
	for _, r := range ratings {
		w := SourceTrust(r.Source) * math.Log(float64(r.Count)+1)
		weighted += r.Score * w
		total += w
	}
	if total == 0 {
		return neutralScore
	}
	return clamp(weighted / total)
}

func recencyScore(createdAt *time.Time, now time.Time) float64 {
	if createdAt == nil {
		return neutralScore
	}
	age := now.Sub(*createdAt)
	switch {
	case age < 30*24*time.Hour:
		return 8.0
	case age < 180*24*time.Hour:
		return 6.0
	default:
		return 5.0
	}
}

func contextScore(c models.Candidate, rc models.RankContext) float64 {
	score := neutralScore

	if hasMood(c.MoodTags, rc.Moods) {
		score += 2
	}
	if rc.MaxPrice != nil && c.PriceLevel != nil && *c.PriceLevel > *rc.MaxPrice {
		score -= 3
	}
	if rc.MaxMinutes != nil && c.TimeCommitment != nil && c.TimeCommitment.Typical > *rc.MaxMinutes {
		score -= 2
	}
	if d, ok := geo.DistanceMiles(rc.User, &c); ok {
		if d > 20 {
			score -= 2
		}
		if d > 50 {
			score -= 3
		}
	}
	return clamp(score)
}

func hasMood(candidateMoods, requested []string) bool {
	if len(candidateMoods) == 0 || len(requested) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(candidateMoods))
	for _, m := range candidateMoods {
		set[strings.ToLower(m)] = struct{}{}
	}
	for _, m := range requested {
		if _, ok := set[strings.ToLower(m)]; ok {
			return true
		}
	}
	return false
}

// GroupByCandidate indexes friend ratings by candidate ID.
func GroupByCandidate(ratings []models.FriendRating) map[string][]models.FriendRating {
	out := make(map[string][]models.FriendRating)
	for _, r := range ratings {
		out[r.CandidateID] = append(out[r.CandidateID], r)
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
