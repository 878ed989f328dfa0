package sources

import (
	"context"

	"recommend-workers/internal/models"
)

// StaticSource serves a fixed candidate list and counts calls. Used in tests.
type StaticSource struct {
	category   models.Category
	candidates []models.Candidate
	Err        error
	Calls      int
}

func NewStaticSource(category models.Category, candidates []models.Candidate) *StaticSource {
	return &StaticSource{category: category, candidates: candidates}
}

func (s *StaticSource) Name() string              { return "static-" + string(s.category) }
func (s *StaticSource) Category() models.Category { return s.category }

func (s *StaticSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.limitOrDefault()
	if limit > len(s.candidates) {
		limit = len(s.candidates)
	}
	out := make([]models.Candidate, limit)
	copy(out, s.candidates[:limit])
	return out, nil
}
