package pipeline

import (
	"context"

	"github.com/google/uuid"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/models"
)

// DefaultSectionLimit is the per-section page size when none is given.
const DefaultSectionLimit = 6

// RunSections runs the pipeline once per configured section, in order. A
// failing section is logged and left out.
func (p *Pipeline) RunSections(ctx context.Context, req *SectionsRequest) (*SectionsResponse, error) {
	if req == nil {
		return nil, apperrors.NewInvalidRequestError("request is required")
	}
	specs, err := p.selectSections(req.Keys)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultSectionLimit
	}

	resp := &SectionsResponse{
		RequestID: uuid.NewString(),
		Sections:  make(map[string]Section, len(specs)),
	}

	for _, spec := range specs {
		sub := req.Request
		sub.Category = string(spec.Category)
		sub.Query = spec.Query
		sub.Limit = limit
		sub.Offset = 0

		page, err := p.Run(ctx, &sub)
		if err != nil {
			if apperrors.IsClientError(err) {
				return nil, err
			}
			p.logger.Warn("Section failed, omitting", map[string]interface{}{
				"section": spec.Key,
				"error":   err,
			})
			continue
		}

		resp.Sections[spec.Key] = Section{
			Title: spec.Title,
			Emoji: spec.Emoji,
			Items: page.Results,
		}
	}

	return resp, nil
}

func (p *Pipeline) selectSections(keys []string) ([]SectionSpec, error) {
	if len(keys) == 0 {
		return p.sections, nil
	}
	byKey := make(map[string]SectionSpec, len(p.sections))
	for _, s := range p.sections {
		byKey[s.Key] = s
	}
	out := make([]SectionSpec, 0, len(keys))
	for _, k := range keys {
		s, ok := byKey[k]
		if !ok {
			return nil, apperrors.NewInvalidRequestError("unknown section " + k)
		}
		out = append(out, s)
	}
	return out, nil
}

// DefaultSections is the browsing layout used when none is configured.
func DefaultSections() []SectionSpec {
	return []SectionSpec{
		{Key: "restaurants_nearby", Title: "Restaurants near you", Emoji: "🍽️", Category: models.CategoryRestaurants},
		{Key: "movies_tonight", Title: "Movies tonight", Emoji: "🎬", Category: models.CategoryMovies},
		{Key: "shows_to_binge", Title: "Shows to binge", Emoji: "📺", Category: models.CategoryShows},
		{Key: "books_to_read", Title: "Books to read", Emoji: "📚", Category: models.CategoryBooks},
		{Key: "things_to_do", Title: "Things to do", Emoji: "🎯", Category: models.CategoryActivities},
	}
}
