// Package sources binds each category to the upstream that supplies its raw
// candidates.
package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"recommend-workers/internal/models"
)

// DefaultLimit is used when a query does not ask for a batch size.
const DefaultLimit = 20

// Query is what the pipeline asks a source for.
type Query struct {
	Category     models.Category
	Lat          *float64
	Lng          *float64
	RadiusMeters *float64
	Text         string
	Limit        int
}

func (q Query) limitOrDefault() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

func (q Query) hasLocation() bool {
	return q.Lat != nil && q.Lng != nil
}

// Source supplies raw candidates for a single category. Implementations must
// return candidates with stable IDs across calls.
type Source interface {
	Name() string
	Category() models.Category
	Fetch(ctx context.Context, q Query) ([]models.Candidate, error)
}

// Registry is the fixed category to source mapping resolved at startup.
type Registry struct {
	sources map[models.Category]Source
}

func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[models.Category]Source, len(srcs))}
	for _, s := range srcs {
		if _, dup := r.sources[s.Category()]; dup {
			return nil, fmt.Errorf("category %q already has a source", s.Category())
		}
		r.sources[s.Category()] = s
	}
	return r, nil
}

func (r *Registry) Lookup(c models.Category) (Source, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.sources[c]
	return s, ok
}

// Categories lists the bound categories in a stable order.
func (r *Registry) Categories() []models.Category {
	out := make([]models.Category, 0, len(r.sources))
	for c := range r.sources {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// timeoutSource bounds every Fetch of the wrapped source.
type timeoutSource struct {
	Source
	timeout time.Duration
}

// WithTimeout wraps s so each Fetch runs under its own deadline.
func WithTimeout(s Source, timeout time.Duration) Source {
	if timeout <= 0 {
		return s
	}
	return &timeoutSource{Source: s, timeout: timeout}
}

func (t *timeoutSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.Source.Fetch(ctx, q)
}

// normalize stamps category and source name and drops entries without an ID.
func normalize(in []models.Candidate, category models.Category, source string) []models.Candidate {
	out := make([]models.Candidate, 0, len(in))
	for _, c := range in {
		if c.ID == "" {
			continue
		}
		if c.Category == "" {
			c.Category = category
		}
		if c.Source == "" {
			c.Source = source
		}
		out = append(out, c)
	}
	return out
}
