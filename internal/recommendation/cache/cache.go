// Package cache holds short-lived batches of raw candidates keyed by query shape.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recommend-workers/internal/models"
)

const DefaultTTL = 5 * time.Minute

type Entry struct {
	Key        string             `json:"key"`
	Candidates []models.Candidate `json:"candidates"`
	FetchedAt  time.Time          `json:"fetchedAt"`
}

// Fresh reports whether the entry is still inside ttl at now.
func (e *Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return e != nil && now.Sub(e.FetchedAt) < ttl
}

// Store is the process-wide candidate cache. Implementations must be safe for
// concurrent use. A Get miss never means "no candidates exist"; callers fall
// through to the source.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool)
	Put(ctx context.Context, key string, candidates []models.Candidate)
}

// BuildKey derives a deterministic key from the query shape. Coordinates are
// rounded to 4 decimals (~11m) so jittery client locations share entries.
func BuildKey(category models.Category, lat, lng *float64, radiusMeters *float64, query string) string {
	parts := []string{"cat=" + string(category)}
	if lat != nil && lng != nil {
		parts = append(parts, fmt.Sprintf("loc=%.4f,%.4f", *lat, *lng))
	} else {
		parts = append(parts, "loc=none")
	}
	if radiusMeters != nil {
		parts = append(parts, fmt.Sprintf("r=%.0f", *radiusMeters))
	} else {
		parts = append(parts, "r=none")
	}
	parts = append(parts, "q="+strings.ToLower(strings.TrimSpace(query)))
	return strings.Join(parts, "|")
}
