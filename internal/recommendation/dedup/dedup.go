// Package dedup removes already-seen and repeated candidates and tops the list
// up with at most one backfill fetch.
package dedup

import (
	"context"

	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
)

// DefaultBackfillSize is the batch requested by the single backfill fetch.
const DefaultBackfillSize = 50

// BackfillFunc fetches a fresh batch of up to size candidates.
type BackfillFunc func(ctx context.Context, size int) ([]models.Candidate, error)

type Result struct {
	Candidates []models.Candidate
	Backfilled bool
	// Dropped counts seen or duplicate entries removed across both passes.
	Dropped int
}

type Deduplicator struct {
	backfillSize int
	logger       logger.Logger
}

func New(backfillSize int, log logger.Logger) *Deduplicator {
	if backfillSize <= 0 {
		backfillSize = DefaultBackfillSize
	}
	return &Deduplicator{backfillSize: backfillSize, logger: logger.ForComponent(log, "dedup")}
}

// Apply filters candidates against seenIDs, keeping the first occurrence of
// each ID, and truncates to limit. When fewer than limit remain and backfill is
// non-nil it is called exactly once; its errors count as an empty batch.
func (d *Deduplicator) Apply(ctx context.Context, candidates []models.Candidate, seenIDs []string, limit int, backfill BackfillFunc) Result {
	return d.ApplyWithTarget(ctx, candidates, seenIDs, limit, limit, backfill)
}

// ApplyWithTarget is Apply with the backfill trigger decoupled from the
// truncation size: backfill runs only when fewer than target candidates
// survive, while up to limit are kept.
func (d *Deduplicator) ApplyWithTarget(ctx context.Context, candidates []models.Candidate, seenIDs []string, target, limit int, backfill BackfillFunc) Result {
	if target > limit {
		target = limit
	}

	seen := make(map[string]struct{}, len(seenIDs)+len(candidates))
	for _, id := range seenIDs {
		seen[id] = struct{}{}
	}

	out := make([]models.Candidate, 0, limit)
	var res Result

	take := func(batch []models.Candidate) {
		for _, c := range batch {
			if len(out) >= limit {
				return
			}
			if _, dup := seen[c.ID]; dup {
				res.Dropped++
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}

	take(candidates)

	if len(out) < target && backfill != nil {
		res.Backfilled = true
		extra, err := backfill(ctx, d.backfillSize)
		if err != nil {
			d.logger.Warn("Backfill fetch failed, continuing with primary batch", map[string]interface{}{
				"error":  err,
				"have":   len(out),
				"target": target,
			})
			extra = nil
		}
		take(extra)
	}

	res.Candidates = out
	return res
}
