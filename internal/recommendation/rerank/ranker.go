// Package rerank orders deduplicated candidates into personalized results.
package rerank

import (
	"context"
	"sort"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/common/metrics"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/scoring"
)

type Request struct {
	Candidates []models.Candidate
	Signals    scoring.Signals
}

// Ranker returns every input candidate exactly once, best first.
type Ranker interface {
	Name() string
	Rank(ctx context.Context, req Request) ([]models.RankedResult, error)
}

// DeterministicRanker scores with the multi-signal model and sorts by score,
// keeping input order among ties. It never fails.
type DeterministicRanker struct {
	scorer *scoring.Scorer
}

func NewDeterministicRanker(scorer *scoring.Scorer) *DeterministicRanker {
	if scorer == nil {
		scorer = scoring.New()
	}
	return &DeterministicRanker{scorer: scorer}
}

func (d *DeterministicRanker) Name() string { return "deterministic" }

func (d *DeterministicRanker) Rank(_ context.Context, req Request) ([]models.RankedResult, error) {
	results := make([]models.RankedResult, len(req.Candidates))
	for i, c := range req.Candidates {
		results[i] = d.result(c, req.Signals)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].PersonalizedScore > results[j].PersonalizedScore
	})
	assignRanks(results)
	return results, nil
}

func (d *DeterministicRanker) result(c models.Candidate, sig scoring.Signals) models.RankedResult {
	s := d.scorer.Score(c, sig)
	breakdown := s.Breakdown
	return models.RankedResult{
		Object:            c,
		PersonalizedScore: s.Personalized,
		Breakdown:         &breakdown,
	}
}

// FallbackRanker tries Primary and silently switches to Fallback on any error.
type FallbackRanker struct {
	Primary  Ranker
	Fallback Ranker
	logger   logger.Logger
}

func NewFallbackRanker(primary, fallback Ranker, log logger.Logger) *FallbackRanker {
	return &FallbackRanker{
		Primary:  primary,
		Fallback: fallback,
		logger:   logger.ForComponent(log, "rerank"),
	}
}

func (f *FallbackRanker) Name() string {
	if f.Primary == nil {
		return f.Fallback.Name()
	}
	return f.Primary.Name() + "+" + f.Fallback.Name()
}

func (f *FallbackRanker) Rank(ctx context.Context, req Request) ([]models.RankedResult, error) {
	if f.Primary == nil || len(req.Candidates) == 0 {
		return f.Fallback.Rank(ctx, req)
	}

	results, err := f.Primary.Rank(ctx, req)
	if err == nil {
		metrics.RerankOutcomes.WithLabelValues(f.Primary.Name(), "ok").Inc()
		return results, nil
	}

	stdErr := apperrors.AsStandardError(err)
	metrics.RerankOutcomes.WithLabelValues("fallback", string(stdErr.Code)).Inc()
	f.logger.Warn("Primary ranker failed, using fallback", map[string]interface{}{
		"ranker":     f.Primary.Name(),
		"errorCode":  string(stdErr.Code),
		"details":    stdErr.Details,
		"candidates": len(req.Candidates),
	})

	return f.Fallback.Rank(ctx, req)
}

func assignRanks(results []models.RankedResult) {
	for i := range results {
		results[i].Rank = i + 1
	}
}
