// Package pipeline wires candidate fetching, dedup, ranking, geo filtering and
// pagination into a single request flow.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/common/metrics"
	"recommend-workers/internal/common/observability"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/cache"
	"recommend-workers/internal/recommendation/dedup"
	"recommend-workers/internal/recommendation/finisher"
	"recommend-workers/internal/recommendation/geo"
	"recommend-workers/internal/recommendation/rerank"
	"recommend-workers/internal/recommendation/scoring"
	"recommend-workers/internal/recommendation/sources"
)

// ProfileProvider loads stored profiles. models.ErrProfileNotFound makes the
// run continue as anonymous.
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type FriendRatingProvider interface {
	ForCandidates(ctx context.Context, userID string, candidateIDs []string) ([]models.FriendRating, error)
}

type Options struct {
	DefaultLimit     int
	MaxLimit         int
	PrimaryBatchSize int
	BackfillSize     int
}

func (o *Options) applyDefaults() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 10
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 50
	}
	if o.PrimaryBatchSize <= 0 {
		o.PrimaryBatchSize = 20
	}
	if o.BackfillSize <= 0 {
		o.BackfillSize = dedup.DefaultBackfillSize
	}
}

type Option func(*Pipeline)

func WithProfiles(p ProfileProvider) Option {
	return func(pl *Pipeline) { pl.profiles = p }
}

func WithFriendRatings(f FriendRatingProvider) Option {
	return func(pl *Pipeline) { pl.friends = f }
}

func WithObservability(o *observability.Observability) Option {
	return func(pl *Pipeline) { pl.obs = o }
}

func WithSections(sections []SectionSpec) Option {
	return func(pl *Pipeline) { pl.sections = sections }
}

type Pipeline struct {
	opts     Options
	registry *sources.Registry
	cache    cache.Store
	ranker   rerank.Ranker
	dedup    *dedup.Deduplicator
	profiles ProfileProvider
	friends  FriendRatingProvider
	obs      *observability.Observability
	sections []SectionSpec
	logger   logger.Logger
}

func New(opts Options, registry *sources.Registry, store cache.Store, ranker rerank.Ranker, log logger.Logger, options ...Option) *Pipeline {
	opts.applyDefaults()
	log = logger.ForComponent(log, "pipeline")
	p := &Pipeline{
		opts:     opts,
		registry: registry,
		cache:    store,
		ranker:   ranker,
		dedup:    dedup.New(opts.BackfillSize, log),
		logger:   log,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run produces one ranked page. Only invalid requests are returned as errors;
// upstream and reranker failures degrade the result instead.
func (p *Pipeline) Run(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()

	n, err := p.validate(req)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(req.categoryLabel(), "invalid").Inc()
		return nil, err
	}

	ctx, span := p.obs.StartSpan(ctx, "pipeline.run",
		attribute.String("request.id", requestID),
		attribute.String("category", string(n.category)),
		attribute.Int("limit", n.limit),
		attribute.Int("offset", n.offset),
	)
	defer span.End()

	log := p.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"category":  string(n.category),
	})

	page, err := p.run(ctx, req, n, log)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	elapsed := time.Since(start)
	metrics.PipelineRuns.WithLabelValues(string(n.category), outcome).Inc()
	metrics.PipelineDuration.WithLabelValues(string(n.category)).Observe(elapsed.Seconds())

	if err != nil {
		p.obs.RecordRun(ctx, string(n.category), outcome, elapsed, 0)
		return nil, err
	}

	p.obs.RecordRun(ctx, string(n.category), outcome, elapsed, page.Total)
	log.Info("Pipeline run completed", map[string]interface{}{
		"total":      page.Total,
		"returned":   len(page.Results),
		"hasMore":    page.HasMore,
		"durationMs": elapsed.Milliseconds(),
	})

	return &Response{RequestID: requestID, Page: page}, nil
}

func (p *Pipeline) run(ctx context.Context, req *Request, n normalized, log logger.Logger) (finisher.Page, error) {
	profile := p.resolveProfile(ctx, req, log)
	user := userLocation(req, profile)

	want := n.offset + n.limit
	batch := want
	if batch < p.opts.PrimaryBatchSize {
		batch = p.opts.PrimaryBatchSize
	}

	q := sources.Query{
		Category:     n.category,
		Lat:          req.Lat,
		Lng:          req.Lng,
		RadiusMeters: req.RadiusMeters,
		Text:         req.Query,
		Limit:        batch,
	}
	if user != nil && q.Lat == nil {
		q.Lat, q.Lng = &user.Lat, &user.Lng
	}

	key := cache.BuildKey(n.category, q.Lat, q.Lng, q.RadiusMeters, q.Text)
	primary := p.primary(ctx, key, q, log)

	backfill := func(ctx context.Context, size int) ([]models.Candidate, error) {
		metrics.BackfillFetches.WithLabelValues(string(n.category)).Inc()
		bq := q
		bq.Limit = size
		candidates, err := p.fetch(ctx, bq)
		if err != nil {
			return nil, err
		}
		p.cache.Put(ctx, key+":backfill", candidates)
		return candidates, nil
	}

	deduped := p.dedup.ApplyWithTarget(ctx, primary, req.SeenIDs, want, batch, backfill)
	log.Debug("Candidates deduplicated", map[string]interface{}{
		"primary":    len(primary),
		"kept":       len(deduped.Candidates),
		"dropped":    deduped.Dropped,
		"backfilled": deduped.Backfilled,
	})

	signals := scoring.Signals{
		Profile: profile,
		Friends: p.friendRatings(ctx, req.UserID, deduped.Candidates, log),
		Context: models.RankContext{
			Category:   n.category,
			Mode:       n.mode,
			User:       user,
			Moods:      req.Moods,
			MaxPrice:   req.MaxPrice,
			MaxMinutes: req.MaxMinutes,
			QueryText:  req.Query,
		},
	}

	ranked, err := p.ranker.Rank(ctx, rerank.Request{Candidates: deduped.Candidates, Signals: signals})
	if err != nil {
		return finisher.Page{}, apperrors.NewInternalError(err)
	}

	var radiusMiles *float64
	if req.RadiusMeters != nil {
		r := geo.MetersToMiles(*req.RadiusMeters)
		radiusMiles = &r
	}
	filtered := geo.Filter(ranked, user, n.category, radiusMiles)

	return finisher.Finish(filtered, n.sortBy, n.offset, n.limit), nil
}

// primary serves the batch from cache when fresh, else from the source.
// Source failures yield an empty batch.
func (p *Pipeline) primary(ctx context.Context, key string, q sources.Query, log logger.Logger) []models.Candidate {
	if entry, ok := p.cache.Get(ctx, key); ok {
		metrics.CandidateCacheLookups.WithLabelValues(string(q.Category), "hit").Inc()
		return entry.Candidates
	}
	metrics.CandidateCacheLookups.WithLabelValues(string(q.Category), "miss").Inc()

	candidates, err := p.fetch(ctx, q)
	if err != nil {
		stdErr := apperrors.AsStandardError(err)
		log.Warn("Candidate source failed, continuing with empty batch", map[string]interface{}{
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
		return nil
	}

	p.cache.Put(ctx, key, candidates)
	return candidates
}

func (p *Pipeline) fetch(ctx context.Context, q sources.Query) ([]models.Candidate, error) {
	src, ok := p.registry.Lookup(q.Category)
	if !ok {
		metrics.SourceErrors.WithLabelValues(string(q.Category), string(apperrors.ErrCodeSourceNotRegistered)).Inc()
		return nil, apperrors.NewSourceNotRegisteredError(string(q.Category))
	}

	candidates, err := src.Fetch(ctx, q)
	if err == nil {
		return candidates, nil
	}

	var stdErr *apperrors.StandardError
	if errors.Is(err, context.DeadlineExceeded) {
		stdErr = apperrors.NewSourceTimeoutError(string(q.Category))
	} else {
		stdErr = apperrors.NewSourceFetchFailedError(string(q.Category), err)
	}
	metrics.SourceErrors.WithLabelValues(string(q.Category), string(stdErr.Code)).Inc()
	return nil, stdErr
}

func (p *Pipeline) resolveProfile(ctx context.Context, req *Request, log logger.Logger) *models.UserProfile {
	var profile *models.UserProfile
	if req.UserID != "" && p.profiles != nil {
		stored, err := p.profiles.GetProfile(ctx, req.UserID)
		switch {
		case err == nil:
			profile = stored
		case errors.Is(err, models.ErrProfileNotFound):
		default:
			log.Warn("Profile lookup failed, ranking without stored profile", map[string]interface{}{
				"userId": req.UserID,
				"error":  err,
			})
		}
	}

	if req.TasteProfile != nil {
		if profile == nil {
			profile = &models.UserProfile{ID: req.UserID}
		} else {
			copied := *profile
			profile = &copied
		}
		profile.TasteProfile = req.TasteProfile
	}
	return profile
}

func (p *Pipeline) friendRatings(ctx context.Context, userID string, candidates []models.Candidate, log logger.Logger) map[string][]models.FriendRating {
	if userID == "" || p.friends == nil || len(candidates) == 0 {
		return nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	ratings, err := p.friends.ForCandidates(ctx, userID, ids)
	if err != nil {
		log.Warn("Friend ratings unavailable", map[string]interface{}{"userId": userID, "error": err})
		return nil
	}
	return scoring.GroupByCandidate(ratings)
}

func userLocation(req *Request, profile *models.UserProfile) *models.Coordinates {
	if req.Lat != nil && req.Lng != nil {
		return &models.Coordinates{Lat: *req.Lat, Lng: *req.Lng}
	}
	if profile != nil && profile.Location != nil {
		loc := *profile.Location
		return &loc
	}
	return nil
}

func (r *Request) categoryLabel() string {
	if r == nil {
		return "unknown"
	}
	if c, ok := models.ParseCategory(r.Category); ok {
		return string(c)
	}
	return "unknown"
}
