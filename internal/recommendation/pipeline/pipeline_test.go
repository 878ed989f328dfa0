package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/cache"
	"recommend-workers/internal/recommendation/rerank"
	"recommend-workers/internal/recommendation/scoring"
	"recommend-workers/internal/recommendation/sources"
)

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func testScorer() *scoring.Scorer {
	return scoring.New().WithClock(func() time.Time { return fixedNow })
}

func movies(n int) []models.Candidate {
	out := make([]models.Candidate, n)
	for i := range out {
		out[i] = models.Candidate{
			ID:       fmt.Sprintf("m%d", i+1),
			Category: models.CategoryMovies,
			Title:    fmt.Sprintf("Movie %d", i+1),
			ExternalRatings: []models.ExternalRating{
				{Source: "tmdb", Score: float64(5 + i%5), Count: 100 * (i + 1)},
			},
		}
	}
	return out
}

type fixture struct {
	pipeline *Pipeline
	source   *sources.StaticSource
	store    *cache.MemoryStore
}

func newFixture(t *testing.T, category models.Category, candidates []models.Candidate, options ...Option) *fixture {
	t.Helper()
	src := sources.NewStaticSource(category, candidates)
	reg, err := sources.NewRegistry(src)
	require.NoError(t, err)

	store := cache.NewMemoryStore(cache.DefaultTTL)
	p := New(Options{}, reg, store, rerank.NewDeterministicRanker(testScorer()), logger.NewTestLogger(t), options...)
	return &fixture{pipeline: p, source: src, store: store}
}

func resultIDs(results []models.RankedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Object.ID
	}
	return out
}

func TestRun_Validation(t *testing.T) {
	f := newFixture(t, models.CategoryMovies, movies(3))

	tests := []struct {
		name string
		req  Request
		code apperrors.ErrorCode
	}{
		{"missing category", Request{}, apperrors.ErrCodeInvalidRequest},
		{"unknown category", Request{Category: "cars"}, apperrors.ErrCodeInvalidCategory},
		{"limit too large", Request{Category: "movies", Limit: 51}, apperrors.ErrCodeInvalidRequest},
		{"negative limit", Request{Category: "movies", Limit: -1}, apperrors.ErrCodeInvalidRequest},
		{"negative offset", Request{Category: "movies", Offset: -2}, apperrors.ErrCodeInvalidRequest},
		{"bad sort", Request{Category: "movies", SortBy: "price"}, apperrors.ErrCodeInvalidSort},
		{"bad mode", Request{Category: "movies", Mode: "browse"}, apperrors.ErrCodeInvalidRequest},
		{"lat without lng", Request{Category: "movies", Lat: ptr(1.0)}, apperrors.ErrCodeInvalidRequest},
		{"lat out of range", Request{Category: "movies", Lat: ptr(91.0), Lng: ptr(0.0)}, apperrors.ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.pipeline.Run(context.Background(), &req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.AsStandardError(err).Code)
			assert.True(t, apperrors.IsClientError(err))
		})
	}
}

func TestRun_DefaultsAndCaching(t *testing.T) {
	f := newFixture(t, models.CategoryMovies, movies(30))

	resp, err := f.pipeline.Run(context.Background(), &Request{Category: "Movies"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, 10, resp.Limit)
	assert.Len(t, resp.Results, 10)
	assert.Equal(t, 20, resp.Total)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 1, f.source.Calls)

	for i, r := range resp.Results {
		assert.Equal(t, i+1, r.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Results[i-1].PersonalizedScore, r.PersonalizedScore)
		}
	}

	// same key within TTL: served from cache
	_, err = f.pipeline.Run(context.Background(), &Request{Category: "movies", Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, f.source.Calls)
}

func TestRun_CacheExpiryRefetches(t *testing.T) {
	now := fixedNow
	f := newFixture(t, models.CategoryMovies, movies(25))
	f.store.WithClock(func() time.Time { return now })

	_, err := f.pipeline.Run(context.Background(), &Request{Category: "movies"})
	require.NoError(t, err)

	now = now.Add(cache.DefaultTTL + time.Second)
	_, err = f.pipeline.Run(context.Background(), &Request{Category: "movies"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.source.Calls)
}

func TestRun_SingleBackfillAfterSeenFilter(t *testing.T) {
	f := newFixture(t, models.CategoryMovies, movies(10))

	key := cache.BuildKey(models.CategoryMovies, nil, nil, nil, "")
	cached := []models.Candidate{
		{ID: "s1", Category: models.CategoryMovies},
		{ID: "s2", Category: models.CategoryMovies},
		{ID: "fresh", Category: models.CategoryMovies},
	}
	f.store.Put(context.Background(), key, cached)

	resp, err := f.pipeline.Run(context.Background(), &Request{
		Category: "movies",
		Limit:    5,
		SeenIDs:  []string{"s1", "s2"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.source.Calls, "exactly one backfill fetch")
	assert.LessOrEqual(t, len(resp.Results), 5)
	assert.Equal(t, 11, resp.Total)
	for _, r := range resp.Results {
		assert.NotContains(t, []string{"s1", "s2"}, r.Object.ID)
	}

	entry, ok := f.store.Get(context.Background(), key+":backfill")
	require.True(t, ok)
	assert.Len(t, entry.Candidates, 10)
}

func TestRun_NoBackfillWhenPageIsFull(t *testing.T) {
	f := newFixture(t, models.CategoryMovies, movies(10))

	resp, err := f.pipeline.Run(context.Background(), &Request{Category: "movies", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, 1, f.source.Calls)
	assert.Len(t, resp.Results, 5)
	assert.Equal(t, 10, resp.Total)
	assert.True(t, resp.HasMore)

	_, ok := f.store.Get(context.Background(), cache.BuildKey(models.CategoryMovies, nil, nil, nil, "")+":backfill")
	assert.False(t, ok)
}

func TestRun_SourceFailureIsEmptyResult(t *testing.T) {
	f := newFixture(t, models.CategoryBooks, nil)
	f.source.Err = errors.New("upstream 503")

	resp, err := f.pipeline.Run(context.Background(), &Request{Category: "books"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.Total)
	assert.False(t, resp.HasMore)
	// primary and backfill both attempted
	assert.Equal(t, 2, f.source.Calls)
}

func TestRun_UnregisteredCategoryIsEmptyResult(t *testing.T) {
	f := newFixture(t, models.CategoryBooks, movies(3))

	resp, err := f.pipeline.Run(context.Background(), &Request{Category: "shows"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestRun_GeoFilterAndDistanceSort(t *testing.T) {
	home := models.Coordinates{Lat: 37.7749, Lng: -122.4194}
	place := func(id string, miles float64) models.Candidate {
		lat := home.Lat + miles/69.093
		return models.Candidate{ID: id, Category: models.CategoryRestaurants, Location: &models.Location{Lat: &lat, Lng: ptr(home.Lng)}}
	}
	candidates := []models.Candidate{
		place("far", 25),
		place("edge", 19.9),
		place("near", 1),
		{ID: "nowhere", Category: models.CategoryRestaurants},
	}
	f := newFixture(t, models.CategoryRestaurants, candidates)

	resp, err := f.pipeline.Run(context.Background(), &Request{
		Category:     "restaurants",
		Lat:          &home.Lat,
		Lng:          &home.Lng,
		RadiusMeters: ptr(10 * 1609.344),
		SortBy:       "distance",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"near", "edge", "nowhere"}, resultIDs(resp.Results))
	require.NotNil(t, resp.Results[0].Distance)
	assert.InDelta(t, 1.0, *resp.Results[0].Distance, 0.05)
	assert.Nil(t, resp.Results[2].Distance)
}

type stubProfiles struct {
	profile *models.UserProfile
	err     error
}

func (s stubProfiles) GetProfile(context.Context, string) (*models.UserProfile, error) {
	return s.profile, s.err
}

type stubFriends struct {
	ratings []models.FriendRating
	gotIDs  []string
}

func (s *stubFriends) ForCandidates(_ context.Context, _ string, ids []string) ([]models.FriendRating, error) {
	s.gotIDs = ids
	return s.ratings, nil
}

func TestRun_ProfileAndFriendSignals(t *testing.T) {
	candidates := []models.Candidate{
		{ID: "burger", Category: models.CategoryRestaurants, Tags: []string{"Burger", "Casual"}},
		{ID: "sushi", Category: models.CategoryRestaurants, Tags: []string{"Japanese", "Omakase"}},
		{ID: "taco", Category: models.CategoryRestaurants, Tags: []string{"Mexican"}},
	}
	stored := &models.UserProfile{
		ID:       "u1",
		Location: &models.Coordinates{Lat: 10, Lng: 10},
		TasteProfile: map[models.Category]models.CategoryTaste{
			models.CategoryRestaurants: {Tags: []models.TagWeight{{Tag: "Mexican", Weight: 1}}},
		},
	}
	friends := &stubFriends{ratings: []models.FriendRating{{UserID: "f1", CandidateID: "burger", Score: 10}}}

	f := newFixture(t, models.CategoryRestaurants, candidates,
		WithProfiles(stubProfiles{profile: stored}),
		WithFriendRatings(friends),
	)

	// inline taste profile overrides the stored one
	resp, err := f.pipeline.Run(context.Background(), &Request{
		Category: "restaurants",
		UserID:   "u1",
		TasteProfile: map[models.Category]models.CategoryTaste{
			models.CategoryRestaurants: {Tags: []models.TagWeight{{Tag: "Japanese", Weight: 1.8}}},
		},
	})
	require.NoError(t, err)

	// burger: friend 10 -> 7.0; sushi: taste 10 -> 6.25 -> 6.3; taco: neutral 5.0
	assert.Equal(t, []string{"burger", "sushi", "taco"}, resultIDs(resp.Results))
	assert.ElementsMatch(t, []string{"burger", "sushi", "taco"}, friends.gotIDs)
	assert.Equal(t, "Mexican", stored.TasteProfile[models.CategoryRestaurants].Tags[0].Tag, "stored profile untouched")
}

func TestRun_ProfileNotFoundIsAnonymous(t *testing.T) {
	f := newFixture(t, models.CategoryMovies, movies(3), WithProfiles(stubProfiles{err: models.ErrProfileNotFound}))

	resp, err := f.pipeline.Run(context.Background(), &Request{Category: "movies", UserID: "ghost"})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
}

func TestRun_MalformedLLMMatchesDeterministic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "```json\n{not json at all\n```"})
	}))
	defer server.Close()

	candidates := movies(8)
	profile := map[models.Category]models.CategoryTaste{
		models.CategoryMovies: {Tags: []models.TagWeight{{Tag: "noir", Weight: 0.9}}},
	}
	req := func() *Request {
		return &Request{Category: "movies", TasteProfile: profile, Limit: 8}
	}

	deterministic := newFixture(t, models.CategoryMovies, candidates)
	want, err := deterministic.pipeline.Run(context.Background(), req())
	require.NoError(t, err)

	llm := rerank.NewLLMRanker(rerank.LLMConfig{BaseURL: server.URL, Timeout: time.Second}, testScorer(), logger.NewTestLogger(t))
	withLLM := newFixture(t, models.CategoryMovies, candidates)
	withLLM.pipeline.ranker = rerank.NewFallbackRanker(llm, rerank.NewDeterministicRanker(testScorer()), logger.NewTestLogger(t))

	got, err := withLLM.pipeline.Run(context.Background(), req())
	require.NoError(t, err)

	assert.Equal(t, want.Page, got.Page)
	for _, r := range got.Results {
		assert.Nil(t, r.Explanation)
	}
}

type failingRanker struct{}

func (failingRanker) Name() string { return "failing" }
func (failingRanker) Rank(context.Context, rerank.Request) ([]models.RankedResult, error) {
	return nil, errors.New("boom")
}

func TestRunSections(t *testing.T) {
	movieSrc := sources.NewStaticSource(models.CategoryMovies, movies(12))
	bookSrc := sources.NewStaticSource(models.CategoryBooks, []models.Candidate{{ID: "b1"}, {ID: "b2"}})
	reg, err := sources.NewRegistry(movieSrc, bookSrc)
	require.NoError(t, err)

	p := New(Options{}, reg, cache.NewMemoryStore(cache.DefaultTTL), rerank.NewDeterministicRanker(testScorer()), logger.NewTestLogger(t),
		WithSections([]SectionSpec{
			{Key: "movies_tonight", Title: "Movies tonight", Emoji: "🎬", Category: models.CategoryMovies},
			{Key: "books", Title: "Books to read", Emoji: "📚", Category: models.CategoryBooks},
			{Key: "shows", Title: "Shows", Category: models.CategoryShows},
		}))

	resp, err := p.RunSections(context.Background(), &SectionsRequest{Request: Request{SeenIDs: []string{"m1"}}})
	require.NoError(t, err)

	require.Contains(t, resp.Sections, "movies_tonight")
	movieSection := resp.Sections["movies_tonight"]
	assert.Equal(t, "Movies tonight", movieSection.Title)
	assert.Equal(t, "🎬", movieSection.Emoji)
	assert.Len(t, movieSection.Items, DefaultSectionLimit)
	assert.NotContains(t, resultIDs(movieSection.Items), "m1")

	assert.Len(t, resp.Sections["books"].Items, 2)
	assert.Empty(t, resp.Sections["shows"].Items)

	only, err := p.RunSections(context.Background(), &SectionsRequest{Keys: []string{"books"}})
	require.NoError(t, err)
	assert.Len(t, only.Sections, 1)

	_, err = p.RunSections(context.Background(), &SectionsRequest{Keys: []string{"nope"}})
	assert.True(t, apperrors.IsClientError(err))
}

func TestRunSections_FailingSectionOmitted(t *testing.T) {
	src := sources.NewStaticSource(models.CategoryMovies, movies(3))
	reg, err := sources.NewRegistry(src)
	require.NoError(t, err)

	p := New(Options{}, reg, cache.NewMemoryStore(cache.DefaultTTL), failingRanker{}, logger.NewTestLogger(t),
		WithSections([]SectionSpec{{Key: "movies", Title: "Movies", Category: models.CategoryMovies}}))

	resp, err := p.RunSections(context.Background(), &SectionsRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Sections)
}
