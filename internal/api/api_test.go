package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recommend-workers/internal/common/database"
	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/cache"
	"recommend-workers/internal/recommendation/finisher"
	"recommend-workers/internal/recommendation/pipeline"
	"recommend-workers/internal/recommendation/rerank"
	"recommend-workers/internal/recommendation/sources"
)

type recordingRecommender struct {
	lastRun      *pipeline.Request
	lastSections *pipeline.SectionsRequest
	err          error
}

func (r *recordingRecommender) Run(_ context.Context, req *pipeline.Request) (*pipeline.Response, error) {
	r.lastRun = req
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Response{RequestID: "run-1", Page: finisher.Page{Results: []models.RankedResult{}, Limit: 10}}, nil
}

func (r *recordingRecommender) RunSections(_ context.Context, req *pipeline.SectionsRequest) (*pipeline.SectionsResponse, error) {
	r.lastSections = req
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.SectionsResponse{RequestID: "sections-1", Sections: map[string]pipeline.Section{}}, nil
}

func doGet(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetRecommendations_ParsesQuery(t *testing.T) {
	rec := &recordingRecommender{}
	h := NewServer(rec, time.Second, logger.NewTestLogger(t)).Routes()

	params := url.Values{
		"category":      {"restaurants"},
		"limit":         {"5"},
		"offset":        {"10"},
		"seen_ids":      {"a, b,,c"},
		"lat":           {"37.77"},
		"lng":           {"-122.41"},
		"radius_meters": {"1500"},
		"sort_by":       {"distance"},
		"mode":          {"decide"},
		"user_id":       {"u-1"},
		"mood":          {"cozy,date"},
		"max_price":     {"2"},
		"taste_profile": {`{"restaurants":{"tags":{"ramen":0.8,"sushi":0.9}}}`},
	}
	resp := doGet(t, h, "/api/recommendations?"+params.Encode())
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	got := rec.lastRun
	require.NotNil(t, got)
	assert.Equal(t, "restaurants", got.Category)
	assert.Equal(t, 5, got.Limit)
	assert.Equal(t, 10, got.Offset)
	assert.Equal(t, []string{"a", "b", "c"}, got.SeenIDs)
	assert.InDelta(t, 37.77, *got.Lat, 1e-9)
	assert.InDelta(t, 1500, *got.RadiusMeters, 1e-9)
	assert.Equal(t, "distance", got.SortBy)
	assert.Equal(t, "decide", got.Mode)
	assert.Equal(t, []string{"cozy", "date"}, got.Moods)
	assert.Equal(t, 2, *got.MaxPrice)
	assert.Nil(t, got.MaxMinutes)

	tags := got.TasteProfile[models.CategoryRestaurants].Tags
	require.Len(t, tags, 2)
	assert.Equal(t, "sushi", tags[0].Tag)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["requestId"])
	assert.Contains(t, body, "hasMore")
}

func TestGetRecommendations_RejectsBadInput(t *testing.T) {
	rec := &recordingRecommender{}
	h := NewServer(rec, time.Second, logger.NewTestLogger(t)).Routes()

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"missing category", "", "INVALID_REQUEST"},
		{"non numeric limit", "category=movies&limit=ten", "INVALID_REQUEST"},
		{"negative offset", "category=movies&offset=-1", "INVALID_REQUEST"},
		{"latitude out of range", "category=movies&lat=120&lng=0", "INVALID_REQUEST"},
		{"unknown mode", "category=movies&mode=browse", "INVALID_REQUEST"},
		{"malformed taste profile", "category=movies&taste_profile=%7Bnope", "INVALID_TASTE_PROFILE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.lastRun = nil
			resp := doGet(t, h, "/api/recommendations?"+tt.query)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.code, decodeError(t, resp).Error.Code)
			assert.Nil(t, rec.lastRun)
		})
	}
}

func TestGetRecommendations_MapsPipelineErrors(t *testing.T) {
	rec := &recordingRecommender{err: apperrors.NewInvalidSortError("price")}
	h := NewServer(rec, time.Second, logger.NewTestLogger(t)).Routes()

	resp := doGet(t, h, "/api/recommendations?category=movies&sort_by=price")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	body := decodeError(t, resp)
	assert.Equal(t, "INVALID_SORT", body.Error.Code)
	assert.NotEmpty(t, body.RequestID)

	rec.err = apperrors.NewInternalError(assert.AnError)
	resp = doGet(t, h, "/api/recommendations?category=movies")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Empty(t, decodeError(t, resp).Error.Details)
}

func TestGetSections(t *testing.T) {
	rec := &recordingRecommender{}
	h := NewServer(rec, time.Second, logger.NewTestLogger(t)).Routes()

	resp := doGet(t, h, "/api/recommendations/sections?sections=movies_tonight,books_to_read&seen_ids=x&limit=4")
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, rec.lastSections)
	assert.Equal(t, []string{"movies_tonight", "books_to_read"}, rec.lastSections.Keys)
	assert.Equal(t, []string{"x"}, rec.lastSections.SeenIDs)
	assert.Equal(t, 4, rec.lastSections.Limit)
}

func TestEndToEnd_WithPipeline(t *testing.T) {
	reg, err := sources.NewRegistry(sources.NewStaticSource(models.CategoryBooks, []models.Candidate{
		{ID: "b1", Category: models.CategoryBooks, Title: "Dune"},
		{ID: "b2", Category: models.CategoryBooks, Title: "Emma"},
	}))
	require.NoError(t, err)
	p := pipeline.New(pipeline.Options{}, reg, cache.NewMemoryStore(time.Minute), rerank.NewDeterministicRanker(nil), logger.NewTestLogger(t))
	h := NewServer(p, time.Second, logger.NewTestLogger(t)).Routes()

	resp := doGet(t, h, "/api/recommendations?category=books&seen_ids=b1")
	require.Equal(t, http.StatusOK, resp.Code)

	var body pipeline.Response
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "b2", body.Results[0].Object.ID)
	assert.Equal(t, 1, body.Results[0].Rank)
	assert.False(t, body.HasMore)

	resp = doGet(t, h, "/api/recommendations?category=cars")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "INVALID_CATEGORY", decodeError(t, resp).Error.Code)
}

type stubPinger struct {
	name string
	err  error
}

func (s stubPinger) Name() string               { return s.name }
func (s stubPinger) Ping(context.Context) error { return s.err }

var _ database.Pinger = stubPinger{}

func TestHealthAndReady(t *testing.T) {
	healthy := NewServer(&recordingRecommender{}, time.Second, logger.NewTestLogger(t), stubPinger{name: "redis"}).Routes()
	assert.Equal(t, http.StatusOK, doGet(t, healthy, "/health").Code)
	assert.Equal(t, http.StatusOK, doGet(t, healthy, "/ready").Code)

	broken := NewServer(&recordingRecommender{}, time.Second, logger.NewTestLogger(t),
		stubPinger{name: "redis"}, stubPinger{name: "postgres", err: assert.AnError}).Routes()
	resp := doGet(t, broken, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "postgres")
	assert.NotContains(t, resp.Body.String(), "\"redis\"")
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(&recordingRecommender{}, time.Second, logger.NewTestLogger(t)).Routes()
	resp := doGet(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "go_goroutines")
}
