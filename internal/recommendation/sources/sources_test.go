package sources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpclient "recommend-workers/internal/common/http"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
	"recommend-workers/pkg/registry"
)

func ptr[T any](v T) *T { return &v }

func TestRegistry_RejectsDuplicateCategory(t *testing.T) {
	_, err := NewRegistry(
		NewStaticSource(models.CategoryBooks, nil),
		NewStaticSource(models.CategoryBooks, nil),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a source")
}

func TestRegistry_Lookup(t *testing.T) {
	reg, err := NewRegistry(
		NewStaticSource(models.CategoryMovies, nil),
		NewStaticSource(models.CategoryBooks, nil),
	)
	require.NoError(t, err)

	src, ok := reg.Lookup(models.CategoryMovies)
	require.True(t, ok)
	assert.Equal(t, models.CategoryMovies, src.Category())

	_, ok = reg.Lookup(models.CategoryRestaurants)
	assert.False(t, ok)
	assert.Equal(t, []models.Category{models.CategoryBooks, models.CategoryMovies}, reg.Categories())
}

func TestHTTPSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candidates", r.URL.Path)
		assert.Equal(t, "restaurants", r.URL.Query().Get("category"))
		assert.Equal(t, "37.7749", r.URL.Query().Get("lat"))
		assert.Equal(t, "-122.4194", r.URL.Query().Get("lng"))
		assert.Equal(t, "1609", r.URL.Query().Get("radius"))
		assert.Equal(t, "sushi", r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[
			{"id":"r1","title":"Omakase","tags":["Japanese"]},
			{"id":"","title":"no id"},
			{"id":"r2","title":"Burger Barn","category":"restaurants","source":"yelp"}
		]}`))
	}))
	defer server.Close()

	src := NewHTTPSource("places", models.CategoryRestaurants, server.URL+"/", httpclient.NewClient(time.Second))
	got, err := src.Fetch(context.Background(), Query{
		Lat:          ptr(37.7749),
		Lng:          ptr(-122.4194),
		RadiusMeters: ptr(1609.0),
		Text:         "sushi",
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, models.CategoryRestaurants, got[0].Category)
	assert.Equal(t, "places", got[0].Source)
	assert.Equal(t, "yelp", got[1].Source)
}

func TestHTTPSource_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewHTTPSource("places", models.CategoryRestaurants, server.URL, httpclient.NewClient(time.Second))
	_, err := src.Fetch(context.Background(), Query{})
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestWithTimeout_BoundsFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	src := WithTimeout(NewHTTPSource("slow", models.CategoryMovies, server.URL, httpclient.NewClient(5*time.Second)), 30*time.Millisecond)
	start := time.Now()
	_, err := src.Fetch(context.Background(), Query{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func newTestESClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSource_Fetch(t *testing.T) {
	var captured map[string]interface{}
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candidates/_search", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"doc-1","_source":{"title":"Escape Room","tags":["puzzle"]}},
			{"_id":"doc-2","_source":{"id":"act-2","title":"Climbing Gym"}}
		]}}`))
	})

	src := NewElasticsearchSource("es-activities", models.CategoryActivities, "candidates", client)
	got, err := src.Fetch(context.Background(), Query{
		Lat:          ptr(40.0),
		Lng:          ptr(-74.0),
		RadiusMeters: ptr(5000.0),
		Text:         "climbing",
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "doc-1", got[0].ID)
	assert.Equal(t, "act-2", got[1].ID)
	assert.Equal(t, models.CategoryActivities, got[1].Category)

	assert.EqualValues(t, 10, captured["size"])
	boolQuery := captured["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filters := boolQuery["filter"].([]interface{})
	require.Len(t, filters, 2)
	geoFilter := filters[1].(map[string]interface{})["geo_distance"].(map[string]interface{})
	assert.Equal(t, "10000m", geoFilter["distance"])
	assert.Len(t, boolQuery["must"], 1)
}

func TestElasticsearchSource_NoGeoFilterForMovies(t *testing.T) {
	src := NewElasticsearchSource("es-movies", models.CategoryMovies, "candidates", nil)
	q := src.buildQuery(Query{Lat: ptr(1.0), Lng: ptr(2.0), RadiusMeters: ptr(100.0)})

	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["filter"], 1)
	assert.NotContains(t, boolQuery, "must")
	assert.Equal(t, DefaultLimit, q["size"])
}

func TestElasticsearchSource_ErrorStatus(t *testing.T) {
	client := newTestESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})

	src := NewElasticsearchSource("es-books", models.CategoryBooks, "candidates", client)
	_, err := src.Fetch(context.Background(), Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search error")
}

var catalogColumns = []string{
	"id", "title", "description", "tags", "mood_tags", "price_level", "lat", "lng",
	"address", "rating", "review_count", "image_url", "created_at",
}

func TestPostgresSource_Fetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(catalogColumns).
		AddRow("b1", "Dune", "Desert epic", "{scifi,classic}", "{epic}", nil, nil, nil, nil, 9.1, 1200, nil, created).
		AddRow("b2", "Emma", nil, "{}", "{}", 2, nil, nil, nil, nil, nil, "https://img/emma.jpg", nil)

	mock.ExpectQuery(`SELECT (.+) FROM catalog_items WHERE category = \$1 AND title ILIKE \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("books", "%dun%", 15).
		WillReturnRows(rows)

	src, err := NewPostgresSource("catalog-books", models.CategoryBooks, "", db)
	require.NoError(t, err)

	got, err := src.Fetch(context.Background(), Query{Text: "dun", Limit: 15})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []string{"scifi", "classic"}, got[0].Tags)
	require.NotNil(t, got[0].Rating)
	assert.Equal(t, 9.1, *got[0].Rating)
	require.Len(t, got[0].ExternalRatings, 1)
	assert.Equal(t, 1200, got[0].ExternalRatings[0].Count)
	assert.Equal(t, created, *got[0].CreatedAt)
	assert.Nil(t, got[0].Location)

	require.NotNil(t, got[1].PriceLevel)
	assert.Equal(t, 2, *got[1].PriceLevel)
	assert.Nil(t, got[1].Rating)
	assert.Equal(t, "catalog-books", got[1].Source)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM catalog_items`).WillReturnError(errors.New("connection refused"))

	src, err := NewPostgresSource("catalog-books", models.CategoryBooks, "catalog_items", db)
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewPostgresSource_RejectsUnsafeTable(t *testing.T) {
	_, err := NewPostgresSource("x", models.CategoryBooks, "items; DROP TABLE users", nil)
	assert.Error(t, err)
}

func TestBuild_FromManifest(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	manifest := &registry.SourceManifest{Sources: []registry.SourceDefinition{
		{Name: "places", Category: "restaurants", Kind: registry.KindHTTP, BaseURL: "http://places", Timeout: "2s"},
		{Name: "catalog", Category: "books", Kind: registry.KindPostgres},
	}}

	reg, err := Build(manifest, Backends{HTTP: httpclient.NewClient(time.Second), Postgres: db}, 5*time.Second, logger.NewTestLogger(t))
	require.NoError(t, err)

	src, ok := reg.Lookup(models.CategoryRestaurants)
	require.True(t, ok)
	wrapped, ok := src.(*timeoutSource)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, wrapped.timeout)

	books, ok := reg.Lookup(models.CategoryBooks)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, books.(*timeoutSource).timeout)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     registry.SourceDefinition
		wantErr string
	}{
		{"unknown category", registry.SourceDefinition{Category: "cars", Kind: registry.KindHTTP, BaseURL: "http://x"}, "unknown category"},
		{"missing elasticsearch", registry.SourceDefinition{Category: "movies", Kind: registry.KindElasticsearch}, "no elasticsearch client"},
		{"missing http client", registry.SourceDefinition{Category: "movies", Kind: registry.KindHTTP, BaseURL: "http://x"}, "no http client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &registry.SourceManifest{Sources: []registry.SourceDefinition{tt.def}}
			_, err := Build(m, Backends{}, time.Second, logger.NewNoOpLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
