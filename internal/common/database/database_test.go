package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recommend-workers/internal/common/config"
)

func TestRedis_Ping(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	client := NewPostgresFromDB(db)
	mock.ExpectPing()
	assert.NoError(t, client.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(assert.AnError)
	assert.Error(t, client.Ping(context.Background()))

	mock.ExpectClose()
	require.NoError(t, client.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestElasticsearch(t *testing.T, handler http.HandlerFunc) *ElasticsearchClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestElasticsearch_PingAndIndexExists(t *testing.T) {
	client := newTestElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/candidates":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, client.Ping(context.Background()))

	exists, err := client.IndexExists(context.Background(), "candidates")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.IndexExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestElasticsearch_RequiresAddress(t *testing.T) {
	_, err := NewElasticsearch(config.ElasticsearchConfig{})
	assert.Error(t, err)
}

type fakePinger struct {
	name string
	err  error
}

func (f fakePinger) Name() string                   { return f.name }
func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestCheckAll(t *testing.T) {
	failures := CheckAll(context.Background(), time.Second,
		fakePinger{name: "redis"},
		fakePinger{name: "postgres", err: assert.AnError},
		nil,
	)
	assert.Equal(t, map[string]string{"postgres": assert.AnError.Error()}, failures)
}
