// Package api serves the recommendation pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recommend-workers/internal/common/database"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/recommendation/pipeline"
)

const readyTimeout = 2 * time.Second

// Recommender is the pipeline surface the API needs.
type Recommender interface {
	Run(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error)
	RunSections(ctx context.Context, req *pipeline.SectionsRequest) (*pipeline.SectionsResponse, error)
}

type Server struct {
	recommender Recommender
	backends    []database.Pinger
	timeout     time.Duration
	logger      logger.Logger
}

// NewServer builds the API. backends are pinged by /ready.
func NewServer(recommender Recommender, timeout time.Duration, log logger.Logger, backends ...database.Pinger) *Server {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Server{
		recommender: recommender,
		backends:    backends,
		timeout:     timeout,
		logger:      logger.ForComponent(log, "api"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/recommendations", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.timeout))
		r.Get("/", s.getRecommendations)
		r.Get("/sections", s.getSections)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("request served", map[string]interface{}{
			"requestId":  chimiddleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": time.Since(start).Milliseconds(),
		})
	})
}
