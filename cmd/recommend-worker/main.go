// cmd/recommend-worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"recommend-workers/internal/api"
	"recommend-workers/internal/common/camunda"
	"recommend-workers/internal/common/config"
	"recommend-workers/internal/common/database"
	httpclient "recommend-workers/internal/common/http"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/common/observability"
	"recommend-workers/internal/models"
	"recommend-workers/internal/recommendation/cache"
	"recommend-workers/internal/recommendation/pipeline"
	"recommend-workers/internal/recommendation/rerank"
	"recommend-workers/internal/recommendation/scoring"
	"recommend-workers/internal/recommendation/sources"
	"recommend-workers/internal/repository"
	rr "recommend-workers/internal/workers/recommendation/rank-recommendations"
	"recommend-workers/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting recommend worker",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	var backends []database.Pinger

	// --- Postgres: catalog source, profiles, friend ratings ---
	var pg *database.PostgresClient
	if cfg.Database.Postgres.Configured() {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		backends = append(backends, pg)
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Elasticsearch: search-backed sources ---
	var es *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.GetURL() != "" {
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		backends = append(backends, es)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Redis: shared candidate cache and profile cache ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		backends = append(backends, rdb)
		zapLog.Info("Redis connected successfully")
	}

	// --- Candidate sources ---
	manifest, err := registry.LoadManifest(cfg.Pipeline.SourcesManifest)
	if err != nil {
		zapLog.Fatal("source manifest load failed", zap.Error(err), zap.String("path", cfg.Pipeline.SourcesManifest))
	}

	srcBackends := sources.Backends{
		HTTP:         httpclient.NewClient(config.GetDuration(cfg.Pipeline.SourceTimeout)),
		DefaultIndex: cfg.Database.Elasticsearch.Index,
	}
	if es != nil {
		srcBackends.Elasticsearch = es.Client
	}
	if pg != nil {
		srcBackends.Postgres = pg.DB
	}

	srcRegistry, err := sources.Build(manifest, srcBackends, config.GetDuration(cfg.Pipeline.SourceTimeout), log)
	if err != nil {
		zapLog.Fatal("source registry build failed", zap.Error(err))
	}

	// --- Candidate cache ---
	cacheTTL := config.GetDuration(cfg.Pipeline.CacheTTL)
	var store cache.Store
	switch cfg.Pipeline.CacheBackend {
	case "redis":
		store = cache.NewRedisStore(rdb.Client, cacheTTL, log)
	default:
		store = cache.NewMemoryStore(cacheTTL)
	}
	zapLog.Info("Candidate cache ready", zap.String("backend", cfg.Pipeline.CacheBackend), zap.Duration("ttl", cacheTTL))

	// --- Ranker ---
	scorer := scoring.New()
	deterministic := rerank.NewDeterministicRanker(scorer)
	var ranker rerank.Ranker = deterministic
	if cfg.APIs.GenAI.BaseURL != "" {
		llm := rerank.NewLLMRanker(rerank.LLMConfig{
			BaseURL:     cfg.APIs.GenAI.BaseURL,
			APIKey:      cfg.APIs.GenAI.APIKey,
			Model:       cfg.APIs.GenAI.Model,
			Timeout:     config.GetDuration(cfg.APIs.GenAI.Timeout),
			MaxTokens:   cfg.APIs.GenAI.MaxTokens,
			Temperature: cfg.APIs.GenAI.Temperature,
			RatePerSec:  cfg.APIs.GenAI.RatePerSec,
			Burst:       cfg.APIs.GenAI.Burst,
		}, scorer, log)
		ranker = rerank.NewFallbackRanker(llm, deterministic, log)
	}
	zapLog.Info("Ranker configured", zap.String("ranker", ranker.Name()))

	// --- Pipeline ---
	options := []pipeline.Option{
		pipeline.WithObservability(obs),
		pipeline.WithSections(sectionsFromConfig(cfg.Pipeline.Sections, zapLog)),
	}
	if pg != nil {
		var profileCache *redis.Client
		if rdb != nil {
			profileCache = rdb.Client
		}
		profiles := repository.NewProfileRepository(pg.DB, profileCache, config.GetDuration(cfg.Pipeline.ProfileCacheTTL), log)
		options = append(options,
			pipeline.WithProfiles(profiles),
			pipeline.WithFriendRatings(repository.NewFriendRatingRepository(pg.DB)),
		)
	}

	recommender := pipeline.New(pipeline.Options{
		DefaultLimit:     cfg.Pipeline.DefaultLimit,
		MaxLimit:         cfg.Pipeline.MaxLimit,
		PrimaryBatchSize: cfg.Pipeline.PrimaryBatchSize,
		BackfillSize:     cfg.Pipeline.BackfillSize,
	}, srcRegistry, store, ranker, log, options...)

	// --- Zeebe worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			RetryConfig:            &camunda.RetryConfig{MaxRetries: 10, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
		})
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		backends = append(backends, zeebe)
		zapLog.Info("Zeebe client connected successfully")

		wcfg := config.GetWorkerConfig(cfg, rr.TaskType)
		handler := rr.NewHandler(&rr.Config{Timeout: config.GetDuration(wcfg.Timeout)}, recommender, log)
		jobWorker = camunda.StartWorker(zeebe.GetClient(), rr.TaskType, wcfg, handler, log)
	}

	// --- HTTP API, health and metrics ---
	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.NewServer(recommender, config.GetDuration(cfg.HTTP.RequestTimeout), log, backends...).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	jobWorker.Stop()
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Recommend worker stopped")
}

func sectionsFromConfig(cfgSections []config.SectionConfig, log *zap.Logger) []pipeline.SectionSpec {
	if len(cfgSections) == 0 {
		return pipeline.DefaultSections()
	}
	out := make([]pipeline.SectionSpec, 0, len(cfgSections))
	for _, s := range cfgSections {
		category, ok := models.ParseCategory(s.Category)
		if !ok {
			log.Warn("Skipping section with unknown category", zap.String("section", s.Key), zap.String("category", s.Category))
			continue
		}
		out = append(out, pipeline.SectionSpec{
			Key:      s.Key,
			Title:    s.Title,
			Emoji:    s.Emoji,
			Category: category,
			Query:    s.Query,
		})
	}
	return out
}
