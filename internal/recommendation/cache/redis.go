package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
)

const redisKeyPrefix = "rec:candidates:"

// RedisStore shares the candidate cache across service replicas. Redis
// failures degrade to cache misses.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.ForComponent(log, "candidate-cache"),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, bool) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		s.logger.Warn("cache entry corrupt, treating as miss", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, false
	}
	if !entry.Fresh(s.now(), s.ttl) {
		return nil, false
	}
	return &entry, true
}

func (s *RedisStore) Put(ctx context.Context, key string, candidates []models.Candidate) {
	entry := Entry{Key: key, Candidates: candidates, FetchedAt: s.now()}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("cache entry encode failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
