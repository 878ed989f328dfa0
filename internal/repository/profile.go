// Package repository reads the user records the pipeline consumes: taste
// profiles and friends' ratings.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "recommend-workers/internal/common/errors"
	"recommend-workers/internal/common/logger"
	"recommend-workers/internal/models"
)

const profileKeyPrefix = "user:taste_profile:"

// ProfileRepository loads taste profiles from Postgres through a Redis
// read-through cache. A nil Redis client disables caching.
type ProfileRepository struct {
	db     *sql.DB
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewProfileRepository(db *sql.DB, rdb *redis.Client, ttl time.Duration, log logger.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.ForComponent(log, "profile-repository"),
	}
}

func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	cacheKey := profileKeyPrefix + userID
	if r.redis != nil {
		if val, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
			var profile models.UserProfile
			if err := json.Unmarshal([]byte(val), &profile); err == nil {
				return &profile, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("Profile cache read failed", map[string]interface{}{"userId": userID, "error": err})
		}
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT home_lat, home_lng, taste_profile
		FROM user_taste_profiles WHERE user_id = $1`, userID)

	var (
		lat, lng sql.NullFloat64
		taste    []byte
	)
	if err := row.Scan(&lat, &lng, &taste); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrProfileNotFound
		}
		return nil, apperrors.NewProfileLookupFailedError(userID, err)
	}

	profile := models.UserProfile{ID: userID}
	if lat.Valid && lng.Valid {
		profile.Location = &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	if len(taste) > 0 {
		if err := json.Unmarshal(taste, &profile.TasteProfile); err != nil {
			return nil, apperrors.NewProfileLookupFailedError(userID, fmt.Errorf("decode taste_profile: %w", err))
		}
	}

	if r.redis != nil {
		data, _ := json.Marshal(profile)
		if err := r.redis.Set(ctx, cacheKey, data, r.ttl).Err(); err != nil {
			r.logger.Warn("Profile cache write failed", map[string]interface{}{"userId": userID, "error": err})
		}
	}

	return &profile, nil
}
