package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rbrinkke/userprofile-api/internal/config"
)

// CacheKeyType is the resource prefix of a cache key
type CacheKeyType string

const (
	CacheKeyProfile   CacheKeyType = "profile"
	CacheKeySettings  CacheKeyType = "settings"
	CacheKeyInterests CacheKeyType = "interests"
)

// CacheService stores read models of a user's own data as JSON. Every
// mutation of a user drops all of that user's keys.
type CacheService struct {
	redis *RedisCache
	ttls  map[CacheKeyType]time.Duration
}

// NewCacheService creates a cache with per-resource TTLs
func NewCacheService(redis *RedisCache, cfg config.CacheConfig) *CacheService {
	return &CacheService{
		redis: redis,
		ttls: map[CacheKeyType]time.Duration{
			CacheKeyProfile:   cfg.ProfileTTL,
			CacheKeySettings:  cfg.SettingsTTL,
			CacheKeyInterests: cfg.InterestsTTL,
		},
	}
}

// Key builds <type>:<userID>
func (c *CacheService) Key(keyType CacheKeyType, userID string) string {
	return string(keyType) + ":" + strings.ToLower(userID)
}

// TTL returns the lifetime used for keyType
func (c *CacheService) TTL(keyType CacheKeyType) time.Duration {
	return c.ttls[keyType]
}

// Set stores value under the user's key for keyType
func (c *CacheService) Set(ctx context.Context, keyType CacheKeyType, userID string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, c.Key(keyType, userID), data, c.TTL(keyType))
}

// Get decodes the cached value into dest. A miss returns false, nil.
func (c *CacheService) Get(ctx context.Context, keyType CacheKeyType, userID string, dest any) (bool, error) {
	data, err := c.redis.Get(ctx, c.Key(keyType, userID))
	if err != nil {
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// InvalidateUser drops every cached read model of userID
func (c *CacheService) InvalidateUser(ctx context.Context, userID string) error {
	return c.redis.Del(ctx,
		c.Key(CacheKeyProfile, userID),
		c.Key(CacheKeySettings, userID),
		c.Key(CacheKeyInterests, userID),
	)
}
