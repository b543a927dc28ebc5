package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/model"
	registrycache "github.com/chirino/student-memory-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: STUDENT_MEMORY_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.ProfileCacheTTL)
}

// LoadFromURL creates a ProfileCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.ProfileCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptions(ctx, opts, ttl)
}

// LoadFromOptions creates a ProfileCache from go-redis Options.
func LoadFromOptions(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.ProfileCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisProfileCache{client: client, ttl: ttl}, nil
}

type redisProfileCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *redisProfileCache) Available() bool {
	return true
}

func (c *redisProfileCache) Get(ctx context.Context, studentID string) (*model.StudentProfile, error) {
	data, err := c.client.Get(ctx, registrycache.ProfileKey(studentID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var profile model.StudentProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *redisProfileCache) Set(ctx context.Context, profile model.StudentProfile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, registrycache.ProfileKey(profile.StudentID), data, ttl).Err()
}

func (c *redisProfileCache) Remove(ctx context.Context, studentID string) error {
	return c.client.Del(ctx, registrycache.ProfileKey(studentID)).Err()
}

func (c *redisProfileCache) Close() error {
	return c.client.Close()
}

var _ registrycache.ProfileCache = (*redisProfileCache)(nil)
