package local

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/model"
	registrycache "github.com/chirino/student-memory-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultTTL     = 5 * time.Minute
	defaultMaxCost = 16 << 20
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "local",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ProfileCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return New(defaultMaxCost, defaultTTL)
	}
	return New(cfg.LocalCacheMaxCost, cfg.ProfileCacheTTL)
}

// New creates an in-process profile cache bounded by maxCost bytes.
// Entries are not shared between replicas.
func New(maxCost int64, ttl time.Duration) (registrycache.ProfileCache, error) {
	if maxCost <= 0 {
		maxCost = defaultMaxCost
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, model.StudentProfile]{
		// ~10x the number of profiles expected to fit.
		NumCounters: maxCost / 25,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &localProfileCache{cache: c, ttl: ttl}, nil
}

type localProfileCache struct {
	cache *ristretto.Cache[string, model.StudentProfile]
	ttl   time.Duration
}

func (c *localProfileCache) Available() bool { return true }

func (c *localProfileCache) Get(_ context.Context, studentID string) (*model.StudentProfile, error) {
	p, ok := c.cache.Get(registrycache.ProfileKey(studentID))
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *localProfileCache) Set(_ context.Context, profile model.StudentProfile, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(registrycache.ProfileKey(profile.StudentID), profile, profileCost(profile), ttl)
	// Make the write visible to the next Get; profiles are written rarely.
	c.cache.Wait()
	return nil
}

func (c *localProfileCache) Remove(_ context.Context, studentID string) error {
	c.cache.Del(registrycache.ProfileKey(studentID))
	return nil
}

func (c *localProfileCache) Close() error {
	c.cache.Close()
	return nil
}

func profileCost(p model.StudentProfile) int64 {
	return int64(128 + len(p.StudentID) + len(p.DisplayName) + len(p.FirstName) + len(p.AgeGroup) + len(p.StudyLevel))
}

var _ registrycache.ProfileCache = (*localProfileCache)(nil)
