package common

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/memory"
	"github.com/chirino/student-memory-service/internal/plugin/cache/noop"
	storemetrics "github.com/chirino/student-memory-service/internal/plugin/store/metrics"
	registrycache "github.com/chirino/student-memory-service/internal/registry/cache"
	registrymigrate "github.com/chirino/student-memory-service/internal/registry/migrate"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/student-memory-service/internal/plugin/cache/local"
	_ "github.com/chirino/student-memory-service/internal/plugin/cache/redis"
	_ "github.com/chirino/student-memory-service/internal/plugin/store/mongo"
	_ "github.com/chirino/student-memory-service/internal/plugin/store/postgres"
	_ "github.com/chirino/student-memory-service/internal/plugin/store/sqlite"
)

// Runtime is everything a sub-command needs to serve memory contexts.
type Runtime struct {
	Store   registrystore.FactStore
	Cache   registrycache.ProfileCache
	Policy  *memory.PolicyEngine
	Service *memory.Service
}

// Close releases the store and cache.
func (r *Runtime) Close() {
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			log.Warn("Failed to close profile cache", "err", err)
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			log.Warn("Failed to close fact store", "err", err)
		}
	}
}

// Open validates cfg, runs migrations and builds the memory service.
// ctx must carry cfg (see config.WithContext).
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Store: store, Cache: OpenCache(ctx, cfg)}

	rt.Policy, err = memory.NewPolicyEngine(ctx, cfg.PolicyDir)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to load fact inclusion policy: %w", err)
	}

	rt.Service = memory.NewService(store, memory.Options{
		Cache:           rt.Cache,
		Policy:          rt.Policy,
		MaxFacts:        cfg.ContextMaxFacts,
		Budget:          cfg.ContextBudget,
		StoreTimeout:    cfg.ContextStoreTimeout,
		ProfileCacheTTL: cfg.ProfileCacheTTL,
	})
	return rt, nil
}

// OpenStore loads the configured fact store, wrapped with latency metrics.
func OpenStore(ctx context.Context, cfg *config.Config) (registrystore.FactStore, error) {
	loader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := loader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return storemetrics.Wrap(store), nil
}

// OpenCache loads the configured profile cache. Failures are logged and
// profile caching is disabled instead.
func OpenCache(ctx context.Context, cfg *config.Config) registrycache.ProfileCache {
	loader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
		return noop.New()
	}
	c, err := loader(ctx)
	if err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		return noop.New()
	}
	return c
}
