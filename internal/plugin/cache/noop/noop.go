package noop

import (
	"context"
	"time"

	"github.com/chirino/student-memory-service/internal/model"
	"github.com/chirino/student-memory-service/internal/registry/cache"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.ProfileCache, error) {
			return New(), nil
		},
	})
}

// New returns a cache that never holds anything.
func New() cache.ProfileCache {
	return &noopProfileCache{}
}

type noopProfileCache struct{}

func (n *noopProfileCache) Available() bool { return false }
func (n *noopProfileCache) Get(_ context.Context, _ string) (*model.StudentProfile, error) {
	return nil, nil
}
func (n *noopProfileCache) Set(_ context.Context, _ model.StudentProfile, _ time.Duration) error {
	return nil
}
func (n *noopProfileCache) Remove(_ context.Context, _ string) error { return nil }
func (n *noopProfileCache) Close() error                             { return nil }

var _ cache.ProfileCache = (*noopProfileCache)(nil)
