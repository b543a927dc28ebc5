package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/student-memory-service/internal/model"
)

// ProfileCache caches student profile snapshots between chat turns.
// Facts and assembled memory contexts are never cached.
type ProfileCache interface {
	Available() bool
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, studentID string) (*model.StudentProfile, error)
	// Set stores a profile; ttl 0 uses the cache default.
	Set(ctx context.Context, profile model.StudentProfile, ttl time.Duration) error
	Remove(ctx context.Context, studentID string) error
	Close() error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (ProfileCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}

// ProfileKey is the cache key of a student profile.
func ProfileKey(studentID string) string {
	return "student-profile:" + studentID
}
