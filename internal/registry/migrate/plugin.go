package migrate

import (
	"context"
	"fmt"
	"sort"
)

// Migrator prepares one fact store's schema: the postgres DDL, the sqlite
// AutoMigrate or the mongo indexes.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin pairs a Migrator with its position in RunAll.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register is called from the init of each store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// RunAll runs every registered migrator in Order. Each migrator reads the
// config from ctx and skips itself unless its store is the selected one.
func RunAll(ctx context.Context) error {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	for _, p := range sorted {
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
