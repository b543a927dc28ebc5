// Package common holds the flags and startup wiring shared by the sub-commands.
package common

import (
	"strings"

	"github.com/chirino/student-memory-service/internal/config"
	registrycache "github.com/chirino/student-memory-service/internal/registry/cache"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/urfave/cli/v3"
)

// EnvPrefix is prepended to every flag's environment variable.
const EnvPrefix = "STUDENT_MEMORY_"

// DatastoreFlags binds the fact store settings.
func DatastoreFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars(EnvPrefix + "DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Fact store backend (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars(EnvPrefix + "DB_URL"),
			Destination: &cfg.DBURL,
			Usage:       "Database connection URL (sqlite defaults to ./student-memory.db)",
		},
		&cli.BoolFlag{
			Name:        "db-migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars(EnvPrefix + "DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Apply the schema before opening the store",
		},
		&cli.IntFlag{
			Name:        "db-max-open-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars(EnvPrefix + "DB_MAX_OPEN_CONNS"),
			Destination: &cfg.DBMaxOpenConns,
			Value:       cfg.DBMaxOpenConns,
			Usage:       "Maximum number of open database connections",
		},
		&cli.IntFlag{
			Name:        "db-max-idle-conns",
			Category:    "Database:",
			Sources:     cli.EnvVars(EnvPrefix + "DB_MAX_IDLE_CONNS"),
			Destination: &cfg.DBMaxIdleConns,
			Value:       cfg.DBMaxIdleConns,
			Usage:       "Maximum number of idle database connections",
		},
		&cli.StringFlag{
			Name:        "mongo-database",
			Category:    "Database:",
			Sources:     cli.EnvVars(EnvPrefix + "MONGO_DATABASE"),
			Destination: &cfg.MongoDatabase,
			Value:       cfg.MongoDatabase,
			Usage:       "Database name used by the mongo store",
		},
	}
}

// EncryptionFlags binds the at-rest encryption settings.
func EncryptionFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "encryption-key",
			Category:    "Encryption:",
			Sources:     cli.EnvVars(EnvPrefix + "ENCRYPTION_KEY"),
			Destination: &cfg.EncryptionKey,
			Usage:       "AES key (hex or base64, 16/24/32 bytes). Enables at-rest encryption of fact text",
		},
		&cli.StringFlag{
			Name:        "encryption-decryption-keys",
			Category:    "Encryption:",
			Sources:     cli.EnvVars(EnvPrefix + "ENCRYPTION_DECRYPTION_KEYS"),
			Destination: &cfg.EncryptionDecryptionKeys,
			Usage:       "Comma-separated legacy keys tried when reading facts sealed before a key rotation",
		},
		&cli.BoolFlag{
			Name:        "encryption-db-disabled",
			Category:    "Encryption:",
			Sources:     cli.EnvVars(EnvPrefix + "ENCRYPTION_DB_DISABLED"),
			Destination: &cfg.EncryptionDBDisabled,
			Usage:       "Store fact text in plaintext even when --encryption-key is set",
		},
	}
}

// CacheFlags binds the profile cache settings.
func CacheFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars(EnvPrefix + "CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Profile cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars(EnvPrefix + "REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL",
		},
		&cli.DurationFlag{
			Name:        "profile-cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars(EnvPrefix + "PROFILE_CACHE_TTL"),
			Destination: &cfg.ProfileCacheTTL,
			Value:       cfg.ProfileCacheTTL,
			Usage:       "How long a cached student profile is reused",
		},
		&cli.Int64Flag{
			Name:        "local-cache-max-cost",
			Category:    "Cache:",
			Sources:     cli.EnvVars(EnvPrefix + "LOCAL_CACHE_MAX_COST"),
			Destination: &cfg.LocalCacheMaxCost,
			Value:       cfg.LocalCacheMaxCost,
			Usage:       "Approximate byte budget of the in-process profile cache",
		},
	}
}

// ContextFlags binds the memory context assembly settings.
func ContextFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "context-budget",
			Category:    "Memory Context:",
			Sources:     cli.EnvVars(EnvPrefix + "CONTEXT_BUDGET"),
			Destination: &cfg.ContextBudget,
			Value:       cfg.ContextBudget,
			Usage:       "Character budget of the rendered prompt fragment (0 = unlimited)",
		},
		&cli.IntFlag{
			Name:        "context-max-facts",
			Category:    "Memory Context:",
			Sources:     cli.EnvVars(EnvPrefix + "CONTEXT_MAX_FACTS"),
			Destination: &cfg.ContextMaxFacts,
			Value:       cfg.ContextMaxFacts,
			Usage:       "Maximum number of ranked facts per context (0 = unlimited)",
		},
		&cli.DurationFlag{
			Name:        "context-store-timeout",
			Category:    "Memory Context:",
			Sources:     cli.EnvVars(EnvPrefix + "CONTEXT_STORE_TIMEOUT"),
			Destination: &cfg.ContextStoreTimeout,
			Value:       cfg.ContextStoreTimeout,
			Usage:       "Bound on the store reads of one context assembly (0 = request deadline only)",
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Category:    "Memory Context:",
			Sources:     cli.EnvVars(EnvPrefix + "POLICY_DIR"),
			Destination: &cfg.PolicyDir,
			Usage:       "Directory holding include.rego; the built-in policy includes every fact",
		},
	}
}

// RetentionFlags binds the fact pruning settings.
func RetentionFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-active-facts",
			Category:    "Retention:",
			Sources:     cli.EnvVars(EnvPrefix + "MAX_ACTIVE_FACTS"),
			Destination: &cfg.MaxActiveFacts,
			Value:       cfg.MaxActiveFacts,
			Usage:       "Active facts kept per student; older ones are deactivated (0 = unlimited)",
		},
		&cli.DurationFlag{
			Name:        "prune-interval",
			Category:    "Retention:",
			Sources:     cli.EnvVars(EnvPrefix + "PRUNE_INTERVAL"),
			Destination: &cfg.PruneInterval,
			Value:       cfg.PruneInterval,
			Usage:       "How often the fact pruner runs",
		},
		&cli.IntFlag{
			Name:        "prune-batch-size",
			Category:    "Retention:",
			Sources:     cli.EnvVars(EnvPrefix + "PRUNE_BATCH_SIZE"),
			Destination: &cfg.PruneBatchSize,
			Value:       cfg.PruneBatchSize,
			Usage:       "Facts deactivated per pruner batch",
		},
	}
}

// Join concatenates flag groups.
func Join(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
