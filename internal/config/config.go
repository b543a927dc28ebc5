package config

import (
	"context"
	"fmt"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// MinContextBudget is the smallest non-zero character budget accepted for
// rendered memory contexts. Anything smaller cannot hold a profile summary.
const MinContextBudget = 80

// Config holds all configuration for the student memory service.
type Config struct {
	// Mode is "prod" (default) or "testing".
	Mode string

	// Database
	DBURL string

	// Datastore backend type: "postgres", "sqlite" or "mongo".
	DatastoreType string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// MongoDatabase is the database name used by the mongo store.
	MongoDatabase string

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Profile cache backend type: "redis", "local", or "none".
	CacheType string

	// Redis
	RedisURL string

	// ProfileCacheTTL bounds how long a student profile snapshot is reused.
	ProfileCacheTTL time.Duration

	// LocalCacheMaxCost is the ristretto cost budget (bytes, approximately) of the local cache.
	LocalCacheMaxCost int64

	// Memory context assembly.
	// ContextBudget is the rendered prompt fragment budget in characters. 0 disables it.
	ContextBudget int
	// ContextMaxFacts caps the number of ranked facts handed to the formatter. 0 = unlimited.
	ContextMaxFacts int
	// ContextStoreTimeout bounds the store reads made while assembling one context.
	// 0 means the caller's context deadline is used as-is.
	ContextStoreTimeout time.Duration

	// PolicyDir optionally holds include.rego, the fact inclusion policy.
	PolicyDir string

	// Fact retention.
	// MaxActiveFacts is the per-student active fact cap. 0 disables pruning.
	MaxActiveFacts int
	PruneInterval  time.Duration
	PruneBatchSize int

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or STUDENT_MEMORY_MANAGEMENT_PORT)
	// was explicitly provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints (/health, /ready, /metrics).
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Encryption
	// EncryptionKey is the primary AES key (hex or base64) used to seal fact text at rest.
	EncryptionKey string
	// EncryptionDecryptionKeys is a comma-separated list of legacy keys tried on read.
	EncryptionDecryptionKeys string
	// EncryptionDBDisabled stores fact text in plaintext even when EncryptionKey is set.
	EncryptionDBDisabled bool

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		MongoDatabase:           "student_memory",
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,
		CacheType:               "none",
		ProfileCacheTTL:         5 * time.Minute,
		LocalCacheMaxCost:       16 * 1024 * 1024,
		ContextBudget:           2000,
		ContextStoreTimeout:     3 * time.Second,
		PruneInterval:           time.Hour,
		PruneBatchSize:          500,
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MetricsLabels: "service=student-memory",
		MaxBodySize:   1024 * 1024,
		DrainTimeout:  30,
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.DatastoreType {
	case "postgres", "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown datastore %q; valid: postgres, sqlite, mongo", c.DatastoreType)
	}
	if c.ContextBudget < 0 {
		return fmt.Errorf("context budget must not be negative")
	}
	if c.ContextBudget > 0 && c.ContextBudget < MinContextBudget {
		return fmt.Errorf("context budget %d is below the minimum of %d characters", c.ContextBudget, MinContextBudget)
	}
	if c.ContextMaxFacts < 0 {
		return fmt.Errorf("context max facts must not be negative")
	}
	if c.MaxActiveFacts < 0 {
		return fmt.Errorf("max active facts must not be negative")
	}
	if c.MaxActiveFacts > 0 && c.PruneBatchSize <= 0 {
		return fmt.Errorf("prune batch size must be positive when max active facts is set")
	}
	return nil
}
