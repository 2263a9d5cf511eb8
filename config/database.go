package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobforge"`
	Password string `env:"PASSWORD"                envDefault:"jobforge"`
	Name     string `env:"NAME"                    envDefault:"jobforge"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// LogDBConfig contains the optional separate database for job log entries.
// When DSN is empty, log entries share the primary database through their own
// connection so log writes commit independently of run transactions.
type LogDBConfig struct {
	DSN string `env:"DSN" envDefault:""`
}

// RedisConfig contains Redis configuration for the hook match cache.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// HookConfig contains hook dispatch configuration.
type HookConfig struct {
	// CacheEnabled turns on the Redis-backed hook match cache.
	CacheEnabled bool `env:"HOOK_CACHE_ENABLED" envDefault:"true"`

	// CacheTTL is the expiry for cached hook match sets.
	CacheTTL time.Duration `env:"HOOK_CACHE_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to hook configuration values.
func (h *HookConfig) Sanitize() {
	if h.CacheTTL <= 0 {
		h.CacheTTL = 5 * time.Minute
	}
}
